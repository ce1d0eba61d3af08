package model

type User struct {
	Id            int64   `gorm:"primaryKey" json:"id"`
	Username      *string `json:"username"`
	WalletAddress string  `json:"wallet_address"`
}

func (User) TableName() string {
	return TableUser
}

type Token struct {
	Id      int64  `gorm:"primaryKey" json:"id"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Decimal int    `gorm:"column:decimal" json:"decimal"`
}

func (Token) TableName() string {
	return TableToken
}

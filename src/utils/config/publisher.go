package config

import (
	"time"

	"github.com/spf13/viper"
)

type Publisher struct {
	// Are approved campaigns published to the contract
	Enabled bool

	// Hex encoded ECDSA key of the worker account
	PrivateKey string

	// Timeout for building, signing and sending a transaction
	SubmitTimeout time.Duration

	// Timeout for waiting on the receipt
	ReceiptTimeout time.Duration

	// Unconfirmed attempts older than this are resubmitted
	AttemptExpiry time.Duration

	// Percent added to the suggested gas price when replacing an expired transaction
	ReplacementGasPriceBump int64

	// Gas limit, 0 means estimate
	GasLimit uint64

	// Max transactions submitted per second by the process
	MaxTransactionsPerSecond int
}

func setPublisherDefaults() {
	viper.SetDefault("Publisher.Enabled", "true")
	viper.SetDefault("Publisher.PrivateKey", "")
	viper.SetDefault("Publisher.SubmitTimeout", "30s")
	viper.SetDefault("Publisher.ReceiptTimeout", "2m")
	viper.SetDefault("Publisher.AttemptExpiry", "10m")
	viper.SetDefault("Publisher.ReplacementGasPriceBump", "25")
	viper.SetDefault("Publisher.GasLimit", "0")
	viper.SetDefault("Publisher.MaxTransactionsPerSecond", "2")
}

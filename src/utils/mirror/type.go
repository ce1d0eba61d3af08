package mirror

import (
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
)

// One contract log, as returned by the mirror node
type LogEntry struct {
	Address         string
	ContractId      string
	Topics          []string
	Data            string
	TransactionHash string
	Timestamp       ledger.Timestamp
	Index           int
	BlockNumber     int64
}

type logsResponse struct {
	Logs  []logResponse `json:"logs"`
	Links links         `json:"links"`
}

type logResponse struct {
	Address         string   `json:"address"`
	ContractId      string   `json:"contract_id"`
	Data            string   `json:"data"`
	Index           int      `json:"index"`
	Topics          []string `json:"topics"`
	BlockNumber     int64    `json:"block_number"`
	Timestamp       string   `json:"timestamp"`
	TransactionHash string   `json:"transaction_hash"`
}

type links struct {
	Next *string `json:"next"`
}

type accountResponse struct {
	Account    string  `json:"account"`
	EvmAddress *string `json:"evm_address"`
}

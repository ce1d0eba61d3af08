package config

import (
	"github.com/spf13/viper"
)

type Ledger struct {
	// mainnet, testnet, previewnet or local. Selects default endpoints.
	Network string

	// JSON-RPC relay used for contract writes. Empty means the network's default.
	RpcUrl string

	// Expected chain id, 0 skips the check
	ChainId int64
}

func setLedgerDefaults() {
	viper.SetDefault("Ledger.Network", "testnet")
	viper.SetDefault("Ledger.RpcUrl", "")
	viper.SetDefault("Ledger.ChainId", "0")
}

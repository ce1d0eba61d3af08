package config

import (
	"github.com/spf13/viper"
)

// Contract watched by one reconciler
type Contract struct {
	// Checkpoint key, unique per contract
	Key string

	// Ledger contract id (shard.realm.num), used with the mirror node
	ContractId string

	// EVM address of the contract, used with the JSON-RPC relay
	Address string

	// Optional start timestamp (seconds.nanos) used when seeding the checkpoint
	StartAt string
}

func setContractDefaults() {
	viper.SetDefault("Contract.Key", "crawl_onchain")
	viper.SetDefault("Contract.ContractId", "")
	viper.SetDefault("Contract.Address", "")
	viper.SetDefault("Contract.StartAt", "")
}

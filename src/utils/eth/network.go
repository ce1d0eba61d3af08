package eth

import (
	"errors"
	"strings"
)

var ErrUnknownNetwork = errors.New("unknown ledger network")

type Network int

const (
	Mainnet    Network = iota
	Testnet    Network = iota
	Previewnet Network = iota
	Local      Network = iota
)

func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet":
		return Mainnet, nil
	case "testnet", "":
		return Testnet, nil
	case "previewnet":
		return Previewnet, nil
	case "local", "localnet":
		return Local, nil
	}
	return Testnet, ErrUnknownNetwork
}

func (network Network) MirrorUrl() string {
	switch network {
	case Mainnet:
		return "https://mainnet-public.mirrornode.hedera.com"
	case Previewnet:
		return "https://previewnet.mirrornode.hedera.com"
	case Local:
		return "http://localhost:5551"
	}
	return "https://testnet.mirrornode.hedera.com"
}

func (network Network) RpcProviderUrl() string {
	switch network {
	case Mainnet:
		return "https://mainnet.hashio.io/api"
	case Previewnet:
		return "https://previewnet.hashio.io/api"
	case Local:
		return "http://localhost:7546"
	}
	return "https://testnet.hashio.io/api"
}

func (network Network) ChainId() int64 {
	switch network {
	case Mainnet:
		return 295
	case Previewnet:
		return 297
	case Local:
		return 298
	}
	return 296
}

func (network Network) String() string {
	switch network {
	case Mainnet:
		return "mainnet"
	case Previewnet:
		return "previewnet"
	case Local:
		return "local"
	}
	return "testnet"
}

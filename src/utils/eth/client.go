package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/donation-platform/ledger-worker/src/utils/config"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"
)

var (
	ErrChainIdMismatch = errors.New("chain id mismatch")
	ErrInvalidKey      = errors.New("invalid private key")
)

// Mirror node url, configured one takes precedence over the network's default
func MirrorUrl(config *config.Config) (string, error) {
	if config.Mirror.Url != "" {
		return strings.TrimSuffix(config.Mirror.Url, "/"), nil
	}
	network, err := ParseNetwork(config.Ledger.Network)
	if err != nil {
		return "", err
	}
	return network.MirrorUrl(), nil
}

// Connects to the JSON-RPC relay and verifies it serves the expected chain
func GetEthClient(ctx context.Context, log *logrus.Entry, config *config.Config) (client *ethclient.Client, chainId *big.Int, err error) {
	network, err := ParseNetwork(config.Ledger.Network)
	if err != nil {
		return
	}

	rpcProviderUrl := config.Ledger.RpcUrl
	if rpcProviderUrl == "" {
		rpcProviderUrl = network.RpcProviderUrl()
	}

	client, err = ethclient.DialContext(ctx, rpcProviderUrl)
	if err != nil {
		log.WithError(err).WithField("url", rpcProviderUrl).Error("Cannot get ETH client")
		return
	}

	chainId, err = client.ChainID(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to get chain id")
		client.Close()
		client = nil
		return
	}

	expected := config.Ledger.ChainId
	if expected == 0 && config.Ledger.RpcUrl == "" {
		expected = network.ChainId()
	}
	if expected != 0 && chainId.Int64() != expected {
		client.Close()
		client = nil
		err = fmt.Errorf("%w: expected %d, got %s", ErrChainIdMismatch, expected, chainId)
		return
	}

	log.WithField("chain_id", chainId).WithField("url", rpcProviderUrl).Info("Connected to JSON-RPC relay")
	return
}

// Parses a hex encoded ECDSA key, optional 0x prefix
func ParsePrivateKey(hexKey string) (key *ecdsa.PrivateKey, err error) {
	key, err = crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrInvalidKey, err.Error())
	}
	return
}

// Transaction signer for the worker account
func NewTransactor(key *ecdsa.PrivateKey, chainId *big.Int) (opts *bind.TransactOpts, address common.Address, err error) {
	opts, err = bind.NewKeyedTransactorWithChainID(key, chainId)
	if err != nil {
		return
	}
	address = crypto.PubkeyToAddress(key.PublicKey)
	return
}

// Token amount in base units to a human readable number, used only for logging
func ToUnits(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), divisor).Float64()
	return out
}

func WeiToEther(wei *big.Int) float64 {
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return ether
}

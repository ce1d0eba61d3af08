package mirror

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

type accountClient interface {
	AccountToEvmAddress(ctx context.Context, accountId string) (string, error)
	EvmAddressToAccount(ctx context.Context, evmAddress string) (string, error)
}

// Caches resolved account ids and addresses. Misses are never cached,
// the account may appear later.
type Resolver struct {
	client accountClient
	cache  *cache.Cache
}

func NewResolver(client accountClient, ttl time.Duration) (self *Resolver) {
	self = new(Resolver)
	self.client = client
	self.cache = cache.New(ttl, 2*ttl)
	return
}

func (self *Resolver) AccountToEvmAddress(ctx context.Context, accountId string) (evmAddress string, err error) {
	key := "account:" + accountId
	if cached, ok := self.cache.Get(key); ok {
		return cached.(string), nil
	}

	evmAddress, err = self.client.AccountToEvmAddress(ctx, accountId)
	if err != nil {
		return
	}

	self.store(accountId, evmAddress)
	return
}

func (self *Resolver) EvmAddressToAccount(ctx context.Context, evmAddress string) (accountId string, err error) {
	evmAddress = strings.ToLower(evmAddress)
	key := "evm:" + evmAddress
	if cached, ok := self.cache.Get(key); ok {
		return cached.(string), nil
	}

	accountId, err = self.client.EvmAddressToAccount(ctx, evmAddress)
	if err != nil {
		return
	}

	self.store(accountId, evmAddress)
	return
}

// Mapping is stable, both directions get cached
func (self *Resolver) store(accountId, evmAddress string) {
	evmAddress = strings.ToLower(evmAddress)
	self.cache.SetDefault("account:"+accountId, evmAddress)
	self.cache.SetDefault("evm:"+evmAddress, accountId)
}

func (self *Resolver) Len() int {
	return self.cache.ItemCount()
}

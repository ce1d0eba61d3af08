package config

import (
	"time"

	"github.com/spf13/viper"
)

type Mirror struct {
	// Mirror node base url. Empty means the network's default.
	Url string

	// Timeout of a single HTTP request
	RequestTimeout time.Duration

	// Number of logs requested per page
	PageLimit int

	// Maximum number of pages followed in one fetch
	MaxPages int

	// Requests per second allowed to the mirror node
	RateLimit float64

	// How long resolved account ids and addresses are cached
	AccountCacheTTL time.Duration
}

func setMirrorDefaults() {
	viper.SetDefault("Mirror.Url", "")
	viper.SetDefault("Mirror.RequestTimeout", "15s")
	viper.SetDefault("Mirror.PageLimit", "100")
	viper.SetDefault("Mirror.MaxPages", "50")
	viper.SetDefault("Mirror.RateLimit", "20")
	viper.SetDefault("Mirror.AccountCacheTTL", "1h")
}

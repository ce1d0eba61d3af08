package config

import (
	"bytes"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "LEDGER_WORKER_"

// Config stores global configuration
type Config struct {
	// Is development mode on
	IsDevelopment bool

	// REST API address. API used for monitoring etc.
	RESTListenAddress string

	// Maximum time the worker will be closing before stop is forced.
	StopTimeout time.Duration

	// Logging level
	LogLevel string

	Database   Database
	Ledger     Ledger
	Mirror     Mirror
	Contract   Contract
	Contracts  []Contract
	Reconciler Reconciler
	Publisher  Publisher
	Redis      Redis
	Profiler   Profiler
}

func setDefaults() {
	viper.SetDefault("IsDevelopment", "false")
	viper.SetDefault("RESTListenAddress", ":7777")
	viper.SetDefault("LogLevel", "DEBUG")
	viper.SetDefault("StopTimeout", "30s")

	setDatabaseDefaults()
	setLedgerDefaults()
	setMirrorDefaults()
	setContractDefaults()
	setReconcilerDefaults()
	setPublisherDefaults()
	setRedisDefaults()
	setProfilerDefaults()
}

func Default() (config *Config) {
	config, _ = Load("")
	return
}

// Visits every field and registers upper snake case ENV name for it
// Works with embedded structs. Slices of structs are configurable only from the file.
func BindEnv(path []string, val reflect.Value) {
	switch val.Kind() {
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Struct {
			return
		}
		bindKey(path)
	case reflect.Struct:
		if _, ok := val.Interface().(time.Time); ok {
			bindKey(path)
			return
		}
		for i := 0; i < val.NumField(); i++ {
			newPath := make([]string, len(path))
			copy(newPath, path)
			newPath = append(newPath, val.Type().Field(i).Name)
			BindEnv(newPath, val.Field(i))
		}
	default:
		bindKey(path)
	}
}

func bindKey(path []string) {
	key := strings.ToLower(strings.Join(path, "."))
	env := ENV_PREFIX + strcase.ToScreamingSnake(strings.Join(path, "_"))
	err := viper.BindEnv(key, env)
	if err != nil {
		panic(err)
	}
}

func decodeHook(c *mapstructure.DecoderConfig) {
	c.WeaklyTypedInput = true
	c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Load configuration from file and env
func Load(filename string) (config *Config, err error) {
	viper.Reset()
	viper.SetConfigType("json")

	setDefaults()

	BindEnv([]string{}, reflect.ValueOf(Config{}))

	// Empty filename means we use default values
	if filename != "" {
		var content []byte
		/* #nosec */
		content, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		err = viper.ReadConfig(bytes.NewBuffer(content))
		if err != nil {
			return nil, err
		}
	}

	config = new(Config)
	err = viper.Unmarshal(&config, decodeHook)
	if err != nil {
		return nil, err
	}

	// Single contract configured through env is the default list
	if len(config.Contracts) == 0 && config.Contract.ContractId != "" {
		config.Contracts = []Contract{config.Contract}
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPC                 = "RPC"
	EnvChainID             = "CHAIN_ID"
	EnvPrivateKey          = "PRIVATE_KEY"
	EnvProtocols           = "PROTOCOLS"
	EnvLiquidatorAddresses = "LIQUIDATOR_ADDRESSES"
	EnvFlashLiquidator     = "FLASH_LIQUIDATOR"
	EnvGraphURLs           = "GRAPH_URLS" // paired with PROTOCOLS by index
	EnvProfitableThreshold = "PROFITABLE_THRESHOLD"
	EnvBatchSize           = "BATCH_SIZE"
	EnvIndexerBatchSize    = "INDEXER_BATCH_SIZE"
	EnvMinHealthFactor     = "MIN_HEALTH_FACTOR"
	EnvMaxHealthFactor     = "MAX_HEALTH_FACTOR"
	EnvDelay               = "DELAY"     // seconds
	EnvGasPrice            = "GAS_PRICE" // gwei
	EnvSlippageTolerance   = "SLIPPAGE_TOLERANCE"
	EnvFlashbotsRelay      = "FLASHBOTS_RELAY"
	EnvFlashbotsAuthKey    = "FLASHBOTS_AUTH_KEY"
	EnvMetricsAddr         = "METRICS_ADDR"
)

// Loader looks up configuration values by key
type Loader interface {
	Lookup(key string) (string, bool)
}

// EnvLoader reads the process environment
type EnvLoader struct{}

func (EnvLoader) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapLoader serves fixed values
type MapLoader map[string]string

func (m MapLoader) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets a value from loader with a default value
func GetEnvWithDefault(loader Loader, key, defaultValue string) string {
	value, ok := loader.Lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ApplyEnv overrides config with every non-empty key found in loader
func ApplyEnv(config *Config, loader Loader) error {
	var errors []string

	str := func(key string, target *string) {
		if v := GetEnvWithDefault(loader, key, ""); v != "" {
			*target = v
		}
	}
	num := func(key string, target *int) {
		if v := GetEnvWithDefault(loader, key, ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errors = append(errors, fmt.Sprintf("%s must be an integer", key))
				return
			}
			*target = n
		}
	}

	str(EnvRPC, &config.RPC)
	str(EnvPrivateKey, &config.PrivateKey)
	str(EnvProfitableThreshold, &config.ProfitableThreshold)
	str(EnvMinHealthFactor, &config.MinHealthFactor)
	str(EnvMaxHealthFactor, &config.MaxHealthFactor)
	str(EnvGasPrice, &config.GasPrice)
	str(EnvFlashbotsRelay, &config.FlashbotsRelay)
	str(EnvFlashbotsAuthKey, &config.FlashbotsAuthKey)
	str(EnvMetricsAddr, &config.MetricsAddr)
	num(EnvBatchSize, &config.BatchSize)
	num(EnvIndexerBatchSize, &config.IndexerBatchSize)
	num(EnvDelay, &config.DelaySeconds)

	if v := GetEnvWithDefault(loader, EnvChainID, ""); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s must be an unsigned integer", EnvChainID))
		} else {
			config.ChainID = id
		}
	}
	if v := GetEnvWithDefault(loader, EnvSlippageTolerance, ""); v != "" {
		bps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s must be an integer", EnvSlippageTolerance))
		} else {
			config.SlippageTolerance = bps
		}
	}
	if v := GetEnvWithDefault(loader, EnvFlashLiquidator, ""); v != "" {
		flash, err := strconv.ParseBool(v)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s must be a boolean", EnvFlashLiquidator))
		} else {
			config.FlashLiquidator = flash
		}
	}

	if v := GetEnvWithDefault(loader, EnvProtocols, ""); v != "" {
		config.Protocols = splitList(v)
	}
	if v := GetEnvWithDefault(loader, EnvLiquidatorAddresses, ""); v != "" {
		config.LiquidatorAddresses = splitList(v)
	}
	if v := GetEnvWithDefault(loader, EnvGraphURLs, ""); v != "" {
		urls := splitList(v)
		if len(urls) != len(config.Protocols) {
			errors = append(errors, "number of protocols and graph urls must be the same")
		} else {
			if config.Deployments == nil {
				config.Deployments = DefaultDeployments()
			}
			for i, protocol := range config.Protocols {
				deployment := config.Deployments[protocol]
				deployment.GraphURL = urls[i]
				config.Deployments[protocol] = deployment
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errors, "; "))
	}
	return nil
}

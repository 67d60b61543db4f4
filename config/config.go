package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/liquidator/dex/uniswap"
	"github.com/michaelpento.lv/liquidator/utils/math"
)

// DefaultConfigFile is read when --config is not given; it may be absent
const DefaultConfigFile = "liquidator.yaml"

// Oracle prices and health factors use these precisions
const (
	USDDecimals          = 8
	HealthFactorDecimals = 18
	GasPriceDecimals     = 9
)

// AvailableProtocols are the protocols with a built-in deployment
var AvailableProtocols = []string{"aave", "spark"}

type Config struct {
	// Chain settings
	RPC        string `yaml:"rpc"`
	ChainID    uint64 `yaml:"chain_id"`
	PrivateKey string `yaml:"-"`

	// Protocol selection; liquidator addresses pair with protocols by index
	Protocols           []string `yaml:"protocols"`
	LiquidatorAddresses []string `yaml:"liquidator_addresses"`
	FlashLiquidator     bool     `yaml:"flash_liquidator"`
	ReadOnly            bool     `yaml:"read_only"`

	// Bot settings, as decimal strings in human units
	ProfitableThreshold string `yaml:"profitable_threshold"`
	MinHealthFactor     string `yaml:"min_health_factor"`
	MaxHealthFactor     string `yaml:"max_health_factor"`
	GasPrice            string `yaml:"gas_price"`
	SlippageTolerance   int64  `yaml:"slippage_tolerance"`
	BatchSize           int    `yaml:"batch_size"`
	IndexerBatchSize    int    `yaml:"indexer_batch_size"`
	DelaySeconds        int    `yaml:"delay"`

	SwapFees       uniswap.FeeTiers `yaml:"swap_fees"`
	DefaultPoolFee uint32           `yaml:"default_pool_fee"`

	FlashbotsRelay string `yaml:"flashbots_relay"`
	// FlashbotsAuthKey signs relay requests; defaults to PrivateKey
	FlashbotsAuthKey string `yaml:"-"`
	MetricsAddr      string `yaml:"metrics_addr"`

	Deployments map[string]ProtocolConfig `yaml:"deployments"`
}

// ProtocolConfig is one lending deployment
type ProtocolConfig struct {
	Pool          string            `yaml:"pool"`
	DataProvider  string            `yaml:"data_provider"`
	Oracle        string            `yaml:"oracle"`
	GraphURL      string            `yaml:"graph_url"`
	WrappedNative string            `yaml:"wrapped_native"`
	Stablecoins   []string          `yaml:"stablecoins"`
	Markets       []string          `yaml:"markets"`
	Underlyings   map[string]string `yaml:"underlyings"`

	// Users is a fixed watchlist scanned instead of the indexer
	Users []string `yaml:"users"`
}

// DefaultDeployments are the Ethereum mainnet Aave V3 and Spark pools
func DefaultDeployments() map[string]ProtocolConfig {
	stablecoins := make([]string, 0, len(uniswap.DefaultStablecoins))
	for _, s := range uniswap.DefaultStablecoins {
		stablecoins = append(stablecoins, s.Hex())
	}
	return map[string]ProtocolConfig{
		"aave": {
			Pool:          "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
			DataProvider:  "0x7B4EB56E7CD4b454BA8ff71E4518426369a138a3",
			Oracle:        "0x54586bE62E3c3580375aE3723C145253060Ca0C2",
			WrappedNative: uniswap.WETH.Hex(),
			Stablecoins:   stablecoins,
		},
		"spark": {
			Pool:          "0xC13e21B648A5Ee794902342038FF3aDAB66BE987",
			DataProvider:  "0xFc21d6d146E6086B8359705C8b28512a983db0cb",
			Oracle:        "0x8105f69D9C41644c6A0803fDA7D03Aa70996cFD9",
			WrappedNative: uniswap.WETH.Hex(),
			Stablecoins:   stablecoins,
		},
	}
}

// DefaultConfig returns a single-shot aave configuration
func DefaultConfig() *Config {
	return &Config{
		ChainID:             1,
		Protocols:           []string{"aave"},
		ProfitableThreshold: "100",
		MinHealthFactor:     "0",
		MaxHealthFactor:     "1",
		SlippageTolerance:   100,
		BatchSize:           15,
		IndexerBatchSize:    1000,
		SwapFees:            uniswap.DefaultFeeTiers(),
		DefaultPoolFee:      3000,
		Deployments:         DefaultDeployments(),
	}
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.RPC == "" {
		errors = append(errors, "rpc must be specified")
	}
	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.PrivateKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x")); err != nil {
			errors = append(errors, "private key is invalid")
		}
	}
	if c.FlashbotsAuthKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.FlashbotsAuthKey, "0x")); err != nil {
			errors = append(errors, "flashbots auth key is invalid")
		}
	}

	if len(c.Protocols) == 0 {
		errors = append(errors, "no protocols found")
	}
	seen := make(map[string]bool, len(c.Protocols))
	for _, protocol := range c.Protocols {
		if seen[protocol] {
			errors = append(errors, fmt.Sprintf("duplicate protocol %s", protocol))
			continue
		}
		seen[protocol] = true
		if !isAvailable(protocol) {
			errors = append(errors, fmt.Sprintf("invalid protocol %s", protocol))
			continue
		}
		deployment, ok := c.Deployments[protocol]
		if !ok {
			errors = append(errors, fmt.Sprintf("no deployment for protocol %s", protocol))
			continue
		}
		if err := deployment.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("%s deployment error: %v", protocol, err))
		}
	}

	if c.FlashLiquidator {
		if len(c.LiquidatorAddresses) == 0 {
			errors = append(errors, "no liquidator addresses found")
		}
		if len(c.LiquidatorAddresses) != len(c.Protocols) {
			errors = append(errors, "number of protocols and liquidator addresses must be the same")
		}
	}
	for _, address := range c.LiquidatorAddresses {
		if !common.IsHexAddress(address) {
			errors = append(errors, fmt.Sprintf("invalid liquidator address %s", address))
		}
	}

	if _, err := c.Threshold(); err != nil {
		errors = append(errors, fmt.Sprintf("profitable_threshold: %v", err))
	}
	minHF, minErr := c.MinHealthFactorWad()
	if minErr != nil {
		errors = append(errors, fmt.Sprintf("min_health_factor: %v", minErr))
	}
	maxHF, maxErr := c.MaxHealthFactorWad()
	if maxErr != nil {
		errors = append(errors, fmt.Sprintf("max_health_factor: %v", maxErr))
	}
	if minErr == nil && maxErr == nil && minHF.Cmp(maxHF) >= 0 {
		errors = append(errors, "min_health_factor must be below max_health_factor")
	}
	if _, err := c.GasPriceWei(); err != nil {
		errors = append(errors, fmt.Sprintf("gas_price: %v", err))
	}

	if c.BatchSize <= 0 {
		errors = append(errors, "batch_size must be positive")
	}
	if c.IndexerBatchSize <= 0 {
		errors = append(errors, "indexer_batch_size must be positive")
	}
	if c.DelaySeconds < 0 {
		errors = append(errors, "delay cannot be negative")
	}
	if c.SlippageTolerance < 0 || c.SlippageTolerance >= 10_000 {
		errors = append(errors, "slippage_tolerance must be in [0, 10000) bps")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (p *ProtocolConfig) Validate() error {
	for name, address := range map[string]string{
		"pool":           p.Pool,
		"data provider":  p.DataProvider,
		"oracle":         p.Oracle,
		"wrapped native": p.WrappedNative,
	} {
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%s address %q is invalid", name, address)
		}
	}
	if p.GraphURL == "" && len(p.Users) == 0 {
		return fmt.Errorf("graph url or users must be specified")
	}
	for _, user := range p.Users {
		if !common.IsHexAddress(user) {
			return fmt.Errorf("user %q is invalid", user)
		}
	}
	for _, market := range p.Markets {
		if !common.IsHexAddress(market) {
			return fmt.Errorf("market %q is invalid", market)
		}
	}
	for market, underlying := range p.Underlyings {
		if !common.IsHexAddress(market) || !common.IsHexAddress(underlying) {
			return fmt.Errorf("underlying override %s=%s is invalid", market, underlying)
		}
	}
	return nil
}

func isAvailable(protocol string) bool {
	for _, p := range AvailableProtocols {
		if p == protocol {
			return true
		}
	}
	return false
}

// Threshold is the profit threshold in oracle USD units
func (c *Config) Threshold() (*big.Int, error) {
	return math.ParseUnits(c.ProfitableThreshold, USDDecimals)
}

func (c *Config) MinHealthFactorWad() (*big.Int, error) {
	return math.ParseUnits(c.MinHealthFactor, HealthFactorDecimals)
}

func (c *Config) MaxHealthFactorWad() (*big.Int, error) {
	return math.ParseUnits(c.MaxHealthFactor, HealthFactorDecimals)
}

// GasPriceWei converts the gwei gas price; nil means use the node price
func (c *Config) GasPriceWei() (*big.Int, error) {
	if c.GasPrice == "" {
		return nil, nil
	}
	return math.ParseUnits(c.GasPrice, GasPriceDecimals)
}

func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// LiquidatorAddress returns the flash liquidator paired with protocol index i
func (c *Config) LiquidatorAddress(i int) common.Address {
	if !c.FlashLiquidator || i >= len(c.LiquidatorAddresses) {
		return common.Address{}
	}
	return common.HexToAddress(c.LiquidatorAddresses[i])
}

// Addresses parses a list of hex addresses already checked by Validate
func Addresses(values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for _, v := range values {
		out = append(out, common.HexToAddress(v))
	}
	return out
}

// AddressMap parses a hex address map already checked by Validate
func AddressMap(values map[string]string) map[common.Address]common.Address {
	out := make(map[common.Address]common.Address, len(values))
	for k, v := range values {
		out[common.HexToAddress(k)] = common.HexToAddress(v)
	}
	return out
}

// LoadConfig reads cfgFile over the defaults, then applies .env and the
// environment through loader. A missing default file is not an error.
func LoadConfig(cfgFile string, loader Loader) (*Config, error) {
	config := DefaultConfig()

	explicit := cfgFile != ""
	if !explicit {
		cfgFile = DefaultConfigFile
	}
	if err := readFile(cfgFile, config); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := ApplyEnv(config, loader); err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	return config, nil
}

func readFile(cfgFile string, config *Config) error {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}

	defaults := config.Deployments
	config.Deployments = nil
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	if config.Deployments == nil {
		config.Deployments = make(map[string]ProtocolConfig, len(defaults))
	}

	// deployments in the file extend the built-in ones field by field
	for name, base := range defaults {
		override, ok := config.Deployments[name]
		if !ok {
			config.Deployments[name] = base
			continue
		}
		config.Deployments[name] = mergeDeployment(base, override)
	}
	return nil
}

func mergeDeployment(base, override ProtocolConfig) ProtocolConfig {
	if override.Pool != "" {
		base.Pool = override.Pool
	}
	if override.DataProvider != "" {
		base.DataProvider = override.DataProvider
	}
	if override.Oracle != "" {
		base.Oracle = override.Oracle
	}
	if override.GraphURL != "" {
		base.GraphURL = override.GraphURL
	}
	if override.WrappedNative != "" {
		base.WrappedNative = override.WrappedNative
	}
	if override.Stablecoins != nil {
		base.Stablecoins = override.Stablecoins
	}
	if override.Markets != nil {
		base.Markets = override.Markets
	}
	if override.Underlyings != nil {
		base.Underlyings = override.Underlyings
	}
	if override.Users != nil {
		base.Users = override.Users
	}
	return base
}

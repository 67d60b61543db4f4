package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/liquidator/cmd/bot"
	"github.com/michaelpento.lv/liquidator/config"
	"github.com/michaelpento.lv/liquidator/dex/uniswap"
	"github.com/michaelpento.lv/liquidator/fetcher"
	"github.com/michaelpento.lv/liquidator/flashbots"
	"github.com/michaelpento.lv/liquidator/gas"
	"github.com/michaelpento.lv/liquidator/handler"
	"github.com/michaelpento.lv/liquidator/protocol/aave"
	"github.com/michaelpento.lv/liquidator/utils/metrics"
)

const metricsNamespace = "liquidator"

// stack is everything a command needs once the configuration is loaded
type stack struct {
	cfg      *config.Config
	client   *ethclient.Client
	registry *prometheus.Registry
	bots     []*bot.Bot
}

func (s *stack) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func loadConfig(logger *zap.Logger) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}
	cfg, err := config.LoadConfig(cfgFile, config.EnvLoader{})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildStack dials the node and assembles one bot per configured protocol
func buildStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stack, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	s := &stack{cfg: cfg, client: client, registry: prometheus.NewRegistry()}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	key, signer, err := signerFromConfig(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	var sender handler.TxSender
	if cfg.FlashbotsRelay != "" && key != nil {
		authKey, err := relayAuthKey(cfg, key)
		if err != nil {
			s.Close()
			return nil, err
		}
		relay := flashbots.NewClient(cfg.FlashbotsRelay, authKey, logger.With(zap.String("component", "flashbots")))
		relay.BlockNumber = client.BlockNumber
		sender = relay
		logger.Info("Sending liquidations through relay", zap.String("relay", cfg.FlashbotsRelay))
	}

	override, err := settingsOverride(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	estimator := gas.NewEstimator(client, override.GasPrice, gas.DefaultRefreshInterval, logger)

	for i, name := range cfg.Protocols {
		b, err := s.buildBot(i, name, signer, sender, estimator, override, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up %s: %w", name, err)
		}
		s.bots = append(s.bots, b)
	}
	return s, nil
}

func (s *stack) buildBot(i int, name string, signer *bind.TransactOpts, sender handler.TxSender, estimator *gas.Estimator, override bot.SettingsOverride, logger *zap.Logger) (*bot.Bot, error) {
	cfg := s.cfg
	deployment := cfg.Deployments[name]
	plog := logger.With(zap.String("protocol", name))

	markets := config.Addresses(deployment.Markets)
	underlyings := config.AddressMap(deployment.Underlyings)

	adapter, err := aave.NewAdapter(s.client, &aave.Config{
		Pool:         common.HexToAddress(deployment.Pool),
		DataProvider: common.HexToAddress(deployment.DataProvider),
		Oracle:       common.HexToAddress(deployment.Oracle),
		Markets:      markets,
		Underlyings:  underlyings,
	}, plog)
	if err != nil {
		return nil, err
	}

	users, err := userFetcher(deployment, markets, cfg.IndexerBatchSize, plog)
	if err != nil {
		return nil, err
	}

	native := common.HexToAddress(deployment.WrappedNative)
	paths := uniswap.NewPathBuilder(native, config.Addresses(deployment.Stablecoins), underlyings, cfg.SwapFees, cfg.DefaultPoolFee)

	h, err := handler.New(handler.Config{
		Backend: s.client,
		Signer:  signer,
		Sender:  sender,
		Metrics: metrics.NewHandlerMetrics(s.registry, metricsNamespace, name),
		Logger:  plog,
	}, handler.Selection{
		FlashLiquidator: cfg.LiquidatorAddress(i),
		Pool:            common.HexToAddress(deployment.Pool),
		Liquidator:      handler.DefaultLiquidatorOptions(),
		EOA:             handler.DefaultEOAOptions(),
	})
	if err != nil {
		return nil, err
	}

	return bot.New(bot.Dependencies{
		Name:        name,
		Adapter:     adapter,
		Fetcher:     users,
		Handler:     h,
		Paths:       paths,
		Gas:         estimator,
		NativeAsset: native,
		Markets:     markets,
		Metrics:     metrics.NewBotMetrics(s.registry, metricsNamespace, name),
	}, override, logger)
}

// userFetcher scans a configured watchlist when one is set and the indexer
// otherwise
func userFetcher(deployment config.ProtocolConfig, markets []common.Address, batchSize int, logger *zap.Logger) (fetcher.Fetcher, error) {
	if len(deployment.Users) > 0 {
		logger.Info("Scanning user watchlist", zap.Int("users", len(deployment.Users)))
		return &fetcher.StaticFetcher{
			Users:   config.Addresses(deployment.Users),
			Markets: markets,
		}, nil
	}
	return fetcher.NewGraphFetcher(deployment.GraphURL, batchSize, logger)
}

// signerFromConfig returns a nil signer in read-only mode or without a key
func signerFromConfig(cfg *config.Config) (*ecdsa.PrivateKey, *bind.TransactOpts, error) {
	if cfg.ReadOnly || cfg.PrivateKey == "" {
		return nil, nil, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(cfg.ChainID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return key, signer, nil
}

// relayAuthKey keeps the relay reputation off the funded key when a
// dedicated auth key is configured
func relayAuthKey(cfg *config.Config, signingKey *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if cfg.FlashbotsAuthKey == "" {
		return signingKey, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.FlashbotsAuthKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse flashbots auth key: %w", err)
	}
	return key, nil
}

func settingsOverride(cfg *config.Config) (bot.SettingsOverride, error) {
	threshold, err := cfg.Threshold()
	if err != nil {
		return bot.SettingsOverride{}, err
	}
	minHF, err := cfg.MinHealthFactorWad()
	if err != nil {
		return bot.SettingsOverride{}, err
	}
	maxHF, err := cfg.MaxHealthFactorWad()
	if err != nil {
		return bot.SettingsOverride{}, err
	}
	gasPrice, err := cfg.GasPriceWei()
	if err != nil {
		return bot.SettingsOverride{}, err
	}

	batchSize := cfg.BatchSize
	slippage := cfg.SlippageTolerance
	poolFee := cfg.DefaultPoolFee
	return bot.SettingsOverride{
		ProfitableThresholdUSD: threshold,
		BatchSize:              &batchSize,
		MinHealthFactor:        minHF,
		MaxHealthFactor:        maxHF,
		GasPrice:               gasPrice,
		SlippageTolerance:      &slippage,
		DefaultPoolFee:         &poolFee,
	}, nil
}

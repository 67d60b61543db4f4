package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLiquidator = "0x1111111111111111111111111111111111111111"
	testKey        = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

func baseEnv() MapLoader {
	return MapLoader{
		EnvRPC:       "http://localhost:8545",
		EnvGraphURLs: "https://indexer.example/aave",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := LoadConfig("", baseEnv())
	require.NoError(t, err)

	assert.Equal(t, []string{"aave"}, cfg.Protocols)
	assert.Equal(t, "https://indexer.example/aave", cfg.Deployments["aave"].GraphURL)
	assert.Equal(t, time.Duration(0), cfg.Delay())

	threshold, err := cfg.Threshold()
	require.NoError(t, err)
	assert.Equal(t, "10000000000", threshold.String())

	maxHF, err := cfg.MaxHealthFactorWad()
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", maxHF.String())

	gasPrice, err := cfg.GasPriceWei()
	require.NoError(t, err)
	assert.Nil(t, gasPrice)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liquidator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc: http://node:8545
protocols: [aave, spark]
batch_size: 5
delay: 30
gas_price: "25.5"
swap_fees:
  stable: 100
  classic: 500
  exotic: 10000
deployments:
  aave:
    graph_url: https://indexer.example/aave
  spark:
    graph_url: https://indexer.example/spark
    markets: ["0x4DEDf26112B3Ec8eC46e7E31EA5e123490B05B8B"]
    users: ["0x1111111111111111111111111111111111111111"]
`), 0o600))

	cfg, err := LoadConfig(path, MapLoader{EnvBatchSize: "7"})
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.RPC)
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Delay())
	assert.Equal(t, uint32(10000), cfg.SwapFees.Exotic)

	// file values extend the built-in deployment
	spark := cfg.Deployments["spark"]
	assert.Equal(t, DefaultDeployments()["spark"].Pool, spark.Pool)
	assert.Len(t, spark.Markets, 1)
	assert.Equal(t, []string{testLiquidator}, spark.Users)

	gasPrice, err := cfg.GasPriceWei()
	require.NoError(t, err)
	assert.Equal(t, "25500000000", gasPrice.String())
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), baseEnv())
	assert.ErrorContains(t, err, "failed to open config file")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     MapLoader
		wantErr []string
	}{
		{
			name: "Valid",
			env:  MapLoader{EnvPrivateKey: testKey},
		},
		{
			name:    "MissingRPC",
			env:     MapLoader{EnvRPC: ""},
			wantErr: []string{"rpc must be specified"},
		},
		{
			name:    "InvalidProtocol",
			env:     MapLoader{EnvProtocols: "compound", EnvGraphURLs: "https://indexer.example"},
			wantErr: []string{"invalid protocol compound"},
		},
		{
			name:    "DuplicateProtocol",
			env:     MapLoader{EnvProtocols: "aave,aave", EnvGraphURLs: "https://a.example,https://b.example"},
			wantErr: []string{"duplicate protocol aave"},
		},
		{
			name: "LiquidatorCountMismatch",
			env: MapLoader{
				EnvFlashLiquidator:     "true",
				EnvProtocols:           "aave,spark",
				EnvGraphURLs:           "https://a.example,https://b.example",
				EnvLiquidatorAddresses: testLiquidator,
			},
			wantErr: []string{"number of protocols and liquidator addresses must be the same"},
		},
		{
			name:    "FlashWithoutLiquidators",
			env:     MapLoader{EnvFlashLiquidator: "true"},
			wantErr: []string{"no liquidator addresses found"},
		},
		{
			name:    "InvalidLiquidatorAddress",
			env:     MapLoader{EnvLiquidatorAddresses: "0x1234"},
			wantErr: []string{"invalid liquidator address 0x1234"},
		},
		{
			name:    "InvalidKey",
			env:     MapLoader{EnvPrivateKey: "zz"},
			wantErr: []string{"private key is invalid"},
		},
		{
			name:    "InvalidAuthKey",
			env:     MapLoader{EnvFlashbotsAuthKey: "zz"},
			wantErr: []string{"flashbots auth key is invalid"},
		},
		{
			name:    "InvertedBand",
			env:     MapLoader{EnvMinHealthFactor: "1", EnvMaxHealthFactor: "0.5"},
			wantErr: []string{"min_health_factor must be below max_health_factor"},
		},
		{
			name: "CollectsAll",
			env:  MapLoader{EnvRPC: "", EnvBatchSize: "0", EnvProfitableThreshold: "-1"},
			wantErr: []string{
				"rpc must be specified",
				"batch_size must be positive",
				"profitable_threshold",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			env := baseEnv()
			for k, v := range tt.env {
				env[k] = v
			}
			require.NoError(t, ApplyEnv(cfg, env))

			err := cfg.ValidateConfig()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestDeploymentUsers(t *testing.T) {
	deployment := DefaultDeployments()["aave"]
	assert.ErrorContains(t, deployment.Validate(), "graph url or users must be specified")

	deployment.Users = []string{testLiquidator}
	assert.NoError(t, deployment.Validate())

	deployment.Users = append(deployment.Users, "0x1234")
	assert.ErrorContains(t, deployment.Validate(), `user "0x1234" is invalid`)
}

func TestApplyEnvErrors(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, MapLoader{
		EnvBatchSize:       "many",
		EnvFlashLiquidator: "sometimes",
		EnvGraphURLs:       "a,b",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE must be an integer")
	assert.Contains(t, err.Error(), "FLASH_LIQUIDATOR must be a boolean")
	assert.Contains(t, err.Error(), "graph urls")
}

func TestLiquidatorAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LiquidatorAddresses = []string{testLiquidator}

	assert.Equal(t, "0x0000000000000000000000000000000000000000", cfg.LiquidatorAddress(0).Hex())
	cfg.FlashLiquidator = true
	assert.Equal(t, testLiquidator, cfg.LiquidatorAddress(0).Hex())
	assert.Equal(t, "0x0000000000000000000000000000000000000000", cfg.LiquidatorAddress(1).Hex())
}

func TestGetEnvWithDefault(t *testing.T) {
	loader := MapLoader{"SET": "value", "EMPTY": ""}
	assert.Equal(t, "value", GetEnvWithDefault(loader, "SET", "x"))
	assert.Equal(t, "x", GetEnvWithDefault(loader, "EMPTY", "x"))
	assert.Equal(t, "x", GetEnvWithDefault(loader, "MISSING", "x"))
}

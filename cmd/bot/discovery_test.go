package bot

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/metrics"
)

func wad(numerator, denominator int64) *big.Int {
	out := new(big.Int).Mul(big.NewInt(numerator), big.NewInt(1e18))
	return out.Div(out, big.NewInt(denominator))
}

func newTestDiscovery(t *testing.T, f *pagedFetcher, adapter *fakeAdapter) (*Discovery, *metrics.BotMetrics, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.NewBotMetrics(prometheus.NewRegistry(), "test", "aave")
	delay := time.Millisecond
	settings := DefaultSettings().Merge(SettingsOverride{PageDelay: &delay})
	return NewDiscovery(f, adapter, settings, m, zap.New(core)), m, logs
}

func TestComputeLiquidableUsers(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.health[user(1)] = wad(9, 10)
	adapter.health[user(2)] = wad(1, 1)
	adapter.health[user(4)] = wad(3, 2)
	adapter.health[user(5)] = wad(1, 2)

	f := &pagedFetcher{pages: [][]common.Address{
		{user(1), user(2), user(3)},
		{user(1), user(4)},
		{user(5)},
	}}
	d, m, _ := newTestDiscovery(t, f, adapter)

	users, err := d.ComputeLiquidableUsers(context.Background())
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, user(1), users[0].Address)
	assert.Equal(t, wad(9, 10).String(), users[0].HealthFactor.String())
	assert.Equal(t, user(5), users[1].Address)

	assert.Equal(t, []string{"", "0", "1"}, f.cursors)
	// the duplicate on page two is not read again
	assert.Equal(t, 5, adapter.healthCalls)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.UsersScanned))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.UsersLiquidable))
}

func TestWalkSkipsEmptyPages(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.health[user(3)] = wad(1, 2)

	f := &pagedFetcher{pages: [][]common.Address{
		{user(1)},
		{user(2)},
		{user(3)},
	}}
	d, _, _ := newTestDiscovery(t, f, adapter)

	var calls [][]types.UserHealth
	err := d.Walk(context.Background(), func(users []types.UserHealth) error {
		calls = append(calls, users)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, user(3), calls[0][0].Address)
}

func TestWalkDataSourceError(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.health[user(1)] = wad(1, 2)
	adapter.health[user(2)] = wad(1, 2)

	f := &pagedFetcher{
		pages:  [][]common.Address{{user(1)}, {user(2)}},
		failAt: 1,
		err:    &types.DataSourceError{Query: "users", Err: errors.New("subgraph down")},
	}
	d, m, _ := newTestDiscovery(t, f, adapter)

	var got []common.Address
	err := d.Walk(context.Background(), func(users []types.UserHealth) error {
		for _, u := range users {
			got = append(got, u.Address)
		}
		return nil
	})

	var dsErr *types.DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, []common.Address{user(1)}, got)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DataSourceFailures))
}

func TestWalkStopsOnStalledCursor(t *testing.T) {
	adapter := newFakeAdapter()
	f := &pagedFetcher{
		pages: [][]common.Address{{user(1)}, {user(2)}},
		stall: true,
	}
	d, _, logs := newTestDiscovery(t, f, adapter)

	_, err := d.ComputeLiquidableUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, f.cursors)
	assert.Equal(t, 1, logs.FilterMessage("Indexer cursor did not advance, stopping").Len())
}

func TestWalkCallbackError(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.health[user(1)] = wad(1, 2)
	f := &pagedFetcher{pages: [][]common.Address{{user(1)}, {user(2)}}}
	d, _, _ := newTestDiscovery(t, f, adapter)

	stop := errors.New("stop")
	err := d.Walk(context.Background(), func([]types.UserHealth) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Len(t, f.cursors, 1)
}

func TestWalkCancelled(t *testing.T) {
	adapter := newFakeAdapter()
	f := &pagedFetcher{pages: [][]common.Address{{user(1)}}}
	d, _, _ := newTestDiscovery(t, f, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Walk(ctx, func([]types.UserHealth) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, f.cursors)
}

func TestLowHealthFactorIsLogged(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.health[user(1)] = big.NewInt(1_000_050_000_000_000_000)
	f := &pagedFetcher{pages: [][]common.Address{{user(1)}}}
	d, _, logs := newTestDiscovery(t, f, adapter)

	users, err := d.ComputeLiquidableUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 1, logs.FilterMessage("Low health factor").Len())
}

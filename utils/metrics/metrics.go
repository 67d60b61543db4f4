package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BotMetrics tracks the liquidation run cycle
type BotMetrics struct {
	Runs               prometheus.Counter
	RunDuration        prometheus.Histogram
	State              prometheus.Gauge
	UsersScanned       prometheus.Counter
	UsersLiquidable    prometheus.Counter
	Dispatched         prometheus.Counter
	Unprofitable       prometheus.Counter
	UserErrors         *prometheus.CounterVec
	GasFallbacks       prometheus.Counter
	DataSourceFailures prometheus.Counter
}

// NewBotMetrics registers the bot metric set with reg
func NewBotMetrics(reg prometheus.Registerer, namespace, protocol string) *BotMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"protocol": protocol}

	return &BotMetrics{
		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "runs_total",
			Help:        "Total number of completed liquidation runs",
			ConstLabels: labels,
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Duration of a liquidation run",
			Buckets:     prometheus.ExponentialBuckets(0.5, 2, 10),
			ConstLabels: labels,
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_state",
			Help:        "Current run state (0 idle, 1 discovering, 2 aggregating, 3 sizing, 4 filtering, 5 dispatching)",
			ConstLabels: labels,
		}),
		UsersScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "users_scanned_total",
			Help:        "Total number of users returned by the indexer",
			ConstLabels: labels,
		}),
		UsersLiquidable: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "users_liquidable_total",
			Help:        "Total number of users inside the liquidation band",
			ConstLabels: labels,
		}),
		Dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "liquidations_dispatched_total",
			Help:        "Total number of liquidations handed to the handler",
			ConstLabels: labels,
		}),
		Unprofitable: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "liquidations_unprofitable_total",
			Help:        "Total number of liquidations skipped by the profitability gate",
			ConstLabels: labels,
		}),
		UserErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "user_errors_total",
			Help:        "Total number of per-user failures by stage",
			ConstLabels: labels,
		}, []string{"stage"}),
		GasFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "gas_estimate_fallbacks_total",
			Help:        "Total number of gas estimates replaced by the fallback limit",
			ConstLabels: labels,
		}),
		DataSourceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "data_source_failures_total",
			Help:        "Total number of indexer pages that could not be fetched",
			ConstLabels: labels,
		}),
	}
}

// HandlerMetrics tracks transactions sent by a liquidation handler
type HandlerMetrics struct {
	Submitted     prometheus.Counter
	Reverted      prometheus.Counter
	Failed        prometheus.Counter
	GasUsed       prometheus.Histogram
	GasEfficiency prometheus.Histogram
}

// NewHandlerMetrics registers the handler metric set with reg
func NewHandlerMetrics(reg prometheus.Registerer, namespace, handler string) *HandlerMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"handler": handler}

	return &HandlerMetrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transactions_submitted_total",
			Help:        "Total number of liquidation transactions submitted",
			ConstLabels: labels,
		}),
		Reverted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transactions_reverted_total",
			Help:        "Total number of mined liquidation transactions that reverted",
			ConstLabels: labels,
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transactions_failed_total",
			Help:        "Total number of liquidations that failed before mining",
			ConstLabels: labels,
		}),
		GasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "gas_used",
			Help:        "Gas used by mined liquidation transactions",
			Buckets:     prometheus.LinearBuckets(250_000, 250_000, 20),
			ConstLabels: labels,
		}),
		GasEfficiency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "gas_estimate_efficiency_percent",
			Help:        "Gas used as a percentage of the gas estimate",
			Buckets:     prometheus.LinearBuckets(10, 10, 10),
			ConstLabels: labels,
		}),
	}
}

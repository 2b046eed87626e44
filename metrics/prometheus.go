package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Credit Engine Metrics Collector
// Provides comprehensive metrics for monitoring

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all credit-engine metrics
type Collector struct {
	// Perp order metrics
	PerpOrdersTotal  *prometheus.CounterVec
	PerpOrderLatency *prometheus.HistogramVec
	PerpOrderVolume  *prometheus.CounterVec

	// Position metrics
	PositionsOpen  *prometheus.GaugeVec
	OpenInterest   *prometheus.GaugeVec
	UnrealizedPnL  *prometheus.GaugeVec
	RealizedPnL    *prometheus.CounterVec

	// Funding metrics
	FundingRate     *prometheus.GaugeVec
	AccruedPerUnit  *prometheus.GaugeVec

	// Counterparty vault metrics
	VaultLiquidity        *prometheus.GaugeVec
	VaultShares           *prometheus.GaugeVec
	VaultCollateralization *prometheus.GaugeVec
	VaultFlows            *prometheus.CounterVec
	VaultUnlocksPending   *prometheus.GaugeVec

	// Deleverage metrics
	DeleveragesTotal    *prometheus.CounterVec
	DeleverageValue     *prometheus.CounterVec

	// Dispatch metrics
	DispatchesTotal  *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec
	ActionsTotal     *prometheus.CounterVec
	HealthRejections *prometheus.CounterVec

	// Liquidation metrics
	LiquidationsTotal   *prometheus.CounterVec
	LiquidationRepaid   *prometheus.CounterVec
	LiquidationSeized   *prometheus.CounterVec
	LiquidationBonus    *prometheus.HistogramVec

	// Trigger order metrics
	TriggerOrdersLive     *prometheus.GaugeVec
	TriggerExecutionsTotal *prometheus.CounterVec
	KeeperFeesPaid        *prometheus.CounterVec

	// Debt metrics
	TotalDebtShares  *prometheus.GaugeVec
	BadDebtWrittenOff *prometheus.CounterVec

	// Health metrics
	AccountsLiquidatable prometheus.Gauge
	HealthQueryLatency   *prometheus.HistogramVec

	// WebSocket metrics
	WSConnectionsActive *prometheus.GaugeVec
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec

	// System metrics
	BlockHeight prometheus.Gauge
	BlockTime   *prometheus.HistogramVec
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

// newCollector creates a new metrics collector
func newCollector() *Collector {
	c := &Collector{}

	// Perp order metrics
	c.PerpOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "perps",
			Name:      "orders_total",
			Help:      "Total number of perp orders executed",
		},
		[]string{"denom", "direction", "kind"},
	)

	c.PerpOrderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditengine",
			Subsystem: "perps",
			Name:      "order_latency_ms",
			Help:      "Perp order execution latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"denom"},
	)

	c.PerpOrderVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "perps",
			Name:      "order_volume",
			Help:      "Total perp order volume in base units",
		},
		[]string{"denom"},
	)

	// Position metrics
	c.PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "positions",
			Name:      "open",
			Help:      "Number of open perp positions",
		},
		[]string{"denom", "side"},
	)

	c.OpenInterest = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "positions",
			Name:      "open_interest",
			Help:      "Open interest in base units",
		},
		[]string{"denom", "side"},
	)

	c.UnrealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "positions",
			Name:      "unrealized_pnl",
			Help:      "Aggregate trader unrealized PnL in base denom",
		},
		[]string{"denom"},
	)

	c.RealizedPnL = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "positions",
			Name:      "realized_pnl",
			Help:      "Total realized PnL settled in base denom",
		},
		[]string{"denom", "direction"},
	)

	// Funding metrics
	c.FundingRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "funding",
			Name:      "rate",
			Help:      "Current funding rate per day",
		},
		[]string{"denom"},
	)

	c.AccruedPerUnit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "funding",
			Name:      "accrued_per_unit",
			Help:      "Cumulative funding accrued per unit of size",
		},
		[]string{"denom"},
	)

	// Counterparty vault metrics
	c.VaultLiquidity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "vault",
			Name:      "liquidity",
			Help:      "Counterparty vault liquidity in base denom",
		},
		[]string{},
	)

	c.VaultShares = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "vault",
			Name:      "shares",
			Help:      "Total counterparty vault shares issued",
		},
		[]string{},
	)

	c.VaultCollateralization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "vault",
			Name:      "collateralization_ratio",
			Help:      "Vault withdrawal balance over trader obligations",
		},
		[]string{},
	)

	c.VaultFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "vault",
			Name:      "flows",
			Help:      "Vault deposit and withdrawal amounts in base denom",
		},
		[]string{"direction"},
	)

	c.VaultUnlocksPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "vault",
			Name:      "unlocks_pending",
			Help:      "Number of pending vault unlock entries",
		},
		[]string{},
	)

	// Deleverage metrics
	c.DeleveragesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "deleverage",
			Name:      "total",
			Help:      "Total forced deleverage closes",
		},
		[]string{"denom", "reason"},
	)

	c.DeleverageValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "deleverage",
			Name:      "value",
			Help:      "Total notional force-closed in base denom",
		},
		[]string{"denom"},
	)

	// Dispatch metrics
	c.DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Total action batches dispatched",
		},
		[]string{"status"},
	)

	c.DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditengine",
			Subsystem: "dispatch",
			Name:      "latency_ms",
			Help:      "Action batch dispatch latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{},
	)

	c.ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "dispatch",
			Name:      "actions_total",
			Help:      "Total actions executed by kind",
		},
		[]string{"kind"},
	)

	c.HealthRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "dispatch",
			Name:      "health_rejections",
			Help:      "Batches rejected by the post-dispatch health gate",
		},
		[]string{"reason"},
	)

	// Liquidation metrics
	c.LiquidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "liquidations",
			Name:      "total",
			Help:      "Total liquidations executed",
		},
		[]string{"request_kind"},
	)

	c.LiquidationRepaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "liquidations",
			Name:      "debt_repaid",
			Help:      "Total debt repaid through liquidations",
		},
		[]string{"denom"},
	)

	c.LiquidationSeized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "liquidations",
			Name:      "collateral_seized",
			Help:      "Total collateral seized through liquidations",
		},
		[]string{"denom"},
	)

	c.LiquidationBonus = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditengine",
			Subsystem: "liquidations",
			Name:      "bonus",
			Help:      "Liquidation bonus distribution",
			Buckets:   []float64{0.01, 0.02, 0.05, 0.1, 0.15, 0.2, 0.25},
		},
		[]string{},
	)

	// Trigger order metrics
	c.TriggerOrdersLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "triggers",
			Name:      "live",
			Help:      "Number of live trigger orders",
		},
		[]string{},
	)

	c.TriggerExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "triggers",
			Name:      "executions_total",
			Help:      "Total trigger order executions",
		},
		[]string{"status"},
	)

	c.KeeperFeesPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "triggers",
			Name:      "keeper_fees_paid",
			Help:      "Total keeper fees paid out",
		},
		[]string{"denom"},
	)

	// Debt metrics
	c.TotalDebtShares = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "debt",
			Name:      "total_shares",
			Help:      "Total debt shares issued per denom",
		},
		[]string{"denom"},
	)

	c.BadDebtWrittenOff = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "debt",
			Name:      "bad_debt_written_off",
			Help:      "Total bad debt written off per denom",
		},
		[]string{"denom"},
	)

	// Health metrics
	c.AccountsLiquidatable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "health",
			Name:      "accounts_liquidatable",
			Help:      "Number of accounts below the liquidation threshold",
		},
	)

	c.HealthQueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditengine",
			Subsystem: "health",
			Name:      "query_latency_ms",
			Help:      "Health computation latency in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		},
		[]string{},
	)

	// WebSocket metrics
	c.WSConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		},
		[]string{},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total WebSocket messages sent",
		},
		[]string{"channel"},
	)

	// API metrics
	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditengine",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "path"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditengine",
			Subsystem: "api",
			Name:      "rate_limit_hits",
			Help:      "Total rate limit hits",
		},
		[]string{"limit_type"},
	)

	// System metrics
	c.BlockHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditengine",
			Subsystem: "system",
			Name:      "block_height",
			Help:      "Current block height",
		},
	)

	c.BlockTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditengine",
			Subsystem: "system",
			Name:      "block_time_ms",
			Help:      "Block time in milliseconds",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000},
		},
		[]string{},
	)

	// Register all metrics
	c.registerAll()

	return c
}

// registerAll registers all metrics with Prometheus
func (c *Collector) registerAll() {
	prometheus.MustRegister(c.PerpOrdersTotal)
	prometheus.MustRegister(c.PerpOrderLatency)
	prometheus.MustRegister(c.PerpOrderVolume)

	prometheus.MustRegister(c.PositionsOpen)
	prometheus.MustRegister(c.OpenInterest)
	prometheus.MustRegister(c.UnrealizedPnL)
	prometheus.MustRegister(c.RealizedPnL)

	prometheus.MustRegister(c.FundingRate)
	prometheus.MustRegister(c.AccruedPerUnit)

	prometheus.MustRegister(c.VaultLiquidity)
	prometheus.MustRegister(c.VaultShares)
	prometheus.MustRegister(c.VaultCollateralization)
	prometheus.MustRegister(c.VaultFlows)
	prometheus.MustRegister(c.VaultUnlocksPending)

	prometheus.MustRegister(c.DeleveragesTotal)
	prometheus.MustRegister(c.DeleverageValue)

	prometheus.MustRegister(c.DispatchesTotal)
	prometheus.MustRegister(c.DispatchLatency)
	prometheus.MustRegister(c.ActionsTotal)
	prometheus.MustRegister(c.HealthRejections)

	prometheus.MustRegister(c.LiquidationsTotal)
	prometheus.MustRegister(c.LiquidationRepaid)
	prometheus.MustRegister(c.LiquidationSeized)
	prometheus.MustRegister(c.LiquidationBonus)

	prometheus.MustRegister(c.TriggerOrdersLive)
	prometheus.MustRegister(c.TriggerExecutionsTotal)
	prometheus.MustRegister(c.KeeperFeesPaid)

	prometheus.MustRegister(c.TotalDebtShares)
	prometheus.MustRegister(c.BadDebtWrittenOff)

	prometheus.MustRegister(c.AccountsLiquidatable)
	prometheus.MustRegister(c.HealthQueryLatency)

	prometheus.MustRegister(c.WSConnectionsActive)
	prometheus.MustRegister(c.WSMessagesTotal)

	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)
	prometheus.MustRegister(c.RateLimitHits)

	prometheus.MustRegister(c.BlockHeight)
	prometheus.MustRegister(c.BlockTime)
}

// ============ Recording Helpers ============

// RecordPerpOrder records a perp order execution
func (c *Collector) RecordPerpOrder(denom, direction, kind string, volume float64) {
	c.PerpOrdersTotal.WithLabelValues(denom, direction, kind).Inc()
	c.PerpOrderVolume.WithLabelValues(denom).Add(volume)
}

// RecordPerpOrderLatency records perp order execution latency
func (c *Collector) RecordPerpOrderLatency(denom string, latencyMs float64) {
	c.PerpOrderLatency.WithLabelValues(denom).Observe(latencyMs)
}

// RecordFunding records the funding snapshot of one market
func (c *Collector) RecordFunding(denom string, rate, accruedPerUnit float64) {
	c.FundingRate.WithLabelValues(denom).Set(rate)
	c.AccruedPerUnit.WithLabelValues(denom).Set(accruedPerUnit)
}

// RecordVault records the counterparty vault snapshot
func (c *Collector) RecordVault(liquidity, shares, collateralization float64) {
	c.VaultLiquidity.WithLabelValues().Set(liquidity)
	c.VaultShares.WithLabelValues().Set(shares)
	c.VaultCollateralization.WithLabelValues().Set(collateralization)
}

// RecordDeleverage records a forced deleverage close
func (c *Collector) RecordDeleverage(denom, reason string, value float64) {
	c.DeleveragesTotal.WithLabelValues(denom, reason).Inc()
	c.DeleverageValue.WithLabelValues(denom).Add(value)
}

// RecordDispatch records an action batch outcome
func (c *Collector) RecordDispatch(status string, latencyMs float64) {
	c.DispatchesTotal.WithLabelValues(status).Inc()
	c.DispatchLatency.WithLabelValues().Observe(latencyMs)
}

// RecordLiquidation records a liquidation event
func (c *Collector) RecordLiquidation(requestKind, debtDenom, requestDenom string, repaid, seized, bonus float64) {
	c.LiquidationsTotal.WithLabelValues(requestKind).Inc()
	c.LiquidationRepaid.WithLabelValues(debtDenom).Add(repaid)
	c.LiquidationSeized.WithLabelValues(requestDenom).Add(seized)
	c.LiquidationBonus.WithLabelValues().Observe(bonus)
}

// RecordTriggerExecution records a trigger order execution attempt
func (c *Collector) RecordTriggerExecution(status, feeDenom string, fee float64) {
	c.TriggerExecutionsTotal.WithLabelValues(status).Inc()
	if fee > 0 {
		c.KeeperFeesPaid.WithLabelValues(feeDenom).Add(fee)
	}
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// RecordWSConnection records WebSocket connection changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.WithLabelValues().Add(float64(delta))
}

// RecordWSMessage records a WebSocket message
func (c *Collector) RecordWSMessage(channel string) {
	c.WSMessagesTotal.WithLabelValues(channel).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}

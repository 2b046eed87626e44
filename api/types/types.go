package types

import (
	"context"
	"time"
)

// Market represents one perp market in the API response
type Market struct {
	Denom          string `json:"denom"`
	Enabled        bool   `json:"enabled"`
	OraclePrice    string `json:"oracle_price"`
	LongOI         string `json:"long_oi"`
	ShortOI        string `json:"short_oi"`
	FundingRate    string `json:"funding_rate"`
	AccruedPerUnit string `json:"accrued_per_unit"`
	TraderPnl      string `json:"trader_pnl"`
}

// Vault represents the counterparty vault in the API response
type Vault struct {
	TotalLiquidity        string `json:"total_liquidity"`
	TotalShares           string `json:"total_shares"`
	WithdrawalBalance     string `json:"withdrawal_balance"`
	ShareValue            string `json:"share_value"`
	CollateralizationRate string `json:"collateralization_rate,omitempty"`
}

// Position represents a perp position in the API response
type Position struct {
	AccountID         string `json:"account_id"`
	Denom             string `json:"denom"`
	Side              string `json:"side"`
	Size              string `json:"size"`
	OraclePrice       string `json:"oracle_price"`
	UnrealizedPnl     string `json:"unrealized_pnl"`
	UnrealizedFunding string `json:"unrealized_funding"`
	ClosingFee        string `json:"closing_fee"`
}

// Health represents an account health snapshot in the API response
type Health struct {
	AccountID                string `json:"account_id"`
	TotalCollateralValue     string `json:"total_collateral_value"`
	TotalDebtValue           string `json:"total_debt_value"`
	MaxLtvHealthFactor       string `json:"max_ltv_health_factor,omitempty"`
	LiquidationHealthFactor  string `json:"liquidation_health_factor,omitempty"`
	PerpsPnlProfit           string `json:"perps_pnl_profit"`
	PerpsPnlLoss             string `json:"perps_pnl_loss"`
	Liquidatable             bool   `json:"liquidatable"`
	AboveMaxLtv              bool   `json:"above_max_ltv"`
	HasPerps                 bool   `json:"has_perps"`
}

// LiquidatableAccount is one entry of the riskiest-first listing
type LiquidatableAccount struct {
	AccountID               string `json:"account_id"`
	LiquidationHealthFactor string `json:"liquidation_health_factor"`
}

// TriggerOrder represents a trigger order in the API response
type TriggerOrder struct {
	AccountID  string             `json:"account_id"`
	OrderID    uint64             `json:"order_id"`
	KeeperFee  string             `json:"keeper_fee"`
	Conditions []TriggerCondition `json:"conditions"`
	Actions    int                `json:"actions"`
	Executable bool               `json:"executable"`
	CreatedAt  int64              `json:"created_at"`
}

// TriggerCondition represents one price bound of a trigger order
type TriggerCondition struct {
	Denom      string `json:"denom"`
	Comparison string `json:"comparison"`
	Price      string `json:"price"`
}

// Service is the read surface the monitor API exposes over the chain state.
type Service interface {
	Markets(ctx context.Context) ([]*Market, error)
	Vault(ctx context.Context) (*Vault, error)
	AccountPositions(ctx context.Context, accountID string) ([]*Position, error)
	AccountHealth(ctx context.Context, accountID string) (*Health, error)
	Liquidatable(ctx context.Context, limit int) ([]*LiquidatableAccount, error)
	TriggerOrders(ctx context.Context, accountID string) ([]*TriggerOrder, error)
	ExecutableTriggerOrders(ctx context.Context) ([]*TriggerOrder, error)
}

// Helper function to get current timestamp in milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

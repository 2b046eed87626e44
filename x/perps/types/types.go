package types

import (
	"cosmossdk.io/math"

	"github.com/openalpha/credit-engine/pkg/smath"
)

const (
	// ModuleName is the module and module-account name.
	ModuleName = "perps"

	// StoreKey is the persistent store key.
	StoreKey = ModuleName

	// TStoreKey holds per-block settlement reconciliation records.
	TStoreKey = "transient_" + ModuleName

	// DefaultSharesPerAmount converts the first vault deposit into shares.
	DefaultSharesPerAmount = 1_000_000

	// SecondsPerDay scales funding velocity, which is quoted per day.
	SecondsPerDay = 86_400
)

// FundingState carries a market's funding parameters and accumulators. The
// velocity and skew scale are copied in from the market params so the
// accrual math never races a params change mid-period.
type FundingState struct {
	MaxFundingVelocity        math.LegacyDec
	SkewScale                 math.Int
	LastFundingRate           smath.SignedDec
	LastFundingAccruedPerUnit smath.SignedDec
}

// MarketState is the per-denom perp market: open interest on both sides and
// the entry-basis accumulators that make market-wide unrealized PnL a
// constant-time computation.
type MarketState struct {
	Denom             string
	Enabled           bool
	LongOI            math.Int
	ShortOI           math.Int
	TotalEntryCost    smath.SignedDec
	TotalEntryFunding smath.SignedDec
	Funding           FundingState
	LastUpdated       int64
}

// NewMarketState creates a fresh, enabled market with zeroed accumulators.
func NewMarketState(denom string, maxFundingVelocity math.LegacyDec, skewScale math.Int, now int64) *MarketState {
	return &MarketState{
		Denom:             denom,
		Enabled:           true,
		LongOI:            math.ZeroInt(),
		ShortOI:           math.ZeroInt(),
		TotalEntryCost:    smath.ZeroSignedDec(),
		TotalEntryFunding: smath.ZeroSignedDec(),
		Funding: FundingState{
			MaxFundingVelocity:        maxFundingVelocity,
			SkewScale:                 skewScale,
			LastFundingRate:           smath.ZeroSignedDec(),
			LastFundingAccruedPerUnit: smath.ZeroSignedDec(),
		},
		LastUpdated: now,
	}
}

// Skew returns long minus short open interest.
func (m *MarketState) Skew() (smath.SignedInt, error) {
	return smath.SignedIntFromInt(m.LongOI).Sub(smath.SignedIntFromInt(m.ShortOI))
}

// Position is one credit account's exposure in one market. Size is signed:
// positive long, negative short. Entry fields are weighted averages across
// increases; the per-unit funding snapshot prices accrued funding as
// size x (entry - current accumulator).
type Position struct {
	AccountID           string
	Denom               string
	Size                smath.SignedInt
	EntryPrice          math.LegacyDec
	EntryExecPrice      math.LegacyDec
	EntryAccruedFunding smath.SignedDec
	OpenedAt            int64
}

// NewPosition creates a position at the given entry pricing.
func NewPosition(accountID, denom string, size smath.SignedInt, oraclePrice, execPrice math.LegacyDec, accruedFunding smath.SignedDec, now int64) *Position {
	return &Position{
		AccountID:           accountID,
		Denom:               denom,
		Size:                size,
		EntryPrice:          oraclePrice,
		EntryExecPrice:      execPrice,
		EntryAccruedFunding: accruedFunding,
		OpenedAt:            now,
	}
}

// CostBasis returns size x entry exec price, the position's contribution to
// the market's TotalEntryCost accumulator.
func (p *Position) CostBasis() (smath.SignedDec, error) {
	return p.Size.MulDec(p.EntryExecPrice)
}

// FundingBasis returns size x entry accrued funding, the position's
// contribution to the market's TotalEntryFunding accumulator.
func (p *Position) FundingBasis() (smath.SignedDec, error) {
	return p.EntryAccruedFunding.MulSignedInt(p.Size)
}

// PositionPnl is the realized result of closing (part of) a position.
type PositionPnl struct {
	ExecPrice      math.LegacyDec
	PricePnl       smath.SignedDec
	AccruedFunding smath.SignedDec
	OpeningFee     math.Int
	ClosingFee     math.Int
	Realized       smath.SignedDec
}

// VaultState tracks the counterparty vault's liquidity and issued shares.
type VaultState struct {
	TotalLiquidity math.Int
	TotalShares    math.Int
}

// NewVaultState returns an empty vault.
func NewVaultState() *VaultState {
	return &VaultState{
		TotalLiquidity: math.ZeroInt(),
		TotalShares:    math.ZeroInt(),
	}
}

// VaultDeposit is one account's live (not unlocking) vault shares.
type VaultDeposit struct {
	AccountID string
	Shares    math.Int
}

// UnlockState is one pending vault unlock. Shares stay owned by the account
// but cannot be re-deposited; they convert to liquidity only after
// CooldownEnd has passed.
type UnlockState struct {
	CreatedAt   int64
	CooldownEnd int64
	Shares      math.Int
}

// Matured reports whether the cooldown has elapsed at the given time.
func (u UnlockState) Matured(now int64) bool {
	return u.CooldownEnd <= now
}

// PendingSettlement reconciles a deleverage money transfer: phase one
// records the module balance and the requested change, phase two verifies
// the observed delta before the record is cleared.
type PendingSettlement struct {
	AccountID      string
	Denom          string
	PreCallBalance math.Int
	Change         smath.SignedInt
}

// RealizedPnl accumulates an account's realized flows in one market.
type RealizedPnl struct {
	AccountID      string
	Denom          string
	PricePnl       smath.SignedDec
	AccruedFunding smath.SignedDec
	Fees           math.Int
	Net            smath.SignedDec
}

// NewRealizedPnl returns a zeroed accumulator.
func NewRealizedPnl(accountID, denom string) *RealizedPnl {
	return &RealizedPnl{
		AccountID:      accountID,
		Denom:          denom,
		PricePnl:       smath.ZeroSignedDec(),
		AccruedFunding: smath.ZeroSignedDec(),
		Fees:           math.ZeroInt(),
		Net:            smath.ZeroSignedDec(),
	}
}

// PerpMarketParams are the per-denom market parameters served by the params
// provider. Value-denominated caps are in base-denom units.
type PerpMarketParams struct {
	Denom              string
	Enabled            bool
	MaxFundingVelocity math.LegacyDec
	SkewScale          math.Int
	OpeningFeeRate     math.LegacyDec
	ClosingFeeRate     math.LegacyDec
	MinPositionValue   math.Int
	MaxPositionValue   *math.Int
	MaxNetOIValue      math.Int
	MaxLongOIValue     math.Int
	MaxShortOIValue    math.Int
}

// PerpVaultParams govern the counterparty vault and deleveraging.
type PerpVaultParams struct {
	UnlockCooldown          int64
	MaxUnlocks              int
	MaxPositions            int
	TargetCollateralization math.LegacyDec
	DeleverageEnabled       bool
	VaultWithdrawEnabled    bool
}

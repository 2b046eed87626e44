package types

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ModuleName is the module and module-account name.
	ModuleName = "credit"

	// StoreKey is the persistent store key.
	StoreKey = ModuleName

	// DefaultDebtSharesPerCoinBorrowed converts the first borrow of a denom
	// into debt shares.
	DefaultDebtSharesPerCoinBorrowed = 1_000_000
)

// Config is the module-wide configuration, stored as a single row.
type Config struct {
	// Owner may update the config and write off bad debt.
	Owner string
	// BaseDenom prices keeper fees and perp settlement.
	BaseDenom string
	// RewardsCollector receives protocol liquidation fees.
	RewardsCollector string
	// KeeperFee is the floor a trigger order must escrow.
	KeeperFee KeeperFeeConfig
	// MaxTriggerOrders caps live trigger orders per account.
	MaxTriggerOrders int
	// MaxUnlockingPositions caps queued vault unlocks per position.
	MaxUnlockingPositions int
	// MaxSlippage bounds swap execution drift.
	MaxSlippage math.LegacyDec
	// PerpsLbRatio scales the extra liquidation bonus paid on perp losses.
	PerpsLbRatio math.LegacyDec
	// TargetHealthFactor is where liquidations aim to leave an account.
	TargetHealthFactor math.LegacyDec
	// AccountNftBurnCollateralCap is the residual balance value below which
	// an account token may still be burned.
	AccountNftBurnCollateralCap math.Int
}

// KeeperFeeConfig bounds the fee a trigger order pays its executor.
type KeeperFeeConfig struct {
	MinFee sdk.Coin
}

// DefaultConfig returns devnet defaults.
func DefaultConfig() Config {
	return Config{
		Owner:                       "",
		BaseDenom:                   "uusdc",
		RewardsCollector:            "",
		KeeperFee:                   KeeperFeeConfig{MinFee: sdk.NewCoin("uusdc", math.NewInt(1_000_000))},
		MaxTriggerOrders:            10,
		MaxUnlockingPositions:       10,
		MaxSlippage:                 math.LegacyNewDecWithPrec(5, 3),  // 0.5%
		PerpsLbRatio:                math.LegacyNewDecWithPrec(60, 2), // 60%
		TargetHealthFactor:          math.LegacyNewDecWithPrec(12, 1), // 1.2
		AccountNftBurnCollateralCap: math.NewInt(1000),
	}
}

// Validate checks config field sanity.
func (c Config) Validate() error {
	if c.BaseDenom == "" {
		return ErrInvalidConfig
	}
	if c.KeeperFee.MinFee.IsNil() || c.KeeperFee.MinFee.Amount.IsNegative() {
		return ErrInvalidConfig
	}
	if c.MaxTriggerOrders <= 0 || c.MaxUnlockingPositions <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxSlippage.IsNil() || c.MaxSlippage.IsNegative() || c.MaxSlippage.GTE(math.LegacyOneDec()) {
		return ErrInvalidConfig
	}
	if c.PerpsLbRatio.IsNil() || c.PerpsLbRatio.IsNegative() || c.PerpsLbRatio.GT(math.LegacyOneDec()) {
		return ErrInvalidConfig
	}
	if c.TargetHealthFactor.IsNil() || c.TargetHealthFactor.LT(math.LegacyOneDec()) {
		return ErrInvalidConfig
	}
	if c.AccountNftBurnCollateralCap.IsNil() || c.AccountNftBurnCollateralCap.IsNegative() {
		return ErrInvalidConfig
	}
	return nil
}

// UnlockEntry is one queued vault unlock. Shares leave the locked bucket
// when the request is made and become withdrawable at ReleasedAt.
type UnlockEntry struct {
	Id         uint64
	Amount     math.Int
	ReleasedAt int64
}

// Matured reports whether the entry can be exited at the given unix time.
func (u UnlockEntry) Matured(now int64) bool {
	return u.ReleasedAt <= now
}

// VaultPosition tracks one account's shares in one third-party vault across
// the three lifecycle buckets.
type VaultPosition struct {
	AccountID  string
	VaultDenom string
	Unlocked   math.Int
	Locked     math.Int
	Unlocking  []UnlockEntry
}

// NewVaultPosition creates an empty position.
func NewVaultPosition(accountID, vaultDenom string) *VaultPosition {
	return &VaultPosition{
		AccountID:  accountID,
		VaultDenom: vaultDenom,
		Unlocked:   math.ZeroInt(),
		Locked:     math.ZeroInt(),
	}
}

// UnlockingShares sums the queued unlock entries.
func (p *VaultPosition) UnlockingShares() math.Int {
	total := math.ZeroInt()
	for _, u := range p.Unlocking {
		total = total.Add(u.Amount)
	}
	return total
}

// TotalShares sums all three buckets.
func (p *VaultPosition) TotalShares() math.Int {
	return p.Unlocked.Add(p.Locked).Add(p.UnlockingShares())
}

// IsEmpty reports whether every bucket is drained; empty positions are
// pruned from the store.
func (p *VaultPosition) IsEmpty() bool {
	return p.Unlocked.IsZero() && p.Locked.IsZero() && len(p.Unlocking) == 0
}

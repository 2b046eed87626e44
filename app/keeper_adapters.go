package app

import (
	"fmt"
	"sort"
	"strconv"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	healthtypes "github.com/openalpha/credit-engine/x/health/types"
	perpstypes "github.com/openalpha/credit-engine/x/perps/types"
)

// The credit, perps and health modules each declare the collaborator
// interfaces they consume. On a devnet the collaborators (oracle, risk-params
// store, Red Bank, account-NFT registry, swap router, yield vaults) run as
// the in-memory adapters below; production wiring replaces them with the
// real external contracts behind the same interfaces.

// ============ Oracle ============

// DevnetOracle serves both pricing kinds from settable price tables. The
// liquidation feed falls back to the default feed when no dedicated price is
// set.
type DevnetOracle struct {
	prices    map[string]math.LegacyDec
	liqPrices map[string]math.LegacyDec
}

func NewDevnetOracle() *DevnetOracle {
	return &DevnetOracle{
		prices:    make(map[string]math.LegacyDec),
		liqPrices: make(map[string]math.LegacyDec),
	}
}

// SetPrice sets the default-feed price for a denom.
func (o *DevnetOracle) SetPrice(denom string, price math.LegacyDec) {
	o.prices[denom] = price
}

// SetLiquidationPrice sets the liquidation-feed price for a denom.
func (o *DevnetOracle) SetLiquidationPrice(denom string, price math.LegacyDec) {
	o.liqPrices[denom] = price
}

func (o *DevnetOracle) GetPrice(ctx sdk.Context, denom string) (math.LegacyDec, error) {
	price, ok := o.prices[denom]
	if !ok {
		return math.LegacyZeroDec(), healthtypes.ErrMissingPrice.Wrap(denom)
	}
	return price, nil
}

func (o *DevnetOracle) GetLiquidationPrice(ctx sdk.Context, denom string) (math.LegacyDec, error) {
	if price, ok := o.liqPrices[denom]; ok {
		return price, nil
	}
	return o.GetPrice(ctx, denom)
}

// ============ Risk Params ============

// DevnetParams is the risk-parameter store: spot asset params, perp market
// params, vault configs and the vault/deleverage governors, all settable.
type DevnetParams struct {
	assets       map[string]healthtypes.AssetParams
	perpMarkets  map[string]perpstypes.PerpMarketParams
	perpHealth   map[string]healthtypes.PerpHealthParams
	vaultConfigs map[string]healthtypes.VaultHealthConfig
	feeDiscounts map[string]math.LegacyDec
	vaultParams  perpstypes.PerpVaultParams
}

func NewDevnetParams() *DevnetParams {
	return &DevnetParams{
		assets:       make(map[string]healthtypes.AssetParams),
		perpMarkets:  make(map[string]perpstypes.PerpMarketParams),
		perpHealth:   make(map[string]healthtypes.PerpHealthParams),
		vaultConfigs: make(map[string]healthtypes.VaultHealthConfig),
		feeDiscounts: make(map[string]math.LegacyDec),
		vaultParams: perpstypes.PerpVaultParams{
			UnlockCooldown:          7 * 24 * 3600,
			MaxUnlocks:              10,
			MaxPositions:            8,
			TargetCollateralization: math.LegacyNewDecWithPrec(125, 2),
			DeleverageEnabled:       true,
			VaultWithdrawEnabled:    true,
		},
	}
}

func (p *DevnetParams) SetAssetParams(params healthtypes.AssetParams) {
	p.assets[params.Denom] = params
}

func (p *DevnetParams) SetPerpMarketParams(params perpstypes.PerpMarketParams) {
	p.perpMarkets[params.Denom] = params
}

func (p *DevnetParams) SetPerpHealthParams(params healthtypes.PerpHealthParams) {
	p.perpHealth[params.Denom] = params
}

func (p *DevnetParams) SetVaultHealthConfig(cfg healthtypes.VaultHealthConfig) {
	p.vaultConfigs[cfg.VaultDenom] = cfg
}

func (p *DevnetParams) SetFeeDiscount(accountID string, discount math.LegacyDec) {
	p.feeDiscounts[accountID] = discount
}

func (p *DevnetParams) SetPerpVaultParams(params perpstypes.PerpVaultParams) {
	p.vaultParams = params
}

func (p *DevnetParams) AssetParams(ctx sdk.Context, denom string) (healthtypes.AssetParams, bool) {
	params, ok := p.assets[denom]
	return params, ok
}

func (p *DevnetParams) PerpMarketParams(ctx sdk.Context, denom string) (perpstypes.PerpMarketParams, error) {
	params, ok := p.perpMarkets[denom]
	if !ok {
		return perpstypes.PerpMarketParams{}, perpstypes.ErrMarketNotFound.Wrap(denom)
	}
	return params, nil
}

func (p *DevnetParams) AllPerpMarketParams(ctx sdk.Context) ([]perpstypes.PerpMarketParams, error) {
	all := make([]perpstypes.PerpMarketParams, 0, len(p.perpMarkets))
	for _, params := range p.perpMarkets {
		all = append(all, params)
	}
	return all, nil
}

func (p *DevnetParams) PerpVaultParams(ctx sdk.Context) (perpstypes.PerpVaultParams, error) {
	return p.vaultParams, nil
}

func (p *DevnetParams) FeeDiscount(ctx sdk.Context, accountID string) (math.LegacyDec, error) {
	if discount, ok := p.feeDiscounts[accountID]; ok {
		return discount, nil
	}
	return math.LegacyZeroDec(), nil
}

func (p *DevnetParams) PerpHealthParams(ctx sdk.Context, denom string) (healthtypes.PerpHealthParams, bool) {
	params, ok := p.perpHealth[denom]
	return params, ok
}

func (p *DevnetParams) VaultHealthConfig(ctx sdk.Context, vaultDenom string) (healthtypes.VaultHealthConfig, bool) {
	cfg, ok := p.vaultConfigs[vaultDenom]
	return cfg, ok
}

// ============ Red Bank ============

// DevnetRedBank books borrows, repayments and lends at face value with no
// interest accrual. Good enough to drive the credit module's debt-share and
// deduct-payment flows on a devnet.
type DevnetRedBank struct {
	totalDebt  map[string]math.Int
	lent       map[string]math.Int // accountID:denom
	collateral map[string]sdk.Coins
	writtenOff map[string]math.Int
}

func NewDevnetRedBank() *DevnetRedBank {
	return &DevnetRedBank{
		totalDebt:  make(map[string]math.Int),
		lent:       make(map[string]math.Int),
		collateral: make(map[string]sdk.Coins),
		writtenOff: make(map[string]math.Int),
	}
}

func lendKey(accountID, denom string) string {
	return accountID + ":" + denom
}

func (r *DevnetRedBank) Borrow(ctx sdk.Context, denom string, amount math.Int) error {
	total, ok := r.totalDebt[denom]
	if !ok {
		total = math.ZeroInt()
	}
	r.totalDebt[denom] = total.Add(amount)
	return nil
}

func (r *DevnetRedBank) Repay(ctx sdk.Context, denom string, amount math.Int) error {
	total, ok := r.totalDebt[denom]
	if !ok || total.LT(amount) {
		return fmt.Errorf("repaying %s %s against %s outstanding", amount, denom, total)
	}
	r.totalDebt[denom] = total.Sub(amount)
	return nil
}

func (r *DevnetRedBank) TotalDebt(ctx sdk.Context, denom string) math.Int {
	total, ok := r.totalDebt[denom]
	if !ok {
		return math.ZeroInt()
	}
	return total
}

func (r *DevnetRedBank) Lend(ctx sdk.Context, accountID, denom string, amount math.Int) error {
	key := lendKey(accountID, denom)
	lent, ok := r.lent[key]
	if !ok {
		lent = math.ZeroInt()
	}
	r.lent[key] = lent.Add(amount)
	return nil
}

func (r *DevnetRedBank) Reclaim(ctx sdk.Context, accountID, denom string, amount math.Int) error {
	key := lendKey(accountID, denom)
	lent, ok := r.lent[key]
	if !ok || lent.LT(amount) {
		return fmt.Errorf("reclaiming %s %s against %s lent", amount, denom, lent)
	}
	remaining := lent.Sub(amount)
	if remaining.IsZero() {
		delete(r.lent, key)
	} else {
		r.lent[key] = remaining
	}
	return nil
}

func (r *DevnetRedBank) Lent(ctx sdk.Context, accountID, denom string) math.Int {
	lent, ok := r.lent[lendKey(accountID, denom)]
	if !ok {
		return math.ZeroInt()
	}
	return lent
}

func (r *DevnetRedBank) AllLent(ctx sdk.Context, accountID string) sdk.Coins {
	coins := sdk.NewCoins()
	prefix := accountID + ":"
	for key, amount := range r.lent {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			coins = coins.Add(sdk.NewCoin(key[len(prefix):], amount))
		}
	}
	return coins
}

func (r *DevnetRedBank) WriteOffBadDebt(ctx sdk.Context, denom string, amount math.Int) error {
	total, ok := r.totalDebt[denom]
	if !ok || total.LT(amount) {
		return fmt.Errorf("writing off %s %s against %s outstanding", amount, denom, total)
	}
	r.totalDebt[denom] = total.Sub(amount)
	written, ok := r.writtenOff[denom]
	if !ok {
		written = math.ZeroInt()
	}
	r.writtenOff[denom] = written.Add(amount)
	return nil
}

func (r *DevnetRedBank) UserCollateral(ctx sdk.Context, accountID string) []sdk.Coin {
	return r.collateral[accountID]
}

// ============ Account NFT Registry ============

// BurnGate is the credit-side check the registry consults before burning.
type BurnGate interface {
	AssertBurnAllowed(ctx sdk.Context, accountID string) error
}

// DevnetAccountNFT mints monotonically numbered account tokens and tracks
// their owners.
type DevnetAccountNFT struct {
	nextID uint64
	owners map[string]string
	gate   BurnGate
}

func NewDevnetAccountNFT() *DevnetAccountNFT {
	return &DevnetAccountNFT{owners: make(map[string]string)}
}

// SetBurnGate wires the credit keeper's burn-allowance check.
func (n *DevnetAccountNFT) SetBurnGate(gate BurnGate) {
	n.gate = gate
}

func (n *DevnetAccountNFT) Mint(ctx sdk.Context, owner string) (string, error) {
	n.nextID++
	accountID := strconv.FormatUint(n.nextID, 10)
	n.owners[accountID] = owner
	return accountID, nil
}

func (n *DevnetAccountNFT) OwnerOf(ctx sdk.Context, accountID string) (string, error) {
	owner, ok := n.owners[accountID]
	if !ok {
		return "", fmt.Errorf("account token %s not minted", accountID)
	}
	return owner, nil
}

func (n *DevnetAccountNFT) Burn(ctx sdk.Context, accountID string) error {
	if _, ok := n.owners[accountID]; !ok {
		return fmt.Errorf("account token %s not minted", accountID)
	}
	if n.gate != nil {
		if err := n.gate.AssertBurnAllowed(ctx, accountID); err != nil {
			return err
		}
	}
	delete(n.owners, accountID)
	return nil
}

// AllAccountIDs lists every minted account token in ascending order.
func (n *DevnetAccountNFT) AllAccountIDs(ctx sdk.Context) []string {
	ids := make([]string, 0, len(n.owners))
	for id := range n.owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseUint(ids[i], 10, 64)
		b, _ := strconv.ParseUint(ids[j], 10, 64)
		return a < b
	})
	return ids
}

// ============ Swap Router ============

// DevnetSwapper fills swaps at oracle prices less a flat spread.
type DevnetSwapper struct {
	oracle *DevnetOracle
	spread math.LegacyDec
}

func NewDevnetSwapper(oracle *DevnetOracle) *DevnetSwapper {
	return &DevnetSwapper{
		oracle: oracle,
		spread: math.LegacyNewDecWithPrec(3, 3), // 0.3%
	}
}

func (s *DevnetSwapper) SwapExactIn(ctx sdk.Context, coinIn sdk.Coin, denomOut string, minReceive math.Int) (sdk.Coin, error) {
	priceIn, err := s.oracle.GetPrice(ctx, coinIn.Denom)
	if err != nil {
		return sdk.Coin{}, err
	}
	priceOut, err := s.oracle.GetPrice(ctx, denomOut)
	if err != nil {
		return sdk.Coin{}, err
	}
	if !priceOut.IsPositive() {
		return sdk.Coin{}, healthtypes.ErrMissingPrice.Wrap(denomOut)
	}
	gross := priceIn.MulInt(coinIn.Amount).Quo(priceOut)
	amountOut := gross.Mul(math.LegacyOneDec().Sub(s.spread)).TruncateInt()
	if amountOut.LT(minReceive) {
		return sdk.Coin{}, fmt.Errorf("swap returned %s %s, minimum %s", amountOut, denomOut, minReceive)
	}
	return sdk.NewCoin(denomOut, amountOut), nil
}

// ============ Yield Vaults ============

// devnetVault is one third-party vault converting underlying coins into
// shares at a fixed rate.
type devnetVault struct {
	underlyingDenom string
	sharesPerCoin   math.Int
	lockupSeconds   int64
}

// DevnetVaults serves the third-party yield vaults the credit module keeps
// positions in.
type DevnetVaults struct {
	vaults map[string]devnetVault
}

func NewDevnetVaults() *DevnetVaults {
	return &DevnetVaults{vaults: make(map[string]devnetVault)}
}

// RegisterVault adds a vault denom backed by an underlying denom.
func (v *DevnetVaults) RegisterVault(vaultDenom, underlyingDenom string, sharesPerCoin math.Int, lockupSeconds int64) {
	v.vaults[vaultDenom] = devnetVault{
		underlyingDenom: underlyingDenom,
		sharesPerCoin:   sharesPerCoin,
		lockupSeconds:   lockupSeconds,
	}
}

func (v *DevnetVaults) vault(vaultDenom string) (devnetVault, error) {
	vault, ok := v.vaults[vaultDenom]
	if !ok {
		return devnetVault{}, fmt.Errorf("vault %s not registered", vaultDenom)
	}
	return vault, nil
}

func (v *DevnetVaults) Deposit(ctx sdk.Context, vaultDenom string, coin sdk.Coin) (math.Int, error) {
	vault, err := v.vault(vaultDenom)
	if err != nil {
		return math.ZeroInt(), err
	}
	if coin.Denom != vault.underlyingDenom {
		return math.ZeroInt(), fmt.Errorf("vault %s takes %s, got %s", vaultDenom, vault.underlyingDenom, coin.Denom)
	}
	return coin.Amount.Mul(vault.sharesPerCoin), nil
}

func (v *DevnetVaults) Withdraw(ctx sdk.Context, vaultDenom string, shares math.Int) (sdk.Coin, error) {
	vault, err := v.vault(vaultDenom)
	if err != nil {
		return sdk.Coin{}, err
	}
	return sdk.NewCoin(vault.underlyingDenom, shares.Quo(vault.sharesPerCoin)), nil
}

func (v *DevnetVaults) Preview(ctx sdk.Context, vaultDenom string, shares math.Int) (sdk.Coin, error) {
	return v.Withdraw(ctx, vaultDenom, shares)
}

func (v *DevnetVaults) LockupSeconds(ctx sdk.Context, vaultDenom string) int64 {
	vault, err := v.vault(vaultDenom)
	if err != nil {
		return 0
	}
	return vault.lockupSeconds
}

func (v *DevnetVaults) ForceWithdraw(ctx sdk.Context, vaultDenom string, shares math.Int) (sdk.Coin, error) {
	return v.Withdraw(ctx, vaultDenom, shares)
}

package keeper

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// EndBlocker settles funding on every market once per block so accumulators
// never lag more than one block behind, even in markets without flow.
func (k *Keeper) EndBlocker(ctx sdk.Context) error {
	return k.RefreshFunding(ctx)
}

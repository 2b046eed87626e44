package keeper

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/perps/types"
)

type msgServer struct {
	keeper *Keeper
}

// NewMsgServerImpl returns an implementation of the perps MsgServer
func NewMsgServerImpl(keeper *Keeper) types.MsgServer {
	return &msgServer{keeper: keeper}
}

// Deleverage handles MsgDeleverage. Anyone may submit it; eligibility is
// enforced by the keeper.
func (m *msgServer) Deleverage(goCtx context.Context, msg *types.MsgDeleverage) (*types.MsgDeleverageResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	ctx := sdk.UnwrapSDKContext(goCtx)

	result, err := m.keeper.Deleverage(ctx, msg.AccountID, msg.Denom)
	if err != nil {
		return nil, err
	}
	return &types.MsgDeleverageResponse{RealizedPnl: result.Realized.String()}, nil
}

package keeper

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/credit/types"
)

type msgServer struct {
	keeper *Keeper
}

// NewMsgServerImpl returns an implementation of the credit MsgServer
func NewMsgServerImpl(keeper *Keeper) types.MsgServer {
	return &msgServer{keeper: keeper}
}

// DispatchActions handles MsgDispatchActions. Sent funds move into the
// module pool before the batch runs; Deposit actions book them onto the
// account ledger.
func (m *msgServer) DispatchActions(goCtx context.Context, msg *types.MsgDispatchActions) (*types.MsgDispatchActionsResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	ctx := sdk.UnwrapSDKContext(goCtx)

	if !msg.Funds.IsZero() {
		sender, err := sdk.AccAddressFromBech32(msg.Sender)
		if err != nil {
			return nil, err
		}
		if err := m.keeper.bankKeeper.SendCoinsFromAccountToModule(ctx, sender, types.ModuleName, msg.Funds); err != nil {
			return nil, err
		}
	}

	accountID, err := m.keeper.DispatchActions(ctx, msg.Sender, msg.AccountID, msg.AccountKind, msg.Actions, msg.Funds, true)
	if err != nil {
		return nil, err
	}
	return &types.MsgDispatchActionsResponse{AccountID: accountID}, nil
}

// ExecuteTriggerOrder handles MsgExecuteTriggerOrder. Anyone may submit it;
// the escrowed keeper fee pays the sender.
func (m *msgServer) ExecuteTriggerOrder(goCtx context.Context, msg *types.MsgExecuteTriggerOrder) (*types.MsgExecuteTriggerOrderResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	ctx := sdk.UnwrapSDKContext(goCtx)

	if err := m.keeper.ExecuteTriggerOrder(ctx, msg.Sender, msg.AccountID, msg.OrderID); err != nil {
		return nil, err
	}
	return &types.MsgExecuteTriggerOrderResponse{}, nil
}

// WriteOffBadDebt handles MsgWriteOffBadDebt. Owner-only.
func (m *msgServer) WriteOffBadDebt(goCtx context.Context, msg *types.MsgWriteOffBadDebt) (*types.MsgWriteOffBadDebtResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	ctx := sdk.UnwrapSDKContext(goCtx)

	written, err := m.keeper.WriteOffBadDebt(ctx, msg.Sender, msg.AccountID, msg.Denom)
	if err != nil {
		return nil, err
	}
	return &types.MsgWriteOffBadDebtResponse{WrittenOff: written}, nil
}

// UpdateConfig handles MsgUpdateConfig. Owner-only.
func (m *msgServer) UpdateConfig(goCtx context.Context, msg *types.MsgUpdateConfig) (*types.MsgUpdateConfigResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	ctx := sdk.UnwrapSDKContext(goCtx)

	cfg := m.keeper.GetConfig(ctx)
	if cfg.Owner != "" && msg.Sender != cfg.Owner {
		return nil, types.ErrUnauthorized
	}
	m.keeper.SetConfig(ctx, msg.Config)

	return &types.MsgUpdateConfigResponse{}, nil
}

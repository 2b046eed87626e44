package types

import (
	"context"
	"strconv"

	cdctypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	healthtypes "github.com/openalpha/credit-engine/x/health/types"
)

// RegisterInterfaces registers the module's interface types
func RegisterInterfaces(registry cdctypes.InterfaceRegistry) {
	registry.RegisterImplementations((*sdk.Msg)(nil),
		&MsgDispatchActions{},
		&MsgExecuteTriggerOrder{},
		&MsgWriteOffBadDebt{},
		&MsgUpdateConfig{},
	)
}

// Message types for the credit module
const (
	TypeMsgDispatchActions     = "dispatch_actions"
	TypeMsgExecuteTriggerOrder = "execute_trigger_order"
	TypeMsgWriteOffBadDebt     = "write_off_bad_debt"
	TypeMsgUpdateConfig        = "update_config"
)

// MsgServer defines the credit module's message service
type MsgServer interface {
	DispatchActions(context.Context, *MsgDispatchActions) (*MsgDispatchActionsResponse, error)
	ExecuteTriggerOrder(context.Context, *MsgExecuteTriggerOrder) (*MsgExecuteTriggerOrderResponse, error)
	WriteOffBadDebt(context.Context, *MsgWriteOffBadDebt) (*MsgWriteOffBadDebtResponse, error)
	UpdateConfig(context.Context, *MsgUpdateConfig) (*MsgUpdateConfigResponse, error)
}

// RegisterMsgServer registers the MsgServer to the configurator's MsgServer
func RegisterMsgServer(s interface{}, srv MsgServer) {
	// This is a placeholder - in production, this would use gRPC registration
	// For now, the messages are handled through the module's handler
}

// MsgDispatchActions runs an action batch against a credit account. An empty
// AccountID mints a fresh account token of the given kind for the sender.
// Funds must cover exactly the batch's Deposit actions.
type MsgDispatchActions struct {
	Sender      string                  `json:"sender"`
	AccountID   string                  `json:"account_id"`
	AccountKind healthtypes.AccountKind `json:"account_kind,omitempty"`
	Actions     []Action                `json:"actions"`
	Funds       sdk.Coins               `json:"funds"`
}

// Proto interface implementations for MsgDispatchActions
func (msg *MsgDispatchActions) Reset()         { *msg = MsgDispatchActions{} }
func (msg *MsgDispatchActions) String() string { return msg.Sender + "/" + msg.AccountID }
func (msg *MsgDispatchActions) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgDispatchActions
func (msg *MsgDispatchActions) XXX_MessageName() string {
	return "creditengine.credit.v1.MsgDispatchActions"
}

// ValidateBasic for MsgDispatchActions
func (msg *MsgDispatchActions) ValidateBasic() error {
	if msg.Sender == "" {
		return ErrUnauthorized
	}
	if msg.AccountID == "" && len(msg.Actions) == 0 {
		// a bare mint is fine
		return nil
	}
	for _, action := range msg.Actions {
		if err := action.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetSigners returns the signer addresses for MsgDispatchActions
func (msg *MsgDispatchActions) GetSigners() []sdk.AccAddress {
	sender, _ := sdk.AccAddressFromBech32(msg.Sender)
	return []sdk.AccAddress{sender}
}

// MsgDispatchActionsResponse returns the account the batch ran against,
// which is fresh when the message minted one.
type MsgDispatchActionsResponse struct {
	AccountID string `json:"account_id"`
}

// Proto interface implementations for MsgDispatchActionsResponse
func (msg *MsgDispatchActionsResponse) Reset()         { *msg = MsgDispatchActionsResponse{} }
func (msg *MsgDispatchActionsResponse) String() string { return msg.AccountID }
func (msg *MsgDispatchActionsResponse) ProtoMessage()  {}

// MsgExecuteTriggerOrder fires a stored trigger order. Anyone may submit it;
// the escrowed keeper fee pays the sender when every condition holds.
type MsgExecuteTriggerOrder struct {
	Sender    string `json:"sender"`
	AccountID string `json:"account_id"`
	OrderID   uint64 `json:"order_id"`
}

// Proto interface implementations for MsgExecuteTriggerOrder
func (msg *MsgExecuteTriggerOrder) Reset() { *msg = MsgExecuteTriggerOrder{} }
func (msg *MsgExecuteTriggerOrder) String() string {
	return msg.AccountID + "/" + strconv.FormatUint(msg.OrderID, 10)
}
func (msg *MsgExecuteTriggerOrder) ProtoMessage() {}

// XXX_MessageName returns the message type URL for MsgExecuteTriggerOrder
func (msg *MsgExecuteTriggerOrder) XXX_MessageName() string {
	return "creditengine.credit.v1.MsgExecuteTriggerOrder"
}

// ValidateBasic for MsgExecuteTriggerOrder
func (msg *MsgExecuteTriggerOrder) ValidateBasic() error {
	if msg.Sender == "" {
		return ErrUnauthorized
	}
	if msg.AccountID == "" {
		return ErrAccountNotFound
	}
	return nil
}

// GetSigners returns the signer addresses for MsgExecuteTriggerOrder
func (msg *MsgExecuteTriggerOrder) GetSigners() []sdk.AccAddress {
	sender, _ := sdk.AccAddressFromBech32(msg.Sender)
	return []sdk.AccAddress{sender}
}

// MsgExecuteTriggerOrderResponse is empty; the fee payout is in events.
type MsgExecuteTriggerOrderResponse struct{}

// Proto interface implementations for MsgExecuteTriggerOrderResponse
func (msg *MsgExecuteTriggerOrderResponse) Reset()         { *msg = MsgExecuteTriggerOrderResponse{} }
func (msg *MsgExecuteTriggerOrderResponse) String() string { return "" }
func (msg *MsgExecuteTriggerOrderResponse) ProtoMessage()  {}

// MsgWriteOffBadDebt erases one account's debt shares in one denom without
// repayment. Owner-only; skipped silently when the account still holds any
// coins or Red-Bank collateral.
type MsgWriteOffBadDebt struct {
	Sender    string `json:"sender"`
	AccountID string `json:"account_id"`
	Denom     string `json:"denom"`
}

// Proto interface implementations for MsgWriteOffBadDebt
func (msg *MsgWriteOffBadDebt) Reset()         { *msg = MsgWriteOffBadDebt{} }
func (msg *MsgWriteOffBadDebt) String() string { return msg.AccountID + "/" + msg.Denom }
func (msg *MsgWriteOffBadDebt) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgWriteOffBadDebt
func (msg *MsgWriteOffBadDebt) XXX_MessageName() string {
	return "creditengine.credit.v1.MsgWriteOffBadDebt"
}

// ValidateBasic for MsgWriteOffBadDebt
func (msg *MsgWriteOffBadDebt) ValidateBasic() error {
	if msg.Sender == "" {
		return ErrUnauthorized
	}
	if msg.AccountID == "" || msg.Denom == "" {
		return ErrInvalidActions
	}
	return nil
}

// GetSigners returns the signer addresses for MsgWriteOffBadDebt
func (msg *MsgWriteOffBadDebt) GetSigners() []sdk.AccAddress {
	sender, _ := sdk.AccAddressFromBech32(msg.Sender)
	return []sdk.AccAddress{sender}
}

// MsgWriteOffBadDebtResponse reports whether anything was erased.
type MsgWriteOffBadDebtResponse struct {
	WrittenOff bool `json:"written_off"`
}

// Proto interface implementations for MsgWriteOffBadDebtResponse
func (msg *MsgWriteOffBadDebtResponse) Reset()         { *msg = MsgWriteOffBadDebtResponse{} }
func (msg *MsgWriteOffBadDebtResponse) String() string { return strconv.FormatBool(msg.WrittenOff) }
func (msg *MsgWriteOffBadDebtResponse) ProtoMessage()  {}

// MsgUpdateConfig replaces the module config. Owner-only.
type MsgUpdateConfig struct {
	Sender string `json:"sender"`
	Config Config `json:"config"`
}

// Proto interface implementations for MsgUpdateConfig
func (msg *MsgUpdateConfig) Reset()         { *msg = MsgUpdateConfig{} }
func (msg *MsgUpdateConfig) String() string { return msg.Sender }
func (msg *MsgUpdateConfig) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgUpdateConfig
func (msg *MsgUpdateConfig) XXX_MessageName() string {
	return "creditengine.credit.v1.MsgUpdateConfig"
}

// ValidateBasic for MsgUpdateConfig
func (msg *MsgUpdateConfig) ValidateBasic() error {
	if msg.Sender == "" {
		return ErrUnauthorized
	}
	return msg.Config.Validate()
}

// GetSigners returns the signer addresses for MsgUpdateConfig
func (msg *MsgUpdateConfig) GetSigners() []sdk.AccAddress {
	sender, _ := sdk.AccAddressFromBech32(msg.Sender)
	return []sdk.AccAddress{sender}
}

// MsgUpdateConfigResponse is empty.
type MsgUpdateConfigResponse struct{}

// Proto interface implementations for MsgUpdateConfigResponse
func (msg *MsgUpdateConfigResponse) Reset()         { *msg = MsgUpdateConfigResponse{} }
func (msg *MsgUpdateConfigResponse) String() string { return "" }
func (msg *MsgUpdateConfigResponse) ProtoMessage()  {}

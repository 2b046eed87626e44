package types

import (
	"context"

	cdctypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// RegisterInterfaces registers the module's interface types
func RegisterInterfaces(registry cdctypes.InterfaceRegistry) {
	registry.RegisterImplementations((*sdk.Msg)(nil),
		&MsgDeleverage{},
	)
}

// Message types for the perps module
const (
	TypeMsgDeleverage = "deleverage"
)

// MsgServer defines the perps module's message service
type MsgServer interface {
	Deleverage(context.Context, *MsgDeleverage) (*MsgDeleverageResponse, error)
}

// RegisterMsgServer registers the MsgServer to the configurator's MsgServer
func RegisterMsgServer(s interface{}, srv MsgServer) {
	// This is a placeholder - in production, this would use gRPC registration
	// For now, the messages are handled through the module's handler
}

// MsgDeleverage force-closes one account's position in one market when the
// vault is under-collateralized or open interest caps are breached. Anyone
// may submit it.
type MsgDeleverage struct {
	Caller    string `json:"caller"`
	AccountID string `json:"account_id"`
	Denom     string `json:"denom"`
}

// Proto interface implementations for MsgDeleverage
func (msg *MsgDeleverage) Reset()         { *msg = MsgDeleverage{} }
func (msg *MsgDeleverage) String() string { return msg.AccountID + "/" + msg.Denom }
func (msg *MsgDeleverage) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgDeleverage
func (msg *MsgDeleverage) XXX_MessageName() string {
	return "creditengine.perps.v1.MsgDeleverage"
}

// ValidateBasic for MsgDeleverage
func (msg *MsgDeleverage) ValidateBasic() error {
	if msg.Caller == "" {
		return ErrUnauthorized
	}
	if msg.AccountID == "" || msg.Denom == "" {
		return ErrDeleverageInvalidPosition
	}
	return nil
}

// GetSigners returns the signer addresses for MsgDeleverage
func (msg *MsgDeleverage) GetSigners() []sdk.AccAddress {
	caller, _ := sdk.AccAddressFromBech32(msg.Caller)
	return []sdk.AccAddress{caller}
}

// MsgDeleverageResponse reports the realized result of the forced close.
type MsgDeleverageResponse struct {
	RealizedPnl string `json:"realized_pnl"`
}

// Proto interface implementations for MsgDeleverageResponse
func (msg *MsgDeleverageResponse) Reset()         { *msg = MsgDeleverageResponse{} }
func (msg *MsgDeleverageResponse) String() string { return msg.RealizedPnl }
func (msg *MsgDeleverageResponse) ProtoMessage()  {}

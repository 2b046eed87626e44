package api

import (
	"github.com/openalpha/credit-engine/api/types"
)

// Re-export types for convenience
type (
	Market              = types.Market
	Vault               = types.Vault
	Position            = types.Position
	Health              = types.Health
	LiquidatableAccount = types.LiquidatableAccount
	TriggerOrder        = types.TriggerOrder
	TriggerCondition    = types.TriggerCondition
	Service             = types.Service
)

// nowMillis returns current timestamp in milliseconds
func nowMillis() int64 {
	return types.NowMillis()
}

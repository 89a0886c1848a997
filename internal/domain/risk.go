package domain

import "github.com/shopspring/decimal"

// Position is the orchestrator's view of one open position. The position
// itself is owned by a separate tracking collaborator; only the fields
// needed for risk enforcement are carried here.
type Position struct {
	PositionID string
	Ticker     string
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	Value      decimal.Decimal // current market value
	PnL        decimal.Decimal // unrealized, signed
	Confidence float64         // confidence at entry, tiers the stop-loss
	OpenedAt   int64           // Unix ms
}

// RiskActionType classifies a forced action emitted by risk enforcement.
type RiskActionType string

const (
	ActionHaltTrading   RiskActionType = "HALT_TRADING"
	ActionClosePosition RiskActionType = "CLOSE_POSITION"
	ActionAlert         RiskActionType = "ALERT"
)

// RiskAction is one forced action from portfolio-level enforcement.
type RiskAction struct {
	Type       RiskActionType
	PositionID string // set for CLOSE_POSITION
	Ticker     string
	Reason     string
	Timestamp  int64 // Unix ms
}

// TradeDecision is the result of trade admission validation. MaxPositionSize
// is the binding output; Approved alone is not sufficient to size a trade.
type TradeDecision struct {
	Approved        bool
	MaxPositionSize decimal.Decimal
	Reason          string
}

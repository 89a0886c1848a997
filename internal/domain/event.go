package domain

// EventType classifies lifecycle events published on the event bus.
type EventType string

const (
	EventStateTransition  EventType = "STATE_TRANSITION"
	EventSignalProcessed  EventType = "SIGNAL_PROCESSED"
	EventTradeExecuted    EventType = "TRADE_EXECUTED"
	EventTradeClosed      EventType = "TRADE_CLOSED"
	EventWorkerScaledUp   EventType = "WORKER_SCALED_UP"
	EventWorkerScaledDown EventType = "WORKER_SCALED_DOWN"
	EventWorkerFailed     EventType = "WORKER_FAILED"
	EventWorkerRecovered  EventType = "WORKER_RECOVERED"
	EventAlertRaised      EventType = "ALERT_RAISED"
	EventTradingHalted    EventType = "TRADING_HALTED"
)

// Event is one lifecycle event. Delivery order is guaranteed per ticker
// only; cross-ticker ordering is unconstrained.
type Event struct {
	Type      EventType
	Ticker    string // empty for worker/system events
	WorkerID  string // empty for ticker events
	Reason    string
	Payload   any
	Timestamp int64 // Unix ms
}

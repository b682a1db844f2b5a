package event

import (
	"time"
)

// EventType discriminator for event payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAccountCreated
	EventTypeMarketCreated
	EventTypeMarketConfigured
	EventTypeCollateralConfigured
	EventTypeMarginDeposit
	EventTypeMarginWithdraw
	EventTypeOrderCommitted
	EventTypeOrderSettled
	EventTypeOrderCanceled
)

// Envelope wraps every event emitted by the engine.
type Envelope struct {
	// Global monotonic sequence assigned by the engine.
	Sequence int64

	// Event type discriminator.
	EventType EventType

	// Market context, empty for global events.
	MarketID string

	// Engine clock time when the event was produced.
	Timestamp time.Time

	// Typed payload, one of the structs below.
	Payload Payload
}

// Payload is implemented by every event payload.
type Payload interface {
	Type() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeAccountCreated:
		return "AccountCreated"
	case EventTypeMarketCreated:
		return "MarketCreated"
	case EventTypeMarketConfigured:
		return "MarketConfigured"
	case EventTypeCollateralConfigured:
		return "CollateralConfigured"
	case EventTypeMarginDeposit:
		return "MarginDeposit"
	case EventTypeMarginWithdraw:
		return "MarginWithdraw"
	case EventTypeOrderCommitted:
		return "OrderCommitted"
	case EventTypeOrderSettled:
		return "OrderSettled"
	case EventTypeOrderCanceled:
		return "OrderCanceled"
	default:
		return "Unknown"
	}
}

package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated     = "ORDER_CREATED"
	EventOrderConfirmed   = "ORDER_CONFIRMED"
	EventOnTheWay         = "ON_THE_WAY"
	EventDelivered        = "DELIVERED"
	EventSessionStarted   = "SESSION_STARTED"
	EventSessionEnding    = "SESSION_ENDING"
	EventPickupRequested  = "PICKUP_REQUESTED"
	EventOrderCompleted   = "ORDER_COMPLETED"
	EventOrderCanceled    = "ORDER_CANCELED"
	EventFreeExtension    = "FREE_EXTENSION"
	EventRebowlRequested  = "REBOWL_REQUESTED"
	EventRebowlInProgress = "REBOWL_IN_PROGRESS"
	EventRebowlDone       = "REBOWL_DONE"
	EventRebowlCanceled   = "REBOWL_CANCELED"
)

var statusEvent = map[Status]string{
	StatusConfirmed:        EventOrderConfirmed,
	StatusOnTheWay:         EventOnTheWay,
	StatusDelivered:        EventDelivered,
	StatusSessionActive:    EventSessionStarted,
	StatusSessionEnding:    EventSessionEnding,
	StatusWaitingForPickup: EventPickupRequested,
	StatusCompleted:        EventOrderCompleted,
	StatusCanceled:         EventOrderCanceled,
}

var rebowlEvent = map[RebowlStatus]string{
	RebowlRequested:  EventRebowlRequested,
	RebowlInProgress: EventRebowlInProgress,
	RebowlDone:       EventRebowlDone,
	RebowlCanceled:   EventRebowlCanceled,
}

// Extra keys carried by notifications.
const (
	ExtraETA        = "eta_text"
	ExtraReason     = "reason"
	ExtraAfterHours = "after_hours"
	ExtraEndsAt     = "session_ends_at"
	ExtraRebowlID   = "rebowl_id"
	ExtraTotal      = "total"
)

// Notification is emitted once per accepted transition. The dispatcher fans
// client initiated events out to operators as well.
type Notification struct {
	Event           string            `json:"event"`
	RecipientID     int64             `json:"recipient_id"`
	OrderID         string            `json:"order_id"`
	OrderRef        string            `json:"order_ref"`
	// Lang is the guest's language; empty means the dispatcher default.
	Lang            string            `json:"lang,omitempty"`
	ClientInitiated bool              `json:"client_initiated,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, n Notification)
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

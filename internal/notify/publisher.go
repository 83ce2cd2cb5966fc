package notify

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/gghookah/hookah-orders/internal/kafka"
	"github.com/gghookah/hookah-orders/internal/orders"
)

const EventVersion = 1

// Enqueuer is implemented by kafka.Producer.
type Enqueuer interface {
	Publish(key, value []byte, headers ...kafkago.Header) bool
}

// Publisher implements orders.Publisher on top of the Kafka producer. It
// never blocks a transition: when the producer cannot take the event in time
// the event is dropped and logged.
type Publisher struct {
	out      Enqueuer
	producer string
	log      zerolog.Logger
	now      func() time.Time
}

func NewPublisher(out Enqueuer, producer string, log zerolog.Logger) *Publisher {
	return &Publisher{out: out, producer: producer, log: log, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, n orders.Notification) {
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     n.Event,
		EventVersion:  EventVersion,
		OccurredAt:    p.now().UTC(),
		Producer:      p.producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: n.OrderID,
		Payload:       kafkax.MustMarshal(n),
	}
	if !p.out.Publish(orders.PartitionKey(n.OrderID), kafkax.MustMarshal(env), kafkax.EventHeaders(n.Event, EventVersion)...) {
		p.log.Warn().
			Str("event_id", env.EventID).
			Str("event", n.Event).
			Str("order_id", n.OrderID).
			Msg("notification dropped")
	}
}

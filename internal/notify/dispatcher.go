// Package notify carries lifecycle events from the API to guests and
// operators: a Kafka publisher on the producing side and the Dispatcher that
// renders and delivers them on the consuming side.
package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/gghookah/hookah-orders/internal/kafka"
	"github.com/gghookah/hookah-orders/internal/orders"
)

// Deduper is implemented by redisx.Dedup.
type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
}

type Dispatcher struct {
	Templates *Templates
	Sender    Sender
	Dedup     Deduper
	Operators []int64
	Lang      string
	Log       zerolog.Logger
}

// Handle is a kafka.Handler. Every message is committed: malformed payloads,
// duplicates and delivery failures are logged and dropped.
func (d *Dispatcher) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		d.Log.Error().Err(err).Int64("offset", m.Offset).Msg("malformed envelope")
		return nil
	}
	n, err := kafkax.UnwrapPayload[orders.Notification](env.Payload)
	if err != nil {
		d.Log.Error().Err(err).Str("event_id", env.EventID).Msg("malformed notification")
		return nil
	}
	l := d.Log.With().
		Str("event_id", env.EventID).
		Str("event", n.Event).
		Str("order_id", n.OrderID).
		Logger()

	if d.Dedup != nil && env.EventID != "" {
		first, err := d.Dedup.FirstSeen(ctx, env.EventID)
		switch {
		case err != nil:
			l.Warn().Err(err).Msg("dedup unavailable, delivering anyway")
		case !first:
			l.Debug().Msg("duplicate event skipped")
			return nil
		}
	}
	d.Dispatch(ctx, n, l)
	return nil
}

type delivery struct {
	chatID int64
	key    string
	lang   string
}

// recipients lists the guest and, for guest-initiated events, every operator.
// Keys with no loaded template are skipped.
func (d *Dispatcher) recipients(n orders.Notification) []delivery {
	lang := d.Lang
	if lang == "" {
		lang = DefaultLang
	}
	guestLang := lang
	if n.Lang != "" {
		guestLang = n.Lang
	}

	var out []delivery
	if key := TemplateKey(n); key != "" && n.RecipientID > 0 && d.Templates.Has(key) {
		out = append(out, delivery{chatID: n.RecipientID, key: key, lang: guestLang})
	}
	if n.ClientInitiated {
		if key := OperatorTemplateKey(n); key != "" && d.Templates.Has(key) {
			for _, id := range d.Operators {
				out = append(out, delivery{chatID: id, key: key, lang: lang})
			}
		}
	}
	return out
}

// Dispatch renders and sends n. It returns how many messages went out.
func (d *Dispatcher) Dispatch(ctx context.Context, n orders.Notification, l zerolog.Logger) int {
	targets := d.recipients(n)
	if len(targets) == 0 {
		l.Warn().Msg("no template or recipient for event")
		return 0
	}
	vars := make(map[string]string, len(n.Extra)+1)
	for k, v := range n.Extra {
		vars[k] = v
	}
	vars[VarOrderRef] = n.OrderRef

	sent := 0
	for _, t := range targets {
		text, err := d.Templates.Render(t.key, t.lang, vars)
		if err != nil {
			l.Error().Err(err).Str("template", t.key).Msg("render notification")
			continue
		}
		err = d.Sender.Send(ctx, Message{ChatID: t.chatID, Event: n.Event, OrderRef: n.OrderRef, Text: text})
		if err != nil {
			l.Warn().Err(err).Int64("chat_id", t.chatID).Msg("notification delivery failed")
			continue
		}
		sent++
	}
	l.Info().Int("sent", sent).Int("recipients", len(targets)).Msg("notification dispatched")
	return sent
}

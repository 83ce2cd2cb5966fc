package orders

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gghookah/hookah-orders/internal/inventory"
	"github.com/gghookah/hookah-orders/internal/settings"
)

// Audit actions.
const (
	ActionStatusChange      = "STATUS_CHANGE"
	ActionForceEnding       = "FORCE_ENDING"
	ActionComplete          = "COMPLETE"
	ActionAdjustTimer       = "ADJUST_TIMER"
	ActionAutoSessionEnding = "AUTO_SESSION_ENDING"
	ActionClientCancel      = "CLIENT_CANCEL"
	ActionClientPickup      = "CLIENT_READY_FOR_PICKUP"
	ActionClientFreeExtend  = "CLIENT_FREE_EXTEND"
	ActionStaffFreeExtend   = "FREE_EXTENSION_USED"
	ActionRebowlAutoCancel  = "REBOWL_CANCELED_WITH_ORDER"
	ActionOrderCreated      = "ORDER_CREATED"
	ActionRebowlSession     = "REBOWL_SESSION_RESET"
	ActionFeaturedMix       = "SET_FEATURED_MIX"
)

const (
	entityOrder  = "order"
	entityRebowl = "rebowl"
	entityMix    = "mix"
)

// Authorizer decides whether an actor may run staff operations.
type Authorizer interface {
	AuthorizeStaff(ctx context.Context, a Actor) error
}

// StatusCache is told about every committed status change.
type StatusCache interface {
	Invalidate(ctx context.Context, orderID string)
}

type Service struct {
	store  Store
	auth   Authorizer
	events Publisher
	cache  StatusCache
	now    func() time.Time
	log    zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithStatusCache(c StatusCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(store Store, auth Authorizer, events Publisher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		auth:   auth,
		events: events,
		now:    time.Now,
		log:    log.Logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// change is one guarded update planned from the current row.
type change struct {
	update          OrderUpdate
	action          string
	event           string
	clientInitiated bool
	extra           map[string]string
	details         map[string]any
}

type planFunc func(o Order, snap settings.Snapshot, now time.Time) (change, error)

// apply reads the order, plans a change and commits it through the status
// compare-and-swap together with its audit row. The notification goes out
// only after commit.
func (s *Service) apply(ctx context.Context, orderID string, actor Actor, plan planFunc) (Order, error) {
	now := s.now()
	var (
		out Order
		ch  change
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		snap, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		o, err := s.loadFor(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}
		if ch, err = plan(o, snap, now); err != nil {
			return err
		}
		ch.update.ID, ch.update.From, ch.update.At = o.ID, o.Status, now

		ok, err := tx.UpdateOrder(ctx, ch.update)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(ctx, tx, ch.update)
		}
		if err := tx.Audit(ctx, ch.audit(o.ID, actor, now)); err != nil {
			return err
		}
		if ch.update.To.Terminal() {
			if err := closeRebowl(ctx, tx, o.ID, actor, now); err != nil {
				return err
			}
		}
		out, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.committed(ctx, out, ch)
	return out, nil
}

// closeRebowl cancels the order's active rebowl, if any, when the order
// itself reaches a terminal status.
func closeRebowl(ctx context.Context, tx Tx, orderID string, actor Actor, now time.Time) error {
	r, err := tx.ActiveRebowl(ctx, orderID)
	if err != nil || r == nil {
		return err
	}
	note := "order closed"
	ok, err := tx.UpdateRebowl(ctx, RebowlUpdate{
		ID: r.ID, OrderID: orderID, From: r.Status, To: RebowlCanceled, At: now, Note: &note,
	})
	if err != nil {
		return err
	}
	if !ok {
		latest, err := tx.GetRebowl(ctx, r.ID)
		if err != nil {
			return err
		}
		return badMove(latest.Status, RebowlCanceled)
	}
	e := rebowlAudit(*r, r.Status, RebowlCanceled, actor, now)
	e.Action = ActionRebowlAutoCancel
	return tx.Audit(ctx, e)
}

func (s *Service) loadFor(ctx context.Context, tx Tx, orderID string, actor Actor) (Order, error) {
	o, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if actor.Kind == ActorClient && o.TelegramID != actor.ID {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return o, nil
}

// lostRace explains a compare-and-swap that matched no row.
func lostRace(ctx context.Context, tx Tx, u OrderUpdate) error {
	cur, err := tx.GetOrder(ctx, u.ID)
	if err != nil {
		return err
	}
	if u.RequireExtensionUnused && cur.Status == u.From && cur.FreeExtensionUsed {
		return precondition(RuleExtensionUsed)
	}
	return badMove(cur.Status, u.To)
}

func (c change) audit(orderID string, actor Actor, now time.Time) AuditEntry {
	details := map[string]any{"from": c.update.From, "to": c.update.To}
	for k, v := range c.details {
		details[k] = v
	}
	return AuditEntry{
		EntityType: entityOrder,
		EntityID:   orderID,
		Action:     c.action,
		Actor:      actor,
		Details:    details,
		At:         now,
	}
}

func (s *Service) committed(ctx context.Context, o Order, ch change) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, o.ID)
	}
	if ch.event == "" {
		return
	}
	s.events.Publish(ctx, Notification{
		Event:           ch.event,
		RecipientID:     o.TelegramID,
		OrderID:         o.ID,
		OrderRef:        o.Ref(),
		Lang:            o.Lang,
		ClientInitiated: ch.clientInitiated,
		Extra:           ch.extra,
	})
}

func (s *Service) authorize(ctx context.Context, a Actor) error {
	switch a.Kind {
	case ActorSystem:
		return nil
	case ActorStaff:
		return s.auth.AuthorizeStaff(ctx, a)
	}
	return ErrForbidden
}

type TransitionExtra struct {
	ETAText      string
	CancelReason string
}

// enter plans the standard effects of moving an order into target.
func enter(target Status, snap settings.Snapshot, now time.Time, extra TransitionExtra) change {
	ch := change{
		update: OrderUpdate{To: target, Stamp: StampFor(target)},
		action: ActionStatusChange,
		event:  statusEvent[target],
	}
	switch target {
	case StatusConfirmed:
		if extra.ETAText != "" {
			ch.update.ETAText = &extra.ETAText
			ch.extra = map[string]string{ExtraETA: extra.ETAText}
		}
	case StatusSessionActive:
		ends := now.Add(snap.SessionDuration)
		used := false
		ch.update.SessionEndsAt = &ends
		ch.update.FreeExtensionUsed = &used
		ch.extra = map[string]string{ExtraEndsAt: localClock(ends, snap)}
	case StatusSessionEnding:
		ch.extra = map[string]string{ExtraAfterHours: strconv.FormatBool(snap.Gate().IsAfterHours(now))}
	case StatusCanceled:
		if extra.CancelReason != "" {
			ch.update.CancelReason = &extra.CancelReason
			ch.extra = map[string]string{ExtraReason: extra.CancelReason}
		}
	}
	return ch
}

func localClock(t time.Time, snap settings.Snapshot) string {
	return t.In(snap.Location).Format("15:04")
}

// Transition moves an order one step along the forward chain. Staff may also
// cancel from any non-terminal status.
func (s *Service) Transition(ctx context.Context, orderID string, target Status, actor Actor, extra TransitionExtra) (Order, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return Order{}, err
	}
	if !target.Valid() {
		return Order{}, invalid("unknown status %q", target)
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if !CanTransition(o.Status, target) && !(target == StatusCanceled && !o.Status.Terminal()) {
			return change{}, badMove(o.Status, target)
		}
		return enter(target, snap, now, extra), nil
	})
}

// ForceEnding ends a session ahead of the timer.
func (s *Service) ForceEnding(ctx context.Context, orderID string, actor Actor) (Order, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return Order{}, err
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if o.Status != StatusSessionActive {
			return change{}, badMove(o.Status, StatusSessionEnding)
		}
		ch := enter(StatusSessionEnding, snap, now, TransitionExtra{})
		ch.action = ActionForceEnding
		return ch, nil
	})
}

// Complete closes an order from any session status.
func (s *Service) Complete(ctx context.Context, orderID string, actor Actor) (Order, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return Order{}, err
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if !o.Status.In(StatusSessionActive, StatusSessionEnding, StatusWaitingForPickup) {
			return change{}, badMove(o.Status, StatusCompleted)
		}
		ch := enter(StatusCompleted, snap, now, TransitionExtra{})
		ch.action = ActionComplete
		return ch, nil
	})
}

// MaxTimerAdjust bounds a single manual correction of a session deadline.
const MaxTimerAdjust = 24 * 60

// AdjustTimer shifts session_ends_at by minutes without changing the status.
func (s *Service) AdjustTimer(ctx context.Context, orderID string, minutes int, actor Actor) (Order, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return Order{}, err
	}
	if minutes == 0 || minutes > MaxTimerAdjust || minutes < -MaxTimerAdjust {
		return Order{}, invalid("minutes must be non-zero and within ±%d", MaxTimerAdjust)
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if !o.Status.In(StatusSessionActive, StatusSessionEnding) || o.SessionEndsAt == nil {
			return change{}, precondition(RuleSessionNotStarted)
		}
		return change{
			update:  OrderUpdate{To: o.Status, ShiftSession: time.Duration(minutes) * time.Minute},
			action:  ActionAdjustTimer,
			details: map[string]any{"minutes": minutes},
		}, nil
	})
}

// Get returns an order with its items and active rebowl. Clients only see
// their own orders.
func (s *Service) Get(ctx context.Context, orderID string, actor Actor) (OrderDetails, error) {
	if actor.Kind == ActorStaff {
		if err := s.authorize(ctx, actor); err != nil {
			return OrderDetails{}, err
		}
	}
	var d OrderDetails
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := s.loadFor(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}
		d.Order = o
		if d.Items, err = tx.OrderItems(ctx, o.ID); err != nil {
			return err
		}
		d.Rebowl, err = tx.ActiveRebowl(ctx, o.ID)
		return err
	})
	return d, err
}

// Availability reports free hookah units from the current settings and the
// units held by non-terminal orders.
func (s *Service) Availability(ctx context.Context) (inventory.Availability, error) {
	var a inventory.Availability
	err := s.store.InTx(ctx, func(tx Tx) error {
		snap, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		rented, err := tx.RentedHookahs(ctx)
		if err != nil {
			return err
		}
		a = inventory.Compute(snap.TotalHookahs, snap.MaxHookahsRegular, rented)
		return nil
	})
	return a, err
}

// SetFeaturedMix marks one mix featured and clears the flag everywhere else.
func (s *Service) SetFeaturedMix(ctx context.Context, mixID string, actor Actor) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	now := s.now()
	return s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.SetFeaturedMix(ctx, mixID); err != nil {
			return err
		}
		return tx.Audit(ctx, AuditEntry{
			EntityType: entityMix,
			EntityID:   mixID,
			Action:     ActionFeaturedMix,
			Actor:      actor,
			At:         now,
		})
	})
}

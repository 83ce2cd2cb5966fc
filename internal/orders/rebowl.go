package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestRebowl opens a rebowl request on the guest's running session. An
// empty mixID reuses the order's mix.
func (s *Service) RequestRebowl(ctx context.Context, orderID, mixID string, actor Actor) (RebowlRequest, error) {
	if actor.Kind != ActorClient {
		return RebowlRequest{}, ErrForbidden
	}
	now := s.now()
	var (
		r RebowlRequest
		o Order
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		snap, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if o, err = s.loadFor(ctx, tx, orderID, actor); err != nil {
			return err
		}
		if !o.Status.In(StatusSessionActive, StatusSessionEnding) {
			return precondition(RuleSessionNotStarted)
		}
		if snap.Gate().IsAfterHours(now) {
			return precondition(RuleAfterHours)
		}
		active, err := tx.ActiveRebowl(ctx, o.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return precondition(RuleActiveRebowlExists)
		}
		if mixID == "" {
			mixID = o.MixID
		} else {
			cat, err := tx.Catalog(ctx, []string{mixID}, nil)
			if err != nil {
				return err
			}
			if m, ok := cat.Mixes[mixID]; !ok || !m.Active {
				return &RuleError{Kind: ErrNotFound, Rule: RuleItemUnavailable}
			}
		}

		r = RebowlRequest{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			RequestedBy: actor.ID,
			MixID:       mixID,
			Price:       snap.RebowlPrice,
			AddMinutes:  int(snap.RebowlDuration / time.Minute),
			Status:      RebowlRequested,
			RequestedAt: now,
		}
		if err := tx.InsertRebowl(ctx, r); err != nil {
			return err
		}
		return tx.Audit(ctx, rebowlAudit(r, "", RebowlRequested, actor, now))
	})
	if err != nil {
		return RebowlRequest{}, err
	}
	s.committed(ctx, o, change{
		event:           EventRebowlRequested,
		clientInitiated: true,
		extra:           map[string]string{ExtraRebowlID: r.ID},
	})
	return r, nil
}

// TransitionRebowl moves a rebowl request on. DONE also restarts the parent
// session: the order is forced back to SESSION_ACTIVE with a fresh deadline
// and the guest's rebowl counter grows by one, all in the same transaction.
func (s *Service) TransitionRebowl(ctx context.Context, rebowlID, orderID string, target RebowlStatus, actor Actor, note string) (RebowlRequest, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return RebowlRequest{}, err
	}
	if !target.Valid() {
		return RebowlRequest{}, invalid("unknown rebowl status %q", target)
	}
	now := s.now()
	var (
		r RebowlRequest
		o Order
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetRebowl(ctx, rebowlID)
		if err != nil {
			return err
		}
		if cur.OrderID != orderID {
			return fmt.Errorf("rebowl %s on order %s: %w", rebowlID, orderID, ErrNotFound)
		}
		if !CanTransitionRebowl(cur.Status, target) {
			return badMove(cur.Status, target)
		}

		u := RebowlUpdate{ID: cur.ID, OrderID: orderID, From: cur.Status, To: target, At: now}
		if target == RebowlCanceled && note != "" {
			u.Note = &note
		}
		ok, err := tx.UpdateRebowl(ctx, u)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := tx.GetRebowl(ctx, rebowlID)
			if err != nil {
				return err
			}
			return badMove(latest.Status, target)
		}
		if err := tx.Audit(ctx, rebowlAudit(cur, cur.Status, target, actor, now)); err != nil {
			return err
		}

		if target == RebowlDone {
			if err := s.restartSession(ctx, tx, cur, actor, now); err != nil {
				return err
			}
		}
		if o, err = tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		r, err = tx.GetRebowl(ctx, rebowlID)
		return err
	})
	if err != nil {
		return RebowlRequest{}, err
	}
	s.committed(ctx, o, change{
		event: rebowlEvent[target],
		extra: map[string]string{ExtraRebowlID: r.ID},
	})
	return r, nil
}

// restartSession is the one sanctioned backward move to SESSION_ACTIVE. It
// bypasses the forward chain but still goes through the status
// compare-and-swap, and refuses orders that already finished.
func (s *Service) restartSession(ctx context.Context, tx Tx, r RebowlRequest, actor Actor, now time.Time) error {
	o, err := tx.GetOrder(ctx, r.OrderID)
	if err != nil {
		return err
	}
	if o.Status.Terminal() {
		return badMove(o.Status, StatusSessionActive)
	}
	ends := now.Add(time.Duration(r.AddMinutes) * time.Minute)
	ch := change{
		update:  OrderUpdate{ID: o.ID, From: o.Status, To: StatusSessionActive, At: now, SessionEndsAt: &ends},
		action:  ActionRebowlSession,
		details: map[string]any{"rebowl_id": r.ID},
	}
	ok, err := tx.UpdateOrder(ctx, ch.update)
	if err != nil {
		return err
	}
	if !ok {
		return lostRace(ctx, tx, ch.update)
	}
	if o.GuestID != "" {
		if err := tx.IncrementGuestRebowls(ctx, o.GuestID); err != nil {
			return err
		}
	}
	return tx.Audit(ctx, ch.audit(o.ID, actor, now))
}

func rebowlAudit(r RebowlRequest, from, to RebowlStatus, actor Actor, now time.Time) AuditEntry {
	details := map[string]any{"order_id": r.OrderID, "to": to}
	if from != "" {
		details["from"] = from
	}
	return AuditEntry{
		EntityType: entityRebowl,
		EntityID:   r.ID,
		Action:     "REBOWL_" + string(to),
		Actor:      actor,
		Details:    details,
		At:         now,
	}
}

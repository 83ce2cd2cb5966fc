package orders

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SweepExpiring moves SESSION_ACTIVE orders whose deadline falls within
// lookahead to SESSION_ENDING on behalf of the system actor. It returns the
// number of orders moved; orders another writer moved first are skipped.
func (s *Service) SweepExpiring(ctx context.Context, lookahead time.Duration) (int, error) {
	now := s.now()
	due, err := s.store.ExpiringSessions(ctx, now.Add(lookahead))
	if err != nil {
		return 0, fmt.Errorf("list expiring sessions: %w", err)
	}

	var (
		moved int
		errs  []error
	)
	for _, o := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.endSession(ctx, o.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		if !ok {
			s.log.Debug().Str("order_id", o.ID).Msg("session already moved, skipping")
			continue
		}
		moved++
	}
	return moved, errors.Join(errs...)
}

func (s *Service) endSession(ctx context.Context, orderID string, now time.Time) (bool, error) {
	var (
		out   Order
		ch    change
		moved bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		snap, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		ch = enter(StatusSessionEnding, snap, now, TransitionExtra{})
		ch.action = ActionAutoSessionEnding
		ch.update.ID, ch.update.From, ch.update.At = orderID, StatusSessionActive, now

		ok, err := tx.UpdateOrder(ctx, ch.update)
		if err != nil || !ok {
			return err
		}
		moved = true
		if err := tx.Audit(ctx, ch.audit(orderID, SystemActor, now)); err != nil {
			return err
		}
		out, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil || !moved {
		return false, err
	}
	s.committed(ctx, out, ch)
	return true, nil
}

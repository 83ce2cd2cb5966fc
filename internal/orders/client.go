package orders

import (
	"context"
	"time"

	"github.com/gghookah/hookah-orders/internal/settings"
)

type ClientActionName string

const (
	ActionNameCancel         ClientActionName = "cancel"
	ActionNameReadyForPickup ClientActionName = "ready_for_pickup"
	ActionNameFreeExtend     ClientActionName = "free_extend"
	ActionNameRequestRebowl  ClientActionName = "request_rebowl"
)

const clientCancelReason = "canceled by guest"

// ClientAction runs one guest action on the guest's own order. Each action
// checks its own preconditions before going through the shared status
// compare-and-swap.
func (s *Service) ClientAction(ctx context.Context, orderID string, action ClientActionName, actor Actor) error {
	if actor.Kind != ActorClient {
		return ErrForbidden
	}
	var err error
	switch action {
	case ActionNameCancel:
		_, err = s.CancelByClient(ctx, orderID, actor)
	case ActionNameReadyForPickup:
		_, err = s.ReadyForPickup(ctx, orderID, actor)
	case ActionNameFreeExtend:
		_, err = s.FreeExtend(ctx, orderID, actor)
	case ActionNameRequestRebowl:
		_, err = s.RequestRebowl(ctx, orderID, "", actor)
	default:
		err = invalid("unknown action %q", action)
	}
	return err
}

func (s *Service) CancelByClient(ctx context.Context, orderID string, actor Actor) (Order, error) {
	if actor.Kind != ActorClient {
		return Order{}, ErrForbidden
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if !o.Status.In(StatusNew, StatusConfirmed, StatusOnTheWay) {
			return change{}, badMove(o.Status, StatusCanceled)
		}
		ch := enter(StatusCanceled, snap, now, TransitionExtra{CancelReason: clientCancelReason})
		ch.action = ActionClientCancel
		ch.clientInitiated = true
		return ch, nil
	})
}

func (s *Service) ReadyForPickup(ctx context.Context, orderID string, actor Actor) (Order, error) {
	if actor.Kind != ActorClient {
		return Order{}, ErrForbidden
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if !o.Status.In(StatusSessionActive, StatusSessionEnding) {
			return change{}, badMove(o.Status, StatusWaitingForPickup)
		}
		ch := enter(StatusWaitingForPickup, snap, now, TransitionExtra{})
		ch.action = ActionClientPickup
		ch.clientInitiated = true
		return ch, nil
	})
}

// FreeExtend grants the one free extension of an ending session, on the
// guest's own order or by an operator. The guard on free_extension_used makes
// a repeated call fail instead of extending twice.
func (s *Service) FreeExtend(ctx context.Context, orderID string, actor Actor) (Order, error) {
	byGuest := actor.Kind == ActorClient
	action := ActionClientFreeExtend
	if !byGuest {
		if err := s.authorize(ctx, actor); err != nil {
			return Order{}, err
		}
		action = ActionStaffFreeExtend
	}
	return s.apply(ctx, orderID, actor, func(o Order, snap settings.Snapshot, now time.Time) (change, error) {
		if o.FreeExtensionUsed {
			return change{}, precondition(RuleExtensionUsed)
		}
		if o.Status != StatusSessionEnding {
			return change{}, badMove(o.Status, StatusSessionActive)
		}
		if snap.Gate().IsAfterHours(now) {
			return change{}, precondition(RuleAfterHours)
		}
		if o.SessionEndsAt == nil {
			return change{}, precondition(RuleSessionNotStarted)
		}
		used := true
		ends := o.SessionEndsAt.Add(snap.FreeExtension)
		return change{
			update: OrderUpdate{
				To:                     StatusSessionActive,
				ShiftSession:           snap.FreeExtension,
				FreeExtensionUsed:      &used,
				RequireExtensionUnused: true,
			},
			action:          action,
			event:           EventFreeExtension,
			clientInitiated: byGuest,
			extra:           map[string]string{ExtraEndsAt: localClock(ends, snap)},
			details:         map[string]any{"minutes": int(snap.FreeExtension / time.Minute)},
		}, nil
	})
}

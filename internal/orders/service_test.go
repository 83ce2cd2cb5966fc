package orders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gghookah/hookah-orders/internal/pricing"
)

const (
	operatorID int64 = 1001
	guestTG    int64 = 555
	guestPhone       = "+995555000111"
)

type fixture struct {
	store *memStore
	pub   *recordingPublisher
	cache *recordingCache
	svc   *Service
	now   time.Time
}

type recordingCache struct {
	mu  sync.Mutex
	ids []string
}

func (c *recordingCache) Invalidate(ctx context.Context, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, orderID)
}

// 19:00 in Tbilisi, inside business hours.
var evening = time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		pub:   &recordingPublisher{},
		cache: &recordingCache{},
		now:   evening,
	}
	f.svc = NewService(f.store, allowList{operatorID: true}, f.pub,
		WithClock(func() time.Time { return f.now }),
		WithStatusCache(f.cache),
		WithLogger(zerolog.Nop()),
	)
	f.store.guests[guestPhone] = Guest{ID: "guest-1", Phone: guestPhone, TelegramID: guestTG, Trust: TrustNormal}
	f.store.mixes["mix-1"] = pricing.Mix{ID: "mix-1", Name: "Mint", Active: true}
	f.store.mixes["mix-2"] = pricing.Mix{ID: "mix-2", Name: "Berry", Active: true}
	f.store.mixes["mix-off"] = pricing.Mix{ID: "mix-off", Name: "Old", Active: false}
	f.store.drinks["cola"] = pricing.Drink{ID: "cola", Name: "Cola", Price: 10, Active: true}
	return f
}

func (f *fixture) seed(status Status, mut ...func(*Order)) Order {
	o := Order{
		ID:          uuid.NewString(),
		GuestID:     "guest-1",
		TelegramID:  guestTG,
		Phone:       guestPhone,
		MixID:       "mix-1",
		HookahCount: 1,
		Status:      status,
		DepositType: DepositCash,
		CreatedAt:   f.now.Add(-time.Hour),
		UpdatedAt:   f.now.Add(-time.Hour),
	}
	if status.In(StatusSessionActive, StatusSessionEnding, StatusWaitingForPickup) {
		started := f.now.Add(-90 * time.Minute)
		ends := f.now.Add(30 * time.Minute)
		o.SessionStartedAt, o.SessionEndsAt = &started, &ends
	}
	for _, m := range mut {
		m(&o)
	}
	f.store.mu.Lock()
	f.store.orders[o.ID] = o
	f.store.mu.Unlock()
	return o
}

func endingIn(d time.Duration, now time.Time) func(*Order) {
	return func(o *Order) {
		ends := now.Add(d)
		o.SessionEndsAt = &ends
	}
}

func requireRule(t *testing.T, err error, kind error, rule string) *RuleError {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var re *RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, rule, re.Rule)
	return re
}

func TestTransitionRejectsMovesOffTheChain(t *testing.T) {
	ctx := context.Background()
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if CanTransition(from, to) || (to == StatusCanceled && !from.Terminal()) {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				f := newFixture(t)
				o := f.seed(from)

				_, err := f.svc.Transition(ctx, o.ID, to, Staff(operatorID), TransitionExtra{})
				require.ErrorIs(t, err, ErrInvalidTransition)

				var te *TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, string(from), te.From)
				assert.Equal(t, o, f.store.order(o.ID))
				assert.Empty(t, f.store.auditFor(o.ID))
				assert.Empty(t, f.pub.events())
			})
		}
	}
}

func TestTransitionFollowsForwardChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusNew)
	staff := Staff(operatorID)

	got, err := f.svc.Transition(ctx, o.ID, StatusConfirmed, staff, TransitionExtra{ETAText: "25 min"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, "25 min", got.PromisedETA)
	require.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, f.now, *got.ConfirmedAt)

	for _, s := range []Status{StatusOnTheWay, StatusDelivered} {
		f.now = f.now.Add(10 * time.Minute)
		_, err = f.svc.Transition(ctx, o.ID, s, staff, TransitionExtra{})
		require.NoError(t, err)
	}

	f.now = f.now.Add(5 * time.Minute)
	got, err = f.svc.Transition(ctx, o.ID, StatusSessionActive, staff, TransitionExtra{})
	require.NoError(t, err)
	require.NotNil(t, got.SessionStartedAt)
	require.NotNil(t, got.SessionEndsAt)
	assert.Equal(t, f.now, *got.SessionStartedAt)
	assert.Equal(t, f.now.Add(120*time.Minute), *got.SessionEndsAt)
	assert.False(t, got.FreeExtensionUsed)

	_, err = f.svc.Transition(ctx, o.ID, StatusSessionEnding, staff, TransitionExtra{})
	require.NoError(t, err)
	got, err = f.svc.Transition(ctx, o.ID, StatusCompleted, staff, TransitionExtra{})
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.Status.Terminal())

	assert.Equal(t, []string{
		EventOrderConfirmed, EventOnTheWay, EventDelivered,
		EventSessionStarted, EventSessionEnding, EventOrderCompleted,
	}, f.pub.names())

	audits := f.store.auditFor(o.ID)
	require.Len(t, audits, 6)
	assert.Equal(t, ActionStatusChange, audits[0].Action)
	assert.Equal(t, staff, audits[0].Actor)
	assert.Equal(t, StatusNew, audits[0].Details["from"])
	assert.Equal(t, StatusConfirmed, audits[0].Details["to"])

	events := f.pub.events()
	assert.Equal(t, "25 min", events[0].Extra[ExtraETA])
	assert.Equal(t, "21:25", events[3].Extra[ExtraEndsAt])
	assert.Equal(t, "false", events[4].Extra[ExtraAfterHours])
	assert.Equal(t, guestTG, events[0].RecipientID)
	assert.Equal(t, o.Ref(), events[0].OrderRef)
	assert.Len(t, f.cache.ids, 6)
}

func TestStaffMayCancelAnyOpenOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive)

	got, err := f.svc.Transition(ctx, o.ID, StatusCanceled, Staff(operatorID), TransitionExtra{CancelReason: "guest left"})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
	assert.Equal(t, "guest left", got.CancelReason)
	require.NotNil(t, got.CanceledAt)
	assert.Equal(t, []string{EventOrderCanceled}, f.pub.names())
	assert.Equal(t, "guest left", f.pub.events()[0].Extra[ExtraReason])

	_, err = f.svc.Transition(ctx, o.ID, StatusCanceled, Staff(operatorID), TransitionExtra{})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusNew)

	_, err := f.svc.Transition(ctx, o.ID, StatusConfirmed, Staff(42), TransitionExtra{})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Transition(ctx, o.ID, StatusConfirmed, Client(guestTG), TransitionExtra{})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Complete(ctx, o.ID, Client(guestTG))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Transition(ctx, o.ID, "SHIPPED", Staff(operatorID), TransitionExtra{})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Transition(ctx, uuid.NewString(), StatusConfirmed, Staff(operatorID), TransitionExtra{})
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, StatusNew, f.store.order(o.ID).Status)
	assert.Empty(t, f.pub.events())
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	for _, from := range []Status{StatusSessionActive, StatusSessionEnding, StatusWaitingForPickup} {
		f := newFixture(t)
		o := f.seed(from)
		got, err := f.svc.Complete(ctx, o.ID, Staff(operatorID))
		require.NoError(t, err, from)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, ActionComplete, f.store.auditFor(o.ID)[0].Action)
	}

	f := newFixture(t)
	o := f.seed(StatusDelivered)
	_, err := f.svc.Complete(ctx, o.ID, Staff(operatorID))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClientActions(t *testing.T) {
	ctx := context.Background()
	guest := Client(guestTG)

	t.Run("cancel before delivery", func(t *testing.T) {
		for _, from := range []Status{StatusNew, StatusConfirmed, StatusOnTheWay} {
			f := newFixture(t)
			o := f.seed(from)
			require.NoError(t, f.svc.ClientAction(ctx, o.ID, ActionNameCancel, guest), from)

			got := f.store.order(o.ID)
			assert.Equal(t, StatusCanceled, got.Status)
			assert.Equal(t, clientCancelReason, got.CancelReason)
			ev := f.pub.events()
			require.Len(t, ev, 1)
			assert.Equal(t, EventOrderCanceled, ev[0].Event)
			assert.True(t, ev[0].ClientInitiated)
			assert.Equal(t, ActionClientCancel, f.store.auditFor(o.ID)[0].Action)
		}
	})

	t.Run("cancel after delivery", func(t *testing.T) {
		f := newFixture(t)
		o := f.seed(StatusDelivered)
		err := f.svc.ClientAction(ctx, o.ID, ActionNameCancel, guest)
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusDelivered, f.store.order(o.ID).Status)
	})

	t.Run("ready for pickup", func(t *testing.T) {
		f := newFixture(t)
		o := f.seed(StatusSessionEnding)
		require.NoError(t, f.svc.ClientAction(ctx, o.ID, ActionNameReadyForPickup, guest))
		got := f.store.order(o.ID)
		assert.Equal(t, StatusWaitingForPickup, got.Status)
		require.NotNil(t, got.PickupRequestedAt)
		assert.Equal(t, []string{EventPickupRequested}, f.pub.names())

		err := f.svc.ClientAction(ctx, o.ID, ActionNameReadyForPickup, guest)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("someone else's order", func(t *testing.T) {
		f := newFixture(t)
		o := f.seed(StatusNew)
		err := f.svc.ClientAction(ctx, o.ID, ActionNameCancel, Client(777))
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, StatusNew, f.store.order(o.ID).Status)
	})

	t.Run("not a client", func(t *testing.T) {
		f := newFixture(t)
		o := f.seed(StatusNew)
		err := f.svc.ClientAction(ctx, o.ID, ActionNameCancel, Staff(operatorID))
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture(t)
		o := f.seed(StatusNew)
		err := f.svc.ClientAction(ctx, o.ID, "teleport", guest)
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestFreeExtendOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionEnding, func(o *Order) { o.FreeExtensionUsed = false })
	want := o.SessionEndsAt.Add(60 * time.Minute)

	got, err := f.svc.FreeExtend(ctx, o.ID, Client(guestTG))
	require.NoError(t, err)
	assert.Equal(t, StatusSessionActive, got.Status)
	assert.True(t, got.FreeExtensionUsed)
	assert.Equal(t, want, *got.SessionEndsAt)

	_, err = f.svc.FreeExtend(ctx, o.ID, Client(guestTG))
	requireRule(t, err, ErrPreconditionFailed, RuleExtensionUsed)

	// Even back in SESSION_ENDING the flag still holds.
	_, err = f.svc.ForceEnding(ctx, o.ID, Staff(operatorID))
	require.NoError(t, err)
	err = f.svc.ClientAction(ctx, o.ID, ActionNameFreeExtend, Client(guestTG))
	requireRule(t, err, ErrPreconditionFailed, RuleExtensionUsed)

	assert.Equal(t, want, *f.store.order(o.ID).SessionEndsAt)
	assert.Equal(t, []string{EventFreeExtension, EventSessionEnding}, f.pub.names())
}

func TestFreeExtendConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionEnding)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.FreeExtend(ctx, o.ID, Client(guestTG))
			if err == nil {
				wins.Add(1)
				return
			}
			assert.True(t, isRule(err, RuleExtensionUsed) || isTransition(err), err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, o.SessionEndsAt.Add(60*time.Minute), *f.store.order(o.ID).SessionEndsAt)
	assert.Len(t, f.store.auditFor(o.ID), 1)
}

func isRule(err error, rule string) bool {
	var re *RuleError
	return errors.As(err, &re) && re.Rule == rule
}

func isTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

func TestFreeExtendPreconditions(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	o := f.seed(StatusSessionActive)
	_, err := f.svc.FreeExtend(ctx, o.ID, Client(guestTG))
	require.ErrorIs(t, err, ErrInvalidTransition)

	f = newFixture(t)
	f.now = time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC) // 03:00 local
	o = f.seed(StatusSessionEnding)
	_, err = f.svc.FreeExtend(ctx, o.ID, Client(guestTG))
	requireRule(t, err, ErrPreconditionFailed, RuleAfterHours)
	assert.False(t, f.store.order(o.ID).FreeExtensionUsed)
}

func TestFreeExtendByOperator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionEnding)

	_, err := f.svc.FreeExtend(ctx, o.ID, Staff(4242))
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, StatusSessionEnding, f.store.order(o.ID).Status)

	got, err := f.svc.FreeExtend(ctx, o.ID, Staff(operatorID))
	require.NoError(t, err)
	assert.Equal(t, StatusSessionActive, got.Status)
	assert.True(t, got.FreeExtensionUsed)

	audits := f.store.auditFor(o.ID)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionStaffFreeExtend, audits[0].Action)
	assert.Equal(t, Staff(operatorID), audits[0].Actor)

	ev := f.pub.events()
	require.Len(t, ev, 1)
	assert.Equal(t, EventFreeExtension, ev[0].Event)
	assert.False(t, ev[0].ClientInitiated)

	_, err = f.svc.ForceEnding(ctx, o.ID, Staff(operatorID))
	require.NoError(t, err)
	_, err = f.svc.FreeExtend(ctx, o.ID, Staff(operatorID))
	requireRule(t, err, ErrPreconditionFailed, RuleExtensionUsed)
}

func TestGuestActionsRejectStaff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive)

	_, err := f.svc.CancelByClient(ctx, o.ID, Staff(operatorID))
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ReadyForPickup(ctx, o.ID, Staff(operatorID))
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, StatusSessionActive, f.store.order(o.ID).Status)
}

func TestForceEnding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive)

	got, err := f.svc.ForceEnding(ctx, o.ID, Staff(operatorID))
	require.NoError(t, err)
	assert.Equal(t, StatusSessionEnding, got.Status)
	assert.Equal(t, *o.SessionEndsAt, *got.SessionEndsAt)
	assert.Equal(t, ActionForceEnding, f.store.auditFor(o.ID)[0].Action)

	_, err = f.svc.ForceEnding(ctx, o.ID, Staff(operatorID))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdjustTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionEnding)

	got, err := f.svc.AdjustTimer(ctx, o.ID, 15, Staff(operatorID))
	require.NoError(t, err)
	assert.Equal(t, StatusSessionEnding, got.Status)
	assert.Equal(t, o.SessionEndsAt.Add(15*time.Minute), *got.SessionEndsAt)

	got, err = f.svc.AdjustTimer(ctx, o.ID, -20, Staff(operatorID))
	require.NoError(t, err)
	assert.Equal(t, o.SessionEndsAt.Add(-5*time.Minute), *got.SessionEndsAt)

	audits := f.store.auditFor(o.ID)
	require.Len(t, audits, 2)
	assert.Equal(t, ActionAdjustTimer, audits[0].Action)
	assert.Equal(t, 15, audits[0].Details["minutes"])
	assert.Empty(t, f.pub.events())

	_, err = f.svc.AdjustTimer(ctx, o.ID, 0, Staff(operatorID))
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.AdjustTimer(ctx, o.ID, MaxTimerAdjust+1, Staff(operatorID))
	require.ErrorIs(t, err, ErrValidation)

	n := f.seed(StatusNew)
	_, err = f.svc.AdjustTimer(ctx, n.ID, 10, Staff(operatorID))
	requireRule(t, err, ErrPreconditionFailed, RuleSessionNotStarted)
}

func TestSweepExpiring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := f.seed(StatusSessionActive, endingIn(20*time.Minute, f.now))
	later := f.seed(StatusSessionActive, endingIn(45*time.Minute, f.now), func(o *Order) { o.TelegramID = 600 })
	ending := f.seed(StatusSessionEnding, endingIn(5*time.Minute, f.now), func(o *Order) { o.TelegramID = 601 })

	n, err := f.svc.SweepExpiring(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, StatusSessionEnding, f.store.order(due.ID).Status)
	assert.Equal(t, StatusSessionActive, f.store.order(later.ID).Status)
	assert.Equal(t, ending, f.store.order(ending.ID))

	audits := f.store.auditFor(due.ID)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionAutoSessionEnding, audits[0].Action)
	assert.Equal(t, SystemActor, audits[0].Actor)

	ev := f.pub.events()
	require.Len(t, ev, 1)
	assert.Equal(t, EventSessionEnding, ev[0].Event)
	assert.Equal(t, due.ID, ev[0].OrderID)
	assert.False(t, ev[0].ClientInitiated)
	assert.Equal(t, "false", ev[0].Extra[ExtraAfterHours])

	n, err = f.svc.SweepExpiring(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.pub.events(), 1)
}

func TestSweepMarksAfterHours(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2026, 6, 1, 22, 30, 0, 0, time.UTC) // 02:30 local
	f.seed(StatusSessionActive, endingIn(10*time.Minute, f.now))

	n, err := f.svc.SweepExpiring(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, "true", f.pub.events()[0].Extra[ExtraAfterHours])
}

func TestSweepStopsOnCanceledContext(t *testing.T) {
	f := newFixture(t)
	o := f.seed(StatusSessionActive, endingIn(10*time.Minute, f.now))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.svc.SweepExpiring(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StatusSessionActive, f.store.order(o.ID).Status)
}

func TestTimerLosesToForceEnding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive, endingIn(20*time.Minute, f.now))

	// The operator's write lands between the sweep's read and its guarded update.
	fired := false
	f.store.beforeUpdate = func(u OrderUpdate) {
		if fired {
			return
		}
		fired = true
		_, err := f.svc.ForceEnding(ctx, o.ID, Staff(operatorID))
		require.NoError(t, err)
	}

	n, err := f.svc.SweepExpiring(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, StatusSessionEnding, f.store.order(o.ID).Status)
	audits := f.store.auditFor(o.ID)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionForceEnding, audits[0].Action)
	assert.Equal(t, []string{EventSessionEnding}, f.pub.names())
}

func TestForceEndingLosesToTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive, endingIn(20*time.Minute, f.now))

	fired := false
	f.store.beforeUpdate = func(u OrderUpdate) {
		if fired {
			return
		}
		fired = true
		n, err := f.svc.SweepExpiring(ctx, 30*time.Minute)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	_, err := f.svc.ForceEnding(ctx, o.ID, Staff(operatorID))
	require.ErrorIs(t, err, ErrInvalidTransition)

	audits := f.store.auditFor(o.ID)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionAutoSessionEnding, audits[0].Action)
	assert.Equal(t, []string{EventSessionEnding}, f.pub.names())
}

func TestConcurrentEndingHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive, endingIn(10*time.Minute, f.now))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				if _, err := f.svc.ForceEnding(ctx, o.ID, Staff(operatorID)); err == nil {
					wins.Add(1)
				}
				return
			}
			n, err := f.svc.SweepExpiring(ctx, 30*time.Minute)
			assert.NoError(t, err)
			wins.Add(int32(n))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, StatusSessionEnding, f.store.order(o.ID).Status)
	assert.Len(t, f.store.auditFor(o.ID), 1)
	assert.Len(t, f.pub.events(), 1)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.seed(StatusSessionActive)
	f.store.items[o.ID] = []OrderItem{{ID: "i1", OrderID: o.ID, Type: ItemHookah, MixID: "mix-1", Qty: 1, UnitPrice: 70, TotalPrice: 70}}

	d, err := f.svc.Get(ctx, o.ID, Client(guestTG))
	require.NoError(t, err)
	assert.Equal(t, o.ID, d.ID)
	assert.Len(t, d.Items, 1)
	assert.Nil(t, d.Rebowl)

	_, err = f.svc.Get(ctx, o.ID, Client(999))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Get(ctx, o.ID, Staff(42))
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, o.ID, Staff(operatorID))
	require.NoError(t, err)
}

func TestSetFeaturedMix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.SetFeaturedMix(ctx, "mix-2", Staff(operatorID)))
	assert.Equal(t, "mix-2", f.store.featured)
	assert.Len(t, f.store.auditFor("mix-2"), 1)

	err := f.svc.SetFeaturedMix(ctx, "mix-off", Staff(operatorID))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "mix-2", f.store.featured)
	assert.Empty(t, f.store.auditFor("mix-off"))

	require.ErrorIs(t, f.svc.SetFeaturedMix(ctx, "mix-1", Client(guestTG)), ErrForbidden)
}

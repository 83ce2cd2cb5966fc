package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gghookah/hookah-orders/internal/pricing"
	"github.com/gghookah/hookah-orders/internal/settings"
)

// memStore is an in-memory Store. Every Tx method is atomic on its own and a
// failed unit of work is undone, which mirrors READ COMMITTED statements
// guarded by WHERE clauses.
type memStore struct {
	mu sync.Mutex

	settings  map[string]string
	orders    map[string]Order
	items     map[string][]OrderItem
	guests    map[string]Guest // by phone
	mixes     map[string]pricing.Mix
	drinks    map[string]pricing.Drink
	discounts map[string]*memDiscount
	promos    map[string]*pricing.Promo
	usages    map[string]string // promoID|phone -> order id
	rebowls   map[string]RebowlRequest
	audits    []memAudit
	featured  string

	// beforeUpdate runs outside the lock right before an order
	// compare-and-swap, to interleave a competing writer.
	beforeUpdate func(u OrderUpdate)
}

type memDiscount struct {
	pricing.Discount
	Phone   string
	OrderID string
}

type memAudit struct {
	tx *memTx
	AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		settings:  map[string]string{},
		orders:    map[string]Order{},
		items:     map[string][]OrderItem{},
		guests:    map[string]Guest{},
		mixes:     map[string]pricing.Mix{},
		drinks:    map[string]pricing.Drink{},
		discounts: map[string]*memDiscount{},
		promos:    map[string]*pricing.Promo{},
		usages:    map[string]string{},
		rebowls:   map[string]RebowlRequest{},
	}
}

type memTx struct {
	s     *memStore
	undos []func()
}

func (t *memTx) undo(f func()) { t.undos = append(t.undos, f) }

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &memTx{s: s}
	if err := fn(t); err != nil {
		s.mu.Lock()
		for i := len(t.undos) - 1; i >= 0; i-- {
			t.undos[i]()
		}
		kept := s.audits[:0]
		for _, a := range s.audits {
			if a.tx != t {
				kept = append(kept, a)
			}
		}
		s.audits = kept
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) ExpiringSessions(ctx context.Context, before time.Time) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.Status == StatusSessionActive && o.SessionEndsAt != nil && !o.SessionEndsAt.After(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionEndsAt.Before(*out[j].SessionEndsAt) })
	return out, nil
}

func (s *memStore) order(id string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) auditFor(entityID string) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEntry
	for _, a := range s.audits {
		if a.EntityID == entityID {
			out = append(out, a.AuditEntry)
		}
	}
	return out
}

func (t *memTx) Settings(ctx context.Context) (settings.Snapshot, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	values := make(map[string]string, len(t.s.settings))
	for k, v := range t.s.settings {
		values[k] = v
	}
	return settings.FromValues(values), nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (Order, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, nil
}

func (t *memTx) OrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return append([]OrderItem(nil), t.s.items[orderID]...), nil
}

func stamp(o *Order, col Column, at time.Time) {
	switch col {
	case ColConfirmedAt:
		o.ConfirmedAt = &at
	case ColDepartedAt:
		o.DepartedAt = &at
	case ColDeliveredAt:
		o.DeliveredAt = &at
	case ColSessionStartedAt:
		o.SessionStartedAt = &at
	case ColPickupRequestedAt:
		o.PickupRequestedAt = &at
	case ColCompletedAt:
		o.CompletedAt = &at
	case ColCanceledAt:
		o.CanceledAt = &at
	}
}

func (t *memTx) UpdateOrder(ctx context.Context, u OrderUpdate) (bool, error) {
	if h := t.s.beforeUpdate; h != nil {
		h(u)
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	o, ok := t.s.orders[u.ID]
	if !ok || o.Status != u.From {
		return false, nil
	}
	if u.RequireExtensionUnused && o.FreeExtensionUsed {
		return false, nil
	}
	if u.ShiftSession != 0 && u.SessionEndsAt == nil && o.SessionEndsAt == nil {
		return false, nil
	}
	if u.Stamp != "" && !u.Stamp.valid() {
		return false, fmt.Errorf("unknown timestamp column %q", u.Stamp)
	}

	prev := o
	t.undo(func() { t.s.orders[u.ID] = prev })

	o.Status, o.UpdatedAt = u.To, u.At
	if u.Stamp != "" {
		stamp(&o, u.Stamp, u.At)
	}
	switch {
	case u.SessionEndsAt != nil:
		ends := *u.SessionEndsAt
		o.SessionEndsAt = &ends
	case u.ShiftSession != 0:
		ends := o.SessionEndsAt.Add(u.ShiftSession)
		o.SessionEndsAt = &ends
	}
	if u.FreeExtensionUsed != nil {
		o.FreeExtensionUsed = *u.FreeExtensionUsed
	}
	if u.ETAText != nil {
		o.PromisedETA = *u.ETAText
	}
	if u.CancelReason != nil {
		o.CancelReason = *u.CancelReason
	}
	t.s.orders[u.ID] = o
	return true, nil
}

func (t *memTx) InsertOrder(ctx context.Context, n NewOrder) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	id := n.Order.ID
	if _, ok := t.s.orders[id]; ok {
		return fmt.Errorf("duplicate order %s", id)
	}
	t.s.orders[id] = n.Order
	t.s.items[id] = append([]OrderItem(nil), n.Items...)
	t.undo(func() {
		delete(t.s.orders, id)
		delete(t.s.items, id)
	})
	return nil
}

func (t *memTx) HasActiveOrder(ctx context.Context, telegramID int64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, o := range t.s.orders {
		if o.TelegramID == telegramID && !o.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) RentedHookahs(ctx context.Context) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	n := 0
	for _, o := range t.s.orders {
		if !o.Status.Terminal() {
			n += o.HookahCount
		}
	}
	return n, nil
}

func (t *memTx) Catalog(ctx context.Context, mixIDs, drinkIDs []string) (pricing.Catalog, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cat := pricing.Catalog{Mixes: map[string]pricing.Mix{}, Drinks: map[string]pricing.Drink{}}
	for _, id := range mixIDs {
		if m, ok := t.s.mixes[id]; ok {
			cat.Mixes[id] = m
		}
	}
	for _, id := range drinkIDs {
		if d, ok := t.s.drinks[id]; ok {
			cat.Drinks[id] = d
		}
	}
	return cat, nil
}

func (t *memTx) ActiveDiscount(ctx context.Context, phone string) (*pricing.Discount, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, d := range t.s.discounts {
		if d.Phone == phone && !d.Used {
			cp := d.Discount
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) PromoByCode(ctx context.Context, code string) (*pricing.Promo, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, p := range t.s.promos {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) PromoUsedByPhone(ctx context.Context, promoID, phone string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.usages[promoID+"|"+phone]
	return ok, nil
}

func (t *memTx) ConsumeDiscount(ctx context.Context, discountID, orderID string, at time.Time) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	d, ok := t.s.discounts[discountID]
	if !ok || d.Used {
		return false, nil
	}
	d.Used, d.OrderID = true, orderID
	t.undo(func() { d.Used, d.OrderID = false, "" })
	return true, nil
}

func (t *memTx) ConsumePromo(ctx context.Context, promoID, phone, orderID string, at time.Time) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.promos[promoID]
	if !ok || !p.Active || p.UsedCount >= p.MaxUses {
		return false, nil
	}
	key := promoID + "|" + phone
	if _, dup := t.s.usages[key]; dup {
		return false, nil
	}
	p.UsedCount++
	t.s.usages[key] = orderID
	t.undo(func() {
		p.UsedCount--
		delete(t.s.usages, key)
	})
	return true, nil
}

func (t *memTx) SetFeaturedMix(ctx context.Context, mixID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if m, ok := t.s.mixes[mixID]; !ok || !m.Active {
		return &RuleError{Kind: ErrNotFound, Rule: RuleItemUnavailable}
	}
	prev := t.s.featured
	t.s.featured = mixID
	t.undo(func() { t.s.featured = prev })
	return nil
}

func (t *memTx) UpsertGuest(ctx context.Context, phone string, telegramID int64, lang string) (Guest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, existed := t.s.guests[phone]
	g := prev
	if !existed {
		g = Guest{ID: "guest-" + phone, Phone: phone, Trust: TrustNormal}
	}
	g.TelegramID = telegramID
	if lang != "" {
		g.Lang = lang
	}
	g.TotalOrders++
	t.s.guests[phone] = g
	t.undo(func() {
		if existed {
			t.s.guests[phone] = prev
		} else {
			delete(t.s.guests, phone)
		}
	})
	return g, nil
}

func (t *memTx) GetGuest(ctx context.Context, id string) (Guest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, g := range t.s.guests {
		if g.ID == id {
			return g, nil
		}
	}
	return Guest{}, fmt.Errorf("guest %s: %w", id, ErrNotFound)
}

func (t *memTx) UpdateGuest(ctx context.Context, g Guest) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.guests[g.Phone]
	if !ok || prev.ID != g.ID {
		return fmt.Errorf("guest %s: %w", g.ID, ErrNotFound)
	}
	t.s.guests[g.Phone] = g
	t.undo(func() { t.s.guests[g.Phone] = prev })
	return nil
}

func (t *memTx) IncrementGuestRebowls(ctx context.Context, guestID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for phone, g := range t.s.guests {
		if g.ID == guestID {
			g.TotalRebowls++
			t.s.guests[phone] = g
			t.undo(func() {
				g.TotalRebowls--
				t.s.guests[phone] = g
			})
			return nil
		}
	}
	return nil
}

func (t *memTx) GetRebowl(ctx context.Context, id string) (RebowlRequest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.rebowls[id]
	if !ok {
		return RebowlRequest{}, fmt.Errorf("rebowl %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (t *memTx) ActiveRebowl(ctx context.Context, orderID string) (*RebowlRequest, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.activeRebowl(orderID), nil
}

func (s *memStore) activeRebowl(orderID string) *RebowlRequest {
	for _, r := range s.rebowls {
		if r.OrderID == orderID && r.Status.Active() {
			cp := r
			return &cp
		}
	}
	return nil
}

// InsertRebowl enforces the one-active-request-per-order index.
func (t *memTx) InsertRebowl(ctx context.Context, r RebowlRequest) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.activeRebowl(r.OrderID) != nil {
		return precondition(RuleActiveRebowlExists)
	}
	t.s.rebowls[r.ID] = r
	t.undo(func() { delete(t.s.rebowls, r.ID) })
	return nil
}

func (t *memTx) UpdateRebowl(ctx context.Context, u RebowlUpdate) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.rebowls[u.ID]
	if !ok || r.OrderID != u.OrderID || r.Status != u.From {
		return false, nil
	}
	prev := r
	t.undo(func() { t.s.rebowls[u.ID] = prev })
	at := u.At
	r.Status = u.To
	switch u.To {
	case RebowlInProgress:
		r.InProgressAt = &at
	case RebowlDone:
		r.DoneAt = &at
	case RebowlCanceled:
		r.CanceledAt = &at
	}
	if u.Note != nil {
		r.AdminNote = *u.Note
	}
	t.s.rebowls[u.ID] = r
	return true, nil
}

func (t *memTx) Audit(ctx context.Context, e AuditEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.audits = append(t.s.audits, memAudit{tx: t, AuditEntry: e})
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []Notification
}

func (p *recordingPublisher) Publish(ctx context.Context, n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPublisher) events() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.sent...)
}

func (p *recordingPublisher) names() []string {
	var out []string
	for _, n := range p.events() {
		out = append(out, n.Event)
	}
	return out
}

type allowList map[int64]bool

func (a allowList) AuthorizeStaff(ctx context.Context, actor Actor) error {
	if a[actor.ID] {
		return nil
	}
	return ErrForbidden
}

package orders

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gghookah/hookah-orders/internal/inventory"
	"github.com/gghookah/hookah-orders/internal/pricing"
	"github.com/gghookah/hookah-orders/internal/settings"
)

// MaxHookahsPerOrder is the structural per-order cap of the orders table.
const MaxHookahsPerOrder = 3

type CartLine struct {
	ItemID string
	Qty    int
}

type CreateOrderInput struct {
	TelegramID  int64
	Phone       string
	Hookahs     []CartLine
	Drinks      []CartLine
	Address     Address
	Comment     string
	DepositType DepositType
	PromoCode   string
	// Lang is the guest's chosen language, remembered on the guest row.
	Lang string
}

// Languages the guest can choose.
const (
	LangRU = "ru"
	LangEN = "en"
)

type CreateOrderResult struct {
	OrderID       string        `json:"order_id"`
	Ref           string        `json:"order_ref"`
	Status        Status        `json:"status"`
	Quote         pricing.Quote `json:"quote"`
	DepositType   DepositType   `json:"deposit_type"`
	DepositAmount int           `json:"deposit_amount"`
	IsLateOrder   bool          `json:"is_late_order"`
	GuestTrust    TrustFlag     `json:"guest_trust"`
}

func (in CreateOrderInput) validate() error {
	switch {
	case in.TelegramID <= 0:
		return invalid("telegram id is required")
	case strings.TrimSpace(in.Phone) == "":
		return invalid("phone is required")
	case strings.TrimSpace(in.Address.Text) == "":
		return invalid("address is required")
	case len(in.Hookahs) == 0:
		return invalid("at least one hookah is required")
	}
	switch in.Lang {
	case "", LangRU, LangEN:
	default:
		return invalid("unsupported language %q", in.Lang)
	}
	switch in.DepositType {
	case DepositCash, DepositPassport, DepositNone:
	default:
		return invalid("unknown deposit type %q", in.DepositType)
	}
	if n := in.hookahQty(); n > MaxHookahsPerOrder {
		return invalid("at most %d hookahs per order", MaxHookahsPerOrder)
	}
	return nil
}

// normalizeLines copies lines with ids in the canonical lower-case form.
func normalizeLines(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	for i, l := range lines {
		out[i] = CartLine{ItemID: strings.ToLower(strings.TrimSpace(l.ItemID)), Qty: l.Qty}
	}
	return out
}

func (in CreateOrderInput) hookahQty() int {
	n := 0
	for _, l := range in.Hookahs {
		n += l.Qty
	}
	return n
}

func (in CreateOrderInput) cart() (pricing.Cart, []string, []string) {
	var c pricing.Cart
	mixIDs := make([]string, 0, len(in.Hookahs))
	drinkIDs := make([]string, 0, len(in.Drinks))
	for _, l := range in.Hookahs {
		c.Hookahs = append(c.Hookahs, pricing.Line{ItemID: l.ItemID, Qty: l.Qty})
		mixIDs = append(mixIDs, l.ItemID)
	}
	for _, l := range in.Drinks {
		c.Drinks = append(c.Drinks, pricing.Line{ItemID: l.ItemID, Qty: l.Qty})
		drinkIDs = append(drinkIDs, l.ItemID)
	}
	return c, mixIDs, drinkIDs
}

// CreateOrder admits, prices and persists a new order in status NEW. Every
// check reads fresh state inside the same transaction as the insert, and the
// used discount or promo slot is consumed there too, so a failure anywhere
// leaves no offer consumed.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Hookahs, in.Drinks = normalizeLines(in.Hookahs), normalizeLines(in.Drinks)
	if in.DepositType == "" {
		in.DepositType = DepositCash
	}
	if err := in.validate(); err != nil {
		return CreateOrderResult{}, err
	}
	now := s.now()
	var (
		res CreateOrderResult
		o   Order
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		snap, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if snap.PauseOrders {
			return precondition(RuleOrdersPaused)
		}
		busy, err := tx.HasActiveOrder(ctx, in.TelegramID)
		if err != nil {
			return err
		}
		if busy {
			return precondition(RuleActiveOrderExists)
		}

		rented, err := tx.RentedHookahs(ctx)
		if err != nil {
			return err
		}
		avail := inventory.Compute(snap.TotalHookahs, snap.MaxHookahsRegular, rented)
		if err := avail.Admit(in.hookahQty()); err != nil {
			return classify(err)
		}

		cart, mixIDs, drinkIDs := in.cart()
		cat, err := tx.Catalog(ctx, mixIDs, drinkIDs)
		if err != nil {
			return err
		}
		offers, err := s.offers(ctx, tx, in, snap, now)
		if err != nil {
			return err
		}
		quote, err := pricing.Resolve(cart, cat, offers, pricing.Limits{
			BasePrice:    snap.BaseBowlPrice,
			DrinksMaxQty: snap.DrinksMaxQty,
		})
		if err != nil {
			return classify(err)
		}

		guest, err := tx.UpsertGuest(ctx, in.Phone, in.TelegramID, in.Lang)
		if err != nil {
			return err
		}
		depType, depAmount, err := deposit(in.DepositType, guest, snap)
		if err != nil {
			return err
		}

		o = newOrder(in, guest, quote, depType, depAmount, snap.Gate().IsLateOrder(now), now)
		if err := tx.InsertOrder(ctx, NewOrder{Order: o, Items: orderItems(o.ID, quote)}); err != nil {
			return err
		}
		if err := consumeOffer(ctx, tx, quote, o, now); err != nil {
			return err
		}
		if err := tx.Audit(ctx, AuditEntry{
			EntityType: entityOrder,
			EntityID:   o.ID,
			Action:     ActionOrderCreated,
			Actor:      Client(in.TelegramID),
			Details: map[string]any{
				"to":      StatusNew,
				"total":   quote.Total,
				"hookahs": quote.HookahQty,
				"offer":   quote.Applied,
				"percent": quote.Percent,
			},
			At: now,
		}); err != nil {
			return err
		}

		res = CreateOrderResult{
			OrderID:       o.ID,
			Ref:           o.Ref(),
			Status:        o.Status,
			Quote:         quote,
			DepositType:   depType,
			DepositAmount: depAmount,
			IsLateOrder:   o.IsLateOrder,
			GuestTrust:    guest.Trust,
		}
		return nil
	})
	if err != nil {
		return CreateOrderResult{}, err
	}
	s.committed(ctx, o, change{
		event:           EventOrderCreated,
		clientInitiated: true,
		extra:           map[string]string{ExtraTotal: strconv.Itoa(res.Quote.Total)},
	})
	return res, nil
}

// offers loads the personal discount and validates the promo code for the
// order's phone.
func (s *Service) offers(ctx context.Context, tx Tx, in CreateOrderInput, snap settings.Snapshot, now time.Time) (pricing.Offers, error) {
	var out pricing.Offers
	d, err := tx.ActiveDiscount(ctx, in.Phone)
	if err != nil {
		return out, err
	}
	if d.Usable(now) {
		out.Discount = d
	}

	code := strings.ToUpper(strings.TrimSpace(in.PromoCode))
	if code == "" {
		return out, nil
	}
	if !snap.PromoEnabled {
		return out, classify(pricing.ErrPromoInactive)
	}
	p, err := tx.PromoByCode(ctx, code)
	if err != nil {
		return out, err
	}
	used := false
	if p != nil {
		if used, err = tx.PromoUsedByPhone(ctx, p.ID, in.Phone); err != nil {
			return out, err
		}
	}
	if err := pricing.CheckPromo(p, now, used); err != nil {
		return out, classify(err)
	}
	out.Promo = p
	return out, nil
}

// deposit resolves the deposit. A passport already on file exempts the guest.
func deposit(requested DepositType, g Guest, snap settings.Snapshot) (DepositType, int, error) {
	if g.PassportOnFile {
		return DepositNone, 0, nil
	}
	switch requested {
	case DepositCash:
		return DepositCash, snap.DepositAmount, nil
	case DepositPassport:
		return DepositPassport, 0, nil
	}
	return "", 0, precondition(RuleDepositRequired)
}

func newOrder(in CreateOrderInput, g Guest, q pricing.Quote, dep DepositType, depAmount int, late bool, now time.Time) Order {
	o := Order{
		ID:            uuid.NewString(),
		GuestID:       g.ID,
		TelegramID:    in.TelegramID,
		Phone:         in.Phone,
		MixID:         q.Hookahs[0].ItemID,
		HookahCount:   q.HookahQty,
		Status:        StatusNew,
		Address:       in.Address,
		Comment:       in.Comment,
		Lang:          g.Lang,
		DepositType:   dep,
		DepositAmount: depAmount,
		HookahTotal:   q.HookahSubtotal,
		DrinksTotal:   q.DrinksSubtotal,
		Total:         q.Total,
		IsLateOrder:   late,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch q.Applied {
	case pricing.MechanismPromo:
		o.PromoCode, o.PromoPercent = q.PromoCode, q.Percent
	case pricing.MechanismDiscount:
		o.DiscountID, o.DiscountPercent = q.DiscountID, q.Percent
	}
	return o
}

func orderItems(orderID string, q pricing.Quote) []OrderItem {
	items := make([]OrderItem, 0, len(q.Hookahs)+len(q.Drinks))
	for _, l := range q.Hookahs {
		items = append(items, OrderItem{
			ID: uuid.NewString(), OrderID: orderID, Type: ItemHookah, MixID: l.ItemID,
			Qty: l.Qty, UnitPrice: l.UnitPrice, TotalPrice: l.Total,
		})
	}
	for _, l := range q.Drinks {
		items = append(items, OrderItem{
			ID: uuid.NewString(), OrderID: orderID, Type: ItemDrink, MenuItemID: l.ItemID,
			Qty: l.Qty, UnitPrice: l.UnitPrice, TotalPrice: l.Total,
		})
	}
	return items
}

func consumeOffer(ctx context.Context, tx Tx, q pricing.Quote, o Order, now time.Time) error {
	switch q.Applied {
	case pricing.MechanismPromo:
		ok, err := tx.ConsumePromo(ctx, q.PromoID, o.Phone, o.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return precondition(RulePromoExhausted)
		}
	case pricing.MechanismDiscount:
		ok, err := tx.ConsumeDiscount(ctx, q.DiscountID, o.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return precondition(RuleDiscountUnavailable)
		}
	}
	return nil
}

// Package pricing prices a cart and picks the single percent-off offer that
// applies to it. It performs no I/O; callers load the catalog and offers and
// persist the consumed offer in the same transaction as the order.
package pricing

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoHookahs       = errors.New("order has no hookahs")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrDrinksLimit     = errors.New("too many drinks")

	ErrPromoUnknown     = errors.New("promo code not found")
	ErrPromoInactive    = errors.New("promo code is disabled")
	ErrPromoNotStarted  = errors.New("promo code is not active yet")
	ErrPromoExpired     = errors.New("promo code expired")
	ErrPromoExhausted   = errors.New("promo code usage limit reached")
	ErrPromoAlreadyUsed = errors.New("promo code already used by this phone")
)

type Kind string

const (
	KindHookah Kind = "hookah"
	KindDrink  Kind = "drink"
)

// ItemError reports a cart line that references an unknown or inactive item.
type ItemError struct {
	Kind Kind
	ID   string
}

func (e *ItemError) Error() string { return fmt.Sprintf("%s %s is unavailable", e.Kind, e.ID) }

type Mechanism string

const (
	MechanismNone     Mechanism = ""
	MechanismPromo    Mechanism = "promo"
	MechanismDiscount Mechanism = "discount"
)

type Line struct {
	ItemID string
	Qty    int
}

type Cart struct {
	Hookahs []Line
	Drinks  []Line
}

type Mix struct {
	ID     string
	Name   string
	Active bool
}

type Drink struct {
	ID     string
	Name   string
	Price  int
	Active bool
}

type Catalog struct {
	Mixes  map[string]Mix
	Drinks map[string]Drink
}

// Discount is a one-off personal offer tied to a phone.
type Discount struct {
	ID         string
	Percent    int
	ValidUntil time.Time
	Used       bool
}

// Usable reports whether the discount can still be applied at now.
func (d *Discount) Usable(now time.Time) bool {
	return d != nil && !d.Used && now.Before(d.ValidUntil)
}

type Promo struct {
	ID         string
	Code       string
	Percent    int
	MaxUses    int
	UsedCount  int
	ValidFrom  time.Time
	ValidUntil time.Time
	Active     bool
}

// CheckPromo validates a promo code for one phone. usedByPhone comes from the
// usage ledger.
func CheckPromo(p *Promo, now time.Time, usedByPhone bool) error {
	switch {
	case p == nil:
		return ErrPromoUnknown
	case !p.Active:
		return ErrPromoInactive
	case now.Before(p.ValidFrom):
		return ErrPromoNotStarted
	case !now.Before(p.ValidUntil):
		return ErrPromoExpired
	case p.UsedCount >= p.MaxUses:
		return ErrPromoExhausted
	case usedByPhone:
		return ErrPromoAlreadyUsed
	}
	return nil
}

// Offers holds the candidates that already passed eligibility checks.
type Offers struct {
	Promo    *Promo
	Discount *Discount
}

type Limits struct {
	BasePrice    int
	DrinksMaxQty int
}

type QuoteLine struct {
	Kind      Kind
	ItemID    string
	Qty       int
	UnitPrice int
	Total     int
}

type Quote struct {
	Hookahs []QuoteLine
	Drinks  []QuoteLine

	HookahQty      int
	DrinkQty       int
	HookahSubtotal int
	DrinksSubtotal int
	Total          int

	Applied    Mechanism
	Percent    int
	PromoID    string
	PromoCode  string
	DiscountID string
}

// Choose returns the winning offer. The higher percent wins and a tie goes to
// the promo, which leaves the personal discount for a later order.
func Choose(o Offers) (Mechanism, int) {
	var promoPct, discountPct int
	if o.Promo != nil {
		promoPct = o.Promo.Percent
	}
	if o.Discount != nil {
		discountPct = o.Discount.Percent
	}
	switch {
	case o.Promo != nil && promoPct >= discountPct:
		return MechanismPromo, promoPct
	case o.Discount != nil:
		return MechanismDiscount, discountPct
	}
	return MechanismNone, 0
}

// DiscountedUnit applies percent to a unit price, rounding down.
func DiscountedUnit(base, percent int) int {
	if percent <= 0 {
		return base
	}
	if percent >= 100 {
		return 0
	}
	return base * (100 - percent) / 100
}

func Resolve(cart Cart, cat Catalog, offers Offers, lim Limits) (Quote, error) {
	var q Quote

	for _, l := range cart.Hookahs {
		if l.Qty <= 0 {
			return Quote{}, ErrInvalidQuantity
		}
		if m, ok := cat.Mixes[l.ItemID]; !ok || !m.Active {
			return Quote{}, &ItemError{Kind: KindHookah, ID: l.ItemID}
		}
		q.HookahQty += l.Qty
	}
	for _, l := range cart.Drinks {
		if l.Qty <= 0 {
			return Quote{}, ErrInvalidQuantity
		}
		if d, ok := cat.Drinks[l.ItemID]; !ok || !d.Active {
			return Quote{}, &ItemError{Kind: KindDrink, ID: l.ItemID}
		}
		q.DrinkQty += l.Qty
	}
	if q.DrinkQty > lim.DrinksMaxQty {
		return Quote{}, ErrDrinksLimit
	}
	if q.HookahQty == 0 {
		return Quote{}, ErrNoHookahs
	}

	q.Applied, q.Percent = Choose(offers)
	switch q.Applied {
	case MechanismPromo:
		q.PromoID, q.PromoCode = offers.Promo.ID, offers.Promo.Code
	case MechanismDiscount:
		q.DiscountID = offers.Discount.ID
	}

	unit := DiscountedUnit(lim.BasePrice, q.Percent)
	for _, l := range cart.Hookahs {
		line := QuoteLine{Kind: KindHookah, ItemID: l.ItemID, Qty: l.Qty, UnitPrice: unit, Total: unit * l.Qty}
		q.Hookahs = append(q.Hookahs, line)
		q.HookahSubtotal += line.Total
	}
	for _, l := range cart.Drinks {
		price := cat.Drinks[l.ItemID].Price
		line := QuoteLine{Kind: KindDrink, ItemID: l.ItemID, Qty: l.Qty, UnitPrice: price, Total: price * l.Qty}
		q.Drinks = append(q.Drinks, line)
		q.DrinksSubtotal += line.Total
	}
	q.Total = q.HookahSubtotal + q.DrinksSubtotal
	return q, nil
}

package orders

import (
	"errors"
	"fmt"

	"github.com/gghookah/hookah-orders/internal/inventory"
	"github.com/gghookah/hookah-orders/internal/pricing"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrValidation         = errors.New("validation error")
	ErrForbidden          = errors.New("forbidden")
)

// Rule codes name the business rule behind a PreconditionFailed rejection.
const (
	RuleAfterHours          = "after_hours"
	RuleExtensionUsed       = "extension_used"
	RuleAllBusy             = "all_busy"
	RuleOnlyNAvailable      = "only_n_available"
	RuleActiveOrderExists   = "active_order_exists"
	RuleActiveRebowlExists  = "active_rebowl_exists"
	RuleOrdersPaused        = "orders_paused"
	RuleDepositRequired     = "deposit_required"
	RuleDrinksLimit         = "drinks_limit"
	RuleItemUnavailable     = "item_unavailable"
	RuleSessionNotStarted   = "session_not_started"
	RulePromoUnknown        = "promo_unknown"
	RulePromoInactive       = "promo_inactive"
	RulePromoNotStarted     = "promo_not_started"
	RulePromoExpired        = "promo_expired"
	RulePromoExhausted      = "promo_exhausted"
	RulePromoAlreadyUsed    = "promo_already_used"
	RuleDiscountUnavailable = "discount_unavailable"
)

type RuleError struct {
	Kind error
	Rule string
	// Max is the number of units still available for only_n_available.
	Max int
	Err error
}

func (e *RuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Rule, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Rule)
}

func (e *RuleError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func precondition(rule string) *RuleError {
	return &RuleError{Kind: ErrPreconditionFailed, Rule: rule}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TransitionError covers both order and rebowl status moves.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func badMove[S ~string](from, to S) error {
	return &TransitionError{From: string(from), To: string(to)}
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var pricingRules = []struct {
	err  error
	rule string
}{
	{pricing.ErrPromoUnknown, RulePromoUnknown},
	{pricing.ErrPromoInactive, RulePromoInactive},
	{pricing.ErrPromoNotStarted, RulePromoNotStarted},
	{pricing.ErrPromoExpired, RulePromoExpired},
	{pricing.ErrPromoExhausted, RulePromoExhausted},
	{pricing.ErrPromoAlreadyUsed, RulePromoAlreadyUsed},
	{pricing.ErrDrinksLimit, RuleDrinksLimit},
}

// classify maps errors of the pricing and inventory gates into the service's
// error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, r := range pricingRules {
		if errors.Is(err, r.err) {
			return &RuleError{Kind: ErrPreconditionFailed, Rule: r.rule, Err: err}
		}
	}
	var item *pricing.ItemError
	if errors.As(err, &item) {
		return &RuleError{Kind: ErrNotFound, Rule: RuleItemUnavailable, Err: err}
	}
	if errors.Is(err, pricing.ErrNoHookahs) || errors.Is(err, pricing.ErrInvalidQuantity) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if errors.Is(err, inventory.ErrAllBusy) {
		return &RuleError{Kind: ErrPreconditionFailed, Rule: RuleAllBusy, Err: err}
	}
	var limit *inventory.LimitError
	if errors.As(err, &limit) {
		return &RuleError{Kind: ErrPreconditionFailed, Rule: RuleOnlyNAvailable, Max: limit.Max, Err: err}
	}
	return err
}

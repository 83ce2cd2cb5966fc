package orders

import (
	"context"
	"time"

	"github.com/gghookah/hookah-orders/internal/pricing"
	"github.com/gghookah/hookah-orders/internal/settings"
)

// OrderUpdate is a compare-and-swap on orders.status: it is applied only if
// the row still has status From when the statement runs. To may equal From
// for updates that keep the status.
type OrderUpdate struct {
	ID   string
	From Status
	To   Status
	At   time.Time

	// Stamp is set to At when non-empty.
	Stamp Column
	// SessionEndsAt replaces the deadline; ShiftSession moves the existing one.
	SessionEndsAt *time.Time
	ShiftSession  time.Duration

	FreeExtensionUsed *bool
	// RequireExtensionUnused adds free_extension_used = false to the guard.
	RequireExtensionUnused bool

	ETAText      *string
	CancelReason *string
}

// RebowlUpdate is the rebowl counterpart of OrderUpdate, guarded on the
// request status and its owning order.
type RebowlUpdate struct {
	ID      string
	OrderID string
	From    RebowlStatus
	To      RebowlStatus
	At      time.Time
	Note    *string
}

type NewOrder struct {
	Order Order
	Items []OrderItem
}

// Store runs a unit of work in one database transaction. Tx is only valid
// inside fn.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// ExpiringSessions lists SESSION_ACTIVE orders whose deadline is at or
	// before the given instant.
	ExpiringSessions(ctx context.Context, before time.Time) ([]Order, error)
}

type Tx interface {
	Settings(ctx context.Context) (settings.Snapshot, error)

	GetOrder(ctx context.Context, id string) (Order, error)
	OrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	UpdateOrder(ctx context.Context, u OrderUpdate) (bool, error)
	InsertOrder(ctx context.Context, o NewOrder) error
	HasActiveOrder(ctx context.Context, telegramID int64) (bool, error)
	RentedHookahs(ctx context.Context) (int, error)

	Catalog(ctx context.Context, mixIDs, drinkIDs []string) (pricing.Catalog, error)
	ActiveDiscount(ctx context.Context, phone string) (*pricing.Discount, error)
	PromoByCode(ctx context.Context, code string) (*pricing.Promo, error)
	PromoUsedByPhone(ctx context.Context, promoID, phone string) (bool, error)
	// ConsumeDiscount flips is_used once; false means it was already used.
	ConsumeDiscount(ctx context.Context, discountID, orderID string, at time.Time) (bool, error)
	// ConsumePromo bumps used_count under the cap and records the per-phone
	// usage; false means the cap was reached or the phone already used it.
	ConsumePromo(ctx context.Context, promoID, phone, orderID string, at time.Time) (bool, error)
	SetFeaturedMix(ctx context.Context, mixID string) error

	// UpsertGuest creates the guest on first order and bumps total_orders.
	// A non-empty lang replaces the stored language.
	UpsertGuest(ctx context.Context, phone string, telegramID int64, lang string) (Guest, error)
	// GetGuest reads a guest and locks the row until the transaction ends.
	GetGuest(ctx context.Context, id string) (Guest, error)
	UpdateGuest(ctx context.Context, g Guest) error
	IncrementGuestRebowls(ctx context.Context, guestID string) error

	GetRebowl(ctx context.Context, id string) (RebowlRequest, error)
	ActiveRebowl(ctx context.Context, orderID string) (*RebowlRequest, error)
	// InsertRebowl fails with a RuleError for active_rebowl_exists when the
	// order already has an active request.
	InsertRebowl(ctx context.Context, r RebowlRequest) error
	UpdateRebowl(ctx context.Context, u RebowlUpdate) (bool, error)

	Audit(ctx context.Context, e AuditEntry) error
}

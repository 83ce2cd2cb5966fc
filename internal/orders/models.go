package orders

import "time"

type DepositType string

const (
	DepositCash     DepositType = "cash"
	DepositPassport DepositType = "passport"
	DepositNone     DepositType = "none"
)

type TrustFlag string

const (
	TrustNormal    TrustFlag = "normal"
	TrustLow       TrustFlag = "low"
	TrustBlacklist TrustFlag = "blacklist"
)

type Address struct {
	Text      string `json:"text"`
	Entrance  string `json:"entrance,omitempty"`
	Floor     string `json:"floor,omitempty"`
	Apartment string `json:"apartment,omitempty"`
	DoorCode  string `json:"door_code,omitempty"`
}

type Order struct {
	ID          string    `json:"id"`
	GuestID     string    `json:"guest_id,omitempty"`
	TelegramID  int64     `json:"telegram_id"`
	Phone       string    `json:"phone"`
	MixID       string    `json:"mix_id"`
	HookahCount int       `json:"hookah_count"`
	Status      Status    `json:"status"`
	Address     Address   `json:"address"`
	Comment     string    `json:"comment,omitempty"`
	PromisedETA string    `json:"promised_eta_text,omitempty"`
	AdminNote   string    `json:"admin_note,omitempty"`
	Lang        string    `json:"lang,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	DepositType   DepositType `json:"deposit_type"`
	DepositAmount int         `json:"deposit_amount"`

	// At most one of DiscountPercent and PromoPercent is non-zero.
	DiscountID      string `json:"discount_id,omitempty"`
	DiscountPercent int    `json:"discount_percent,omitempty"`
	PromoCode       string `json:"promo_code,omitempty"`
	PromoPercent    int    `json:"promo_percent,omitempty"`

	HookahTotal int `json:"hookah_total"`
	DrinksTotal int `json:"drinks_total"`
	Total       int `json:"total"`

	IsLateOrder       bool       `json:"is_late_order"`
	FreeExtensionUsed bool       `json:"free_extension_used"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	DepartedAt        *time.Time `json:"departed_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	SessionStartedAt  *time.Time `json:"session_started_at,omitempty"`
	SessionEndsAt     *time.Time `json:"session_ends_at,omitempty"`
	PickupRequestedAt *time.Time `json:"pickup_requested_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
	CancelReason      string     `json:"cancel_reason,omitempty"`
}

// Ref is the short order reference shown to guests and operators.
func (o Order) Ref() string { return ShortRef(o.ID) }

func ShortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type ItemType string

const (
	ItemHookah ItemType = "hookah"
	ItemDrink  ItemType = "drink"
)

type OrderItem struct {
	ID         string   `json:"id"`
	OrderID    string   `json:"order_id"`
	Type       ItemType `json:"item_type"`
	MixID      string   `json:"mix_id,omitempty"`
	MenuItemID string   `json:"menu_item_id,omitempty"`
	Qty        int      `json:"quantity"`
	UnitPrice  int      `json:"unit_price"`
	TotalPrice int      `json:"total_price"`
}

type Guest struct {
	ID             string    `json:"id"`
	Phone          string    `json:"phone"`
	TelegramID     int64     `json:"telegram_id,omitempty"`
	Name           string    `json:"name,omitempty"`
	Lang           string    `json:"lang,omitempty"`
	PassportOnFile bool      `json:"passport_on_file"`
	Trust          TrustFlag `json:"trust_flag"`
	Notes          string    `json:"notes,omitempty"`
	TotalOrders    int       `json:"total_orders"`
	TotalRebowls   int       `json:"total_rebowls"`
}

func (f TrustFlag) Valid() bool {
	switch f {
	case TrustNormal, TrustLow, TrustBlacklist:
		return true
	}
	return false
}

// GuestUpdate is a staff edit of a guest profile. Nil fields are left as is.
type GuestUpdate struct {
	Name  *string
	Trust *TrustFlag
	Notes *string
}

type RebowlRequest struct {
	ID           string       `json:"id"`
	OrderID      string       `json:"order_id"`
	RequestedBy  int64        `json:"requested_by"`
	MixID        string       `json:"mix_id"`
	Price        int          `json:"price"`
	AddMinutes   int          `json:"add_minutes"`
	Status       RebowlStatus `json:"status"`
	RequestedAt  time.Time    `json:"requested_at"`
	InProgressAt *time.Time   `json:"in_progress_at,omitempty"`
	DoneAt       *time.Time   `json:"done_at,omitempty"`
	CanceledAt   *time.Time   `json:"canceled_at,omitempty"`
	AdminNote    string       `json:"admin_note,omitempty"`
}

type ActorKind string

const (
	ActorStaff  ActorKind = "staff"
	ActorClient ActorKind = "client"
	ActorSystem ActorKind = "system"
)

// Actor is whoever drives an operation. Staff and client ids are chat
// account ids; the system actor uses id 0.
type Actor struct {
	Kind ActorKind
	ID   int64
}

var SystemActor = Actor{Kind: ActorSystem, ID: 0}

func Staff(id int64) Actor  { return Actor{Kind: ActorStaff, ID: id} }
func Client(id int64) Actor { return Actor{Kind: ActorClient, ID: id} }

// AuditEntry is one row of audit_logs.
type AuditEntry struct {
	EntityType string
	EntityID   string
	Action     string
	Actor      Actor
	Details    map[string]any
	At         time.Time
}

// OrderDetails is the read model returned to both consoles.
type OrderDetails struct {
	Order
	Items  []OrderItem    `json:"items"`
	Rebowl *RebowlRequest `json:"active_rebowl,omitempty"`
}

// Package settings turns the key/value rows of the settings table into one
// typed snapshot. A snapshot is read at the start of an operation and used
// for its whole duration.
package settings

import (
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"

	"github.com/gghookah/hookah-orders/internal/hours"
)

const (
	KeyTotalHookahs      = "total_hookahs"
	KeyMaxHookahsRegular = "max_hookahs_regular"
	KeyBaseBowlPrice     = "base_bowl_price"
	KeyRebowlPrice       = "rebowl_price"
	KeyDepositAmount     = "deposit_amount"
	KeySessionMinutes    = "session_duration_minutes"
	KeyRebowlMinutes     = "rebowl_duration_minutes"
	KeyExtensionMinutes  = "free_extension_minutes"
	KeyDrinksMaxQty      = "drinks_max_total_qty"
	KeyLateOrderCutoff   = "late_order_cutoff_time"
	KeyAfterHoursStart   = "after_hours_disable_time"
	KeyWorkStart         = "work_start_time"
	KeyTimezone          = "timezone"
	KeyPromoEnabled      = "promo_enabled"
	KeyPauseOrders       = "pause_orders"
)

var defaults = map[string]string{
	KeyTotalHookahs:      "5",
	KeyMaxHookahsRegular: "3",
	KeyBaseBowlPrice:     "70",
	KeyRebowlPrice:       "50",
	KeyDepositAmount:     "100",
	KeySessionMinutes:    "120",
	KeyRebowlMinutes:     "120",
	KeyExtensionMinutes:  "60",
	KeyDrinksMaxQty:      "8",
	KeyLateOrderCutoff:   "01:30",
	KeyAfterHoursStart:   "02:00",
	KeyWorkStart:         "18:00",
	KeyTimezone:          "Asia/Tbilisi",
	KeyPromoEnabled:      "true",
	KeyPauseOrders:       "false",
}

type Snapshot struct {
	TotalHookahs      int
	MaxHookahsRegular int
	BaseBowlPrice     int
	RebowlPrice       int
	DepositAmount     int
	DrinksMaxQty      int

	SessionDuration time.Duration
	RebowlDuration  time.Duration
	FreeExtension   time.Duration

	Location        *time.Location
	LateOrderCutoff hours.Clock
	AfterHoursStart hours.Clock
	WorkStart       hours.Clock

	PromoEnabled bool
	PauseOrders  bool
}

// Default is the snapshot of an empty settings table.
func Default() Snapshot { return FromValues(nil) }

// FromValues builds a snapshot from raw rows. Missing keys and values that
// do not parse fall back to the defaults.
func FromValues(values map[string]string) Snapshot {
	r := reader{values: values}
	return Snapshot{
		TotalHookahs:      r.int(KeyTotalHookahs),
		MaxHookahsRegular: r.int(KeyMaxHookahsRegular),
		BaseBowlPrice:     r.int(KeyBaseBowlPrice),
		RebowlPrice:       r.int(KeyRebowlPrice),
		DepositAmount:     r.int(KeyDepositAmount),
		DrinksMaxQty:      r.int(KeyDrinksMaxQty),

		SessionDuration: r.minutes(KeySessionMinutes),
		RebowlDuration:  r.minutes(KeyRebowlMinutes),
		FreeExtension:   r.minutes(KeyExtensionMinutes),

		Location:        r.location(KeyTimezone),
		LateOrderCutoff: r.clock(KeyLateOrderCutoff),
		AfterHoursStart: r.clock(KeyAfterHoursStart),
		WorkStart:       r.clock(KeyWorkStart),

		PromoEnabled: r.bool(KeyPromoEnabled),
		PauseOrders:  r.bool(KeyPauseOrders),
	}
}

func (s Snapshot) Gate() hours.Gate {
	return hours.NewGate(s.Location, s.AfterHoursStart, s.WorkStart, s.LateOrderCutoff)
}

type reader struct {
	values map[string]string
}

func (r reader) raw(key string) string {
	if v, ok := r.values[key]; ok && v != "" {
		return v
	}
	return defaults[key]
}

func (r reader) fallback(key string, err error) string {
	log.Warn().Err(err).Str("key", key).Str("value", r.values[key]).Msg("invalid setting, using default")
	return defaults[key]
}

func (r reader) int(key string) int {
	n, err := strconv.Atoi(r.raw(key))
	if err != nil || n < 0 {
		n, _ = strconv.Atoi(r.fallback(key, err))
	}
	return n
}

func (r reader) minutes(key string) time.Duration {
	return time.Duration(r.int(key)) * time.Minute
}

func (r reader) bool(key string) bool {
	b, err := strconv.ParseBool(r.raw(key))
	if err != nil {
		b, _ = strconv.ParseBool(r.fallback(key, err))
	}
	return b
}

func (r reader) clock(key string) hours.Clock {
	c, err := hours.ParseClock(r.raw(key))
	if err != nil {
		c = hours.MustClock(r.fallback(key, err))
	}
	return c
}

func (r reader) location(key string) *time.Location {
	loc, err := time.LoadLocation(r.raw(key))
	if err != nil {
		if loc, err = time.LoadLocation(r.fallback(key, err)); err != nil {
			return time.UTC
		}
	}
	return loc
}

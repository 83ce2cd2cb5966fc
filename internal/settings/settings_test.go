package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gghookah/hookah-orders/internal/hours"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, 5, s.TotalHookahs)
	assert.Equal(t, 3, s.MaxHookahsRegular)
	assert.Equal(t, 70, s.BaseBowlPrice)
	assert.Equal(t, 50, s.RebowlPrice)
	assert.Equal(t, 100, s.DepositAmount)
	assert.Equal(t, 8, s.DrinksMaxQty)
	assert.Equal(t, 120*time.Minute, s.SessionDuration)
	assert.Equal(t, 120*time.Minute, s.RebowlDuration)
	assert.Equal(t, 60*time.Minute, s.FreeExtension)
	assert.Equal(t, hours.MustClock("01:30"), s.LateOrderCutoff)
	assert.Equal(t, hours.MustClock("02:00"), s.AfterHoursStart)
	assert.Equal(t, hours.MustClock("18:00"), s.WorkStart)
	assert.Equal(t, "Asia/Tbilisi", s.Location.String())
	assert.True(t, s.PromoEnabled)
	assert.False(t, s.PauseOrders)
}

func TestFromValuesOverridesAndFallbacks(t *testing.T) {
	s := FromValues(map[string]string{
		KeyTotalHookahs:      "7",
		KeyMaxHookahsRegular: "abc",
		KeyWorkStart:         "19:00",
		KeyLateOrderCutoff:   "late",
		KeyPauseOrders:       "true",
		KeyTimezone:          "Mars/Olympus",
	})

	assert.Equal(t, 7, s.TotalHookahs)
	assert.Equal(t, 3, s.MaxHookahsRegular)
	assert.Equal(t, hours.MustClock("19:00"), s.WorkStart)
	assert.Equal(t, hours.MustClock("01:30"), s.LateOrderCutoff)
	assert.True(t, s.PauseOrders)
	assert.Equal(t, "Asia/Tbilisi", s.Location.String())
}

func TestGateFollowsSnapshot(t *testing.T) {
	s := FromValues(map[string]string{KeyTimezone: "UTC", KeyWorkStart: "20:00"})
	g := s.Gate()

	assert.True(t, g.IsAfterHours(time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)))
	assert.False(t, g.IsAfterHours(time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)))
}

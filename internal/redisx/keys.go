package redisx

import "time"

const (
	// Order read model: order:{order_id}:v{gen} -> order details json
	KeyOrder = "order:%s:v%d"

	// Order cache generation, bumped on every invalidation: order:{order_id}:gen
	KeyOrderGen = "order:%s:gen"

	// Availability snapshot: availability -> {"total":..,"available":..}
	KeyAvailability = "availability"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache   = 5 * time.Minute
	TTLOrderGen     = 24 * time.Hour
	TTLAvailability = 5 * time.Second
	TTLDedup        = 48 * time.Hour
)

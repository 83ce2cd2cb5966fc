package inventory

import (
	"errors"
	"fmt"
)

var ErrAllBusy = errors.New("all hookahs are busy")

// LimitError rejects a request that asks for more units than are free for
// one order right now.
type LimitError struct {
	Max int
}

func (e *LimitError) Error() string { return fmt.Sprintf("max %d available", e.Max) }

type Availability struct {
	Total       int `json:"total"`
	Rented      int `json:"rented"`
	Available   int `json:"available"`
	MaxPerOrder int `json:"max_per_order"`
}

// Compute derives availability from the configured fleet size, the per-order
// cap and the units held by non-terminal orders.
func Compute(total, maxRegular, rented int) Availability {
	available := max(total-rented, 0)
	return Availability{
		Total:       total,
		Rented:      rented,
		Available:   available,
		MaxPerOrder: max(min(maxRegular, available), 0),
	}
}

func (a Availability) Admit(qty int) error {
	if qty <= a.MaxPerOrder {
		return nil
	}
	if a.Available == 0 {
		return ErrAllBusy
	}
	return &LimitError{Max: a.MaxPerOrder}
}

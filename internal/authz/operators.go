// Package authz decides who may run staff operations.
package authz

import (
	"context"
	"fmt"
	"slices"

	"github.com/gghookah/hookah-orders/internal/orders"
)

// Operators is a fixed allowlist of operator chat ids.
type Operators struct {
	ids map[int64]struct{}
}

func NewOperators(ids []int64) *Operators {
	o := &Operators{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		if id > 0 {
			o.ids[id] = struct{}{}
		}
	}
	return o
}

func (o *Operators) IsOperator(id int64) bool {
	_, ok := o.ids[id]
	return ok
}

// AuthorizeStaff implements orders.Authorizer. The system actor is always
// allowed.
func (o *Operators) AuthorizeStaff(ctx context.Context, a orders.Actor) error {
	switch a.Kind {
	case orders.ActorSystem:
		return nil
	case orders.ActorStaff:
		if o.IsOperator(a.ID) {
			return nil
		}
	}
	return fmt.Errorf("%s %d is not an operator: %w", a.Kind, a.ID, orders.ErrForbidden)
}

// IDs returns the allowlist in ascending order.
func (o *Operators) IDs() []int64 {
	out := make([]int64, 0, len(o.ids))
	for id := range o.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

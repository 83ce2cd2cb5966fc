package orders

import (
	"context"
	"strings"
)

const (
	ActionGuestUpdated = "GUEST_UPDATED"
	entityGuest        = "guest"
)

// UpdateGuest applies a staff edit to a guest's name, trust flag and notes.
// Only the fields that actually change are audited; an edit that changes
// nothing writes no audit row.
func (s *Service) UpdateGuest(ctx context.Context, guestID string, upd GuestUpdate, actor Actor) (Guest, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return Guest{}, err
	}
	if upd.Trust != nil && !upd.Trust.Valid() {
		return Guest{}, invalid("unknown trust flag %q", *upd.Trust)
	}
	now := s.now()
	var out Guest
	err := s.store.InTx(ctx, func(tx Tx) error {
		g, err := tx.GetGuest(ctx, guestID)
		if err != nil {
			return err
		}
		changes := map[string]any{}
		next := g
		if upd.Name != nil {
			if name := strings.TrimSpace(*upd.Name); name != g.Name {
				changes["name"] = map[string]string{"from": g.Name, "to": name}
				next.Name = name
			}
		}
		if upd.Trust != nil && *upd.Trust != g.Trust {
			changes["trust_flag"] = map[string]TrustFlag{"from": g.Trust, "to": *upd.Trust}
			next.Trust = *upd.Trust
		}
		if upd.Notes != nil {
			if notes := strings.TrimSpace(*upd.Notes); notes != g.Notes {
				changes["notes"] = map[string]string{"from": g.Notes, "to": notes}
				next.Notes = notes
			}
		}
		out = next
		if len(changes) == 0 {
			return nil
		}
		if err := tx.UpdateGuest(ctx, next); err != nil {
			return err
		}
		return tx.Audit(ctx, AuditEntry{
			EntityType: entityGuest,
			EntityID:   g.ID,
			Action:     ActionGuestUpdated,
			Actor:      actor,
			Details:    changes,
			At:         now,
		})
	})
	if err != nil {
		return Guest{}, err
	}
	return out, nil
}

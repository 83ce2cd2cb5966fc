package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gghookah/hookah-orders/internal/pricing"
)

func (t *pgTx) Catalog(ctx context.Context, mixIDs, drinkIDs []string) (pricing.Catalog, error) {
	cat := pricing.Catalog{Mixes: map[string]pricing.Mix{}, Drinks: map[string]pricing.Drink{}}

	if ids := uuids(mixIDs); len(ids) > 0 {
		rows, err := t.tx.Query(ctx, `SELECT id::text, name, is_active FROM mixes WHERE id::text = ANY($1)`, ids)
		if err != nil {
			return cat, fmt.Errorf("load mixes: %w", err)
		}
		for rows.Next() {
			var m pricing.Mix
			if err := rows.Scan(&m.ID, &m.Name, &m.Active); err != nil {
				rows.Close()
				return cat, err
			}
			cat.Mixes[m.ID] = m
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return cat, err
		}
	}

	if ids := uuids(drinkIDs); len(ids) > 0 {
		rows, err := t.tx.Query(ctx, `SELECT id::text, name, price_gel, is_active FROM menu_items
			WHERE item_type = 'drink' AND id::text = ANY($1)`, ids)
		if err != nil {
			return cat, fmt.Errorf("load drinks: %w", err)
		}
		for rows.Next() {
			var d pricing.Drink
			if err := rows.Scan(&d.ID, &d.Name, &d.Price, &d.Active); err != nil {
				rows.Close()
				return cat, err
			}
			cat.Drinks[d.ID] = d
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return cat, err
		}
	}
	return cat, nil
}

// uuids drops ids that cannot exist so lookups treat them as unknown items.
func uuids(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			out = append(out, id)
		}
	}
	return out
}

func (t *pgTx) ActiveDiscount(ctx context.Context, phone string) (*pricing.Discount, error) {
	var d pricing.Discount
	err := t.tx.QueryRow(ctx, `SELECT id::text, percent, valid_until, is_used FROM discounts
		WHERE phone = $1 AND is_used = false`, phone).Scan(&d.ID, &d.Percent, &d.ValidUntil, &d.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load discount: %w", err)
	}
	return &d, nil
}

func (t *pgTx) PromoByCode(ctx context.Context, code string) (*pricing.Promo, error) {
	var p pricing.Promo
	err := t.tx.QueryRow(ctx, `SELECT id::text, code, percent, max_uses, used_count, valid_from, valid_until, is_active
		FROM promo_codes WHERE upper(code) = $1`, strings.ToUpper(code)).
		Scan(&p.ID, &p.Code, &p.Percent, &p.MaxUses, &p.UsedCount, &p.ValidFrom, &p.ValidUntil, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load promo code: %w", err)
	}
	return &p, nil
}

func (t *pgTx) PromoUsedByPhone(ctx context.Context, promoID, phone string) (bool, error) {
	var used bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM promo_code_usages u
		JOIN promo_codes p ON p.id = u.promo_code_id
		WHERE p.id = $1 AND u.phone = $2)`, promoID, phone).Scan(&used)
	return used, err
}

func (t *pgTx) ConsumeDiscount(ctx context.Context, discountID, orderID string, at time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `UPDATE discounts SET is_used = true, used_at = $3, used_order_id = $2
		WHERE id = $1 AND is_used = false`, discountID, orderID, at)
	if err != nil {
		return false, fmt.Errorf("consume discount: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) ConsumePromo(ctx context.Context, promoID, phone, orderID string, at time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `UPDATE promo_codes SET used_count = used_count + 1, updated_at = $2
		WHERE id = $1 AND is_active AND used_count < max_uses`, promoID, at)
	if err != nil {
		return false, fmt.Errorf("consume promo code: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return false, nil
	}
	// A conflict leaves used_count bumped; the caller rolls the tx back on false.
	ct, err = t.tx.Exec(ctx, `INSERT INTO promo_code_usages (id, promo_code_id, phone, order_id, used_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uq_promo_usage_per_phone DO NOTHING`, promoID, phone, orderID, at)
	if err != nil {
		return false, fmt.Errorf("record promo usage: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) SetFeaturedMix(ctx context.Context, mixID string) error {
	if !isUUID(mixID) {
		return &RuleError{Kind: ErrNotFound, Rule: RuleItemUnavailable}
	}
	if _, err := t.tx.Exec(ctx, `UPDATE mixes SET is_featured = false, updated_at = now()
		WHERE is_featured AND id <> $1`, mixID); err != nil {
		return fmt.Errorf("clear featured mix: %w", err)
	}
	ct, err := t.tx.Exec(ctx, `UPDATE mixes SET is_featured = true, updated_at = now()
		WHERE id = $1 AND is_active`, mixID)
	if err != nil {
		return fmt.Errorf("set featured mix: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return &RuleError{Kind: ErrNotFound, Rule: RuleItemUnavailable}
	}
	return nil
}

package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const rebowlColumns = `id::text, order_id::text, requested_by_telegram_id, mix_id::text, price_gel, add_minutes,
	status, requested_at, in_progress_at, done_at, canceled_at, COALESCE(admin_note, '')`

var rebowlStamp = map[RebowlStatus]string{
	RebowlInProgress: "in_progress_at",
	RebowlDone:       "done_at",
	RebowlCanceled:   "canceled_at",
}

func scanRebowl(row pgx.Row) (RebowlRequest, error) {
	var r RebowlRequest
	err := row.Scan(&r.ID, &r.OrderID, &r.RequestedBy, &r.MixID, &r.Price, &r.AddMinutes,
		&r.Status, &r.RequestedAt, &r.InProgressAt, &r.DoneAt, &r.CanceledAt, &r.AdminNote)
	return r, err
}

func (t *pgTx) GetRebowl(ctx context.Context, id string) (RebowlRequest, error) {
	if !isUUID(id) {
		return RebowlRequest{}, fmt.Errorf("rebowl %s: %w", id, ErrNotFound)
	}
	r, err := scanRebowl(t.tx.QueryRow(ctx, `SELECT `+rebowlColumns+` FROM rebowl_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RebowlRequest{}, fmt.Errorf("rebowl %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (t *pgTx) ActiveRebowl(ctx context.Context, orderID string) (*RebowlRequest, error) {
	r, err := scanRebowl(t.tx.QueryRow(ctx, `SELECT `+rebowlColumns+` FROM rebowl_requests
		WHERE order_id = $1 AND status IN ('REQUESTED', 'IN_PROGRESS')`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) InsertRebowl(ctx context.Context, r RebowlRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO rebowl_requests (id, order_id, requested_by_telegram_id, mix_id, price_gel, add_minutes, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.OrderID, r.RequestedBy, r.MixID, r.Price, r.AddMinutes, string(r.Status), r.RequestedAt,
	)
	if isUniqueViolation(err, "uq_rebowl_active_per_order") {
		return precondition(RuleActiveRebowlExists)
	}
	if err != nil {
		return fmt.Errorf("insert rebowl: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRebowl(ctx context.Context, u RebowlUpdate) (bool, error) {
	col, ok := rebowlStamp[u.To]
	if !ok {
		return false, fmt.Errorf("no timestamp for rebowl status %q", u.To)
	}
	ct, err := t.tx.Exec(ctx, `UPDATE rebowl_requests
		SET status = $3, `+col+` = $4, admin_note = COALESCE($5, admin_note)
		WHERE id = $1 AND order_id = $2 AND status = $6`,
		u.ID, u.OrderID, string(u.To), u.At, u.Note, string(u.From),
	)
	if err != nil {
		return false, fmt.Errorf("update rebowl %s: %w", u.ID, err)
	}
	return ct.RowsAffected() == 1, nil
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gghookah/hookah-orders/internal/settings"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var terminalStatuses = []string{string(StatusCompleted), string(StatusCanceled)}

func (r *Repo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repo) ExpiringSessions(ctx context.Context, before time.Time) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND session_ends_at <= $2
		ORDER BY session_ends_at`, string(StatusSessionActive), before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Settings(ctx context.Context) (settings.Snapshot, error) {
	rows, err := t.tx.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings.Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return settings.Snapshot{}, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return settings.Snapshot{}, err
	}
	return settings.FromValues(values), nil
}

const orderColumns = `id::text, COALESCE(guest_id::text, ''), telegram_id, phone, mix_id::text, hookah_count, status,
	address_text, COALESCE(entrance, ''), COALESCE(floor, ''), COALESCE(apartment, ''), COALESCE(door_code, ''),
	COALESCE(comment, ''), COALESCE(promised_eta_text, ''), COALESCE(admin_note, ''), language, created_at, updated_at,
	deposit_type, deposit_amount_gel,
	COALESCE(discount_id::text, ''), COALESCE(discount_percent, 0), COALESCE(promo_code, ''), COALESCE(promo_percent, 0),
	hookah_total_gel, drinks_total_gel, total_gel,
	is_late_order, free_extension_used,
	confirmed_at, departed_at, delivered_at, session_started_at, session_ends_at,
	pickup_requested_at, completed_at, canceled_at, COALESCE(cancel_reason, '')`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.GuestID, &o.TelegramID, &o.Phone, &o.MixID, &o.HookahCount, &o.Status,
		&o.Address.Text, &o.Address.Entrance, &o.Address.Floor, &o.Address.Apartment, &o.Address.DoorCode,
		&o.Comment, &o.PromisedETA, &o.AdminNote, &o.Lang, &o.CreatedAt, &o.UpdatedAt,
		&o.DepositType, &o.DepositAmount,
		&o.DiscountID, &o.DiscountPercent, &o.PromoCode, &o.PromoPercent,
		&o.HookahTotal, &o.DrinksTotal, &o.Total,
		&o.IsLateOrder, &o.FreeExtensionUsed,
		&o.ConfirmedAt, &o.DepartedAt, &o.DeliveredAt, &o.SessionStartedAt, &o.SessionEndsAt,
		&o.PickupRequestedAt, &o.CompletedAt, &o.CanceledAt, &o.CancelReason,
	)
	return o, err
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (Order, error) {
	if !isUUID(id) {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, err
}

func (t *pgTx) OrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT id::text, order_id::text, item_type,
			COALESCE(mix_id::text, ''), COALESCE(menu_item_id::text, ''),
			quantity, unit_price_gel, total_price_gel
		FROM order_items WHERE order_id = $1 ORDER BY item_type DESC, created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Type, &it.MixID, &it.MenuItemID,
			&it.Qty, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type setBuilder struct {
	sets []string
	args []any
}

func (b *setBuilder) arg(v any) int {
	b.args = append(b.args, v)
	return len(b.args)
}

func (b *setBuilder) set(col string, v any) {
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", col, b.arg(v)))
}

// UpdateOrder is the single-statement compare-and-swap every writer uses:
// the status guard and the write are one UPDATE, and RowsAffected tells the
// caller whether it won.
func (t *pgTx) UpdateOrder(ctx context.Context, u OrderUpdate) (bool, error) {
	b := setBuilder{args: []any{u.ID, string(u.From)}}
	b.set("status", string(u.To))
	b.set("updated_at", u.At)
	if u.Stamp != "" {
		if !u.Stamp.valid() {
			return false, fmt.Errorf("unknown timestamp column %q", u.Stamp)
		}
		b.set(string(u.Stamp), u.At)
	}
	where := []string{"id = $1", "status = $2"}
	switch {
	case u.SessionEndsAt != nil:
		b.set("session_ends_at", *u.SessionEndsAt)
	case u.ShiftSession != 0:
		b.sets = append(b.sets, fmt.Sprintf("session_ends_at = session_ends_at + $%d::interval", b.arg(u.ShiftSession)))
		where = append(where, "session_ends_at IS NOT NULL")
	}
	if u.FreeExtensionUsed != nil {
		b.set("free_extension_used", *u.FreeExtensionUsed)
	}
	if u.RequireExtensionUnused {
		where = append(where, "free_extension_used = false")
	}
	if u.ETAText != nil {
		b.set("promised_eta_text", *u.ETAText)
	}
	if u.CancelReason != nil {
		b.set("cancel_reason", *u.CancelReason)
	}

	ct, err := t.tx.Exec(ctx, "UPDATE orders SET "+strings.Join(b.sets, ", ")+
		" WHERE "+strings.Join(where, " AND "), b.args...)
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", u.ID, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, n NewOrder) error {
	o := n.Order
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, guest_id, telegram_id, phone, mix_id, hookah_count, status,
			address_text, entrance, floor, apartment, door_code, comment,
			deposit_type, deposit_amount_gel, discount_id, discount_percent, promo_code, promo_percent,
			hookah_total_gel, drinks_total_gel, total_gel, is_late_order, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $25)`,
		o.ID, nullable(o.GuestID), o.TelegramID, o.Phone, o.MixID, o.HookahCount, string(o.Status),
		o.Address.Text, nullable(o.Address.Entrance), nullable(o.Address.Floor), nullable(o.Address.Apartment),
		nullable(o.Address.DoorCode), nullable(o.Comment),
		string(o.DepositType), o.DepositAmount, nullable(o.DiscountID), nullableInt(o.DiscountPercent),
		nullable(o.PromoCode), nullableInt(o.PromoPercent),
		o.HookahTotal, o.DrinksTotal, o.Total, o.IsLateOrder, o.Lang, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range n.Items {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, item_type, mix_id, menu_item_id, quantity, unit_price_gel, total_price_gel)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, string(it.Type), nullable(it.MixID), nullable(it.MenuItemID), it.Qty, it.UnitPrice, it.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) HasActiveOrder(ctx context.Context, telegramID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM orders WHERE telegram_id = $1 AND status <> ALL($2))`, telegramID, terminalStatuses).Scan(&ok)
	return ok, err
}

func (t *pgTx) RentedHookahs(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(hookah_count), 0) FROM orders
		WHERE status <> ALL($1)`, terminalStatuses).Scan(&n)
	return n, err
}

const guestColumns = `id::text, phone, COALESCE(telegram_id, 0), COALESCE(name, ''), language,
	passport_photo_url IS NOT NULL, trust_flag, COALESCE(notes, ''), total_orders, total_rebowls`

func scanGuest(row pgx.Row) (Guest, error) {
	var g Guest
	err := row.Scan(&g.ID, &g.Phone, &g.TelegramID, &g.Name, &g.Lang,
		&g.PassportOnFile, &g.Trust, &g.Notes, &g.TotalOrders, &g.TotalRebowls)
	return g, err
}

func (t *pgTx) UpsertGuest(ctx context.Context, phone string, telegramID int64, lang string) (Guest, error) {
	g, err := scanGuest(t.tx.QueryRow(ctx, `
		INSERT INTO guests (id, phone, telegram_id, language, total_orders)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (phone) DO UPDATE
			SET total_orders = guests.total_orders + 1,
			    telegram_id  = EXCLUDED.telegram_id,
			    language     = COALESCE(NULLIF(EXCLUDED.language, ''), guests.language),
			    updated_at   = now()
		RETURNING `+guestColumns,
		uuid.NewString(), phone, telegramID, lang,
	))
	if err != nil {
		return Guest{}, fmt.Errorf("upsert guest: %w", err)
	}
	return g, nil
}

func (t *pgTx) GetGuest(ctx context.Context, id string) (Guest, error) {
	if !isUUID(id) {
		return Guest{}, fmt.Errorf("guest %s: %w", id, ErrNotFound)
	}
	g, err := scanGuest(t.tx.QueryRow(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Guest{}, fmt.Errorf("guest %s: %w", id, ErrNotFound)
	}
	return g, err
}

func (t *pgTx) UpdateGuest(ctx context.Context, g Guest) error {
	ct, err := t.tx.Exec(ctx, `UPDATE guests SET name = $2, trust_flag = $3, notes = $4, updated_at = now()
		WHERE id = $1`, g.ID, nullable(g.Name), string(g.Trust), nullable(g.Notes))
	if err != nil {
		return fmt.Errorf("update guest: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("guest %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) IncrementGuestRebowls(ctx context.Context, guestID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE guests SET total_rebowls = total_rebowls + 1, updated_at = now()
		WHERE id = $1`, guestID)
	return err
}

func (t *pgTx) Audit(ctx context.Context, e AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, details, admin_telegram_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), e.EntityType, nullable(e.EntityID), e.Action, e.Details, e.Actor.ID, e.At,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

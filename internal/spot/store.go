package spot

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/ledger"
	"github.com/NaierGG/Nierade/internal/model"
)

// Store is the pgx-backed OrderStore. State transitions are expressed as
// conditional single-row updates so readers never need row locks.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const orderColumns = `id, guest_id, symbol, side, type, qty, limit_price, status, filled_at, created_at, updated_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.GuestID, &o.Symbol, &o.Side, &o.Type, &o.Qty,
		&o.LimitPrice, &o.Status, &o.FilledAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *Store) CreateOrder(ctx context.Context, db ledger.DB, o model.Order) (model.Order, error) {
	row := db.QueryRow(ctx, `
		insert into orders (guest_id, symbol, side, type, qty, limit_price, status, filled_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+orderColumns,
		o.GuestID, o.Symbol, o.Side, o.Type, o.Qty, o.LimitPrice, o.Status, o.FilledAt)
	return scanOrder(row)
}

func (s *Store) GetOrder(ctx context.Context, db ledger.DB, orderID string) (model.Order, error) {
	o, err := scanOrder(db.QueryRow(ctx, `select `+orderColumns+` from orders where id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, apperr.OrderNotFound()
	}
	return o, err
}

func (s *Store) GetOrderForGuest(ctx context.Context, orderID, guestID string) (model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`select `+orderColumns+` from orders where id = $1 and guest_id = $2`, orderID, guestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, apperr.OrderNotFound()
	}
	return o, err
}

// ClaimFill is the conditional OPEN -> FILLED transition. Exactly one of
// any number of concurrent attempts gets rows=1.
func (s *Store) ClaimFill(ctx context.Context, db ledger.DB, orderID, guestID string, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		update orders
		set status = 'FILLED', filled_at = $3, updated_at = $3
		where id = $1 and guest_id = $2 and status = 'OPEN' and filled_at is null`,
		orderID, guestID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseClaim reverts a claim this attempt made. The filled_at guard
// means a claim set by a later attempt is never clobbered.
func (s *Store) ReleaseClaim(ctx context.Context, db ledger.DB, orderID, guestID string, at time.Time) error {
	_, err := db.Exec(ctx, `
		update orders
		set status = 'OPEN', filled_at = null, updated_at = now()
		where id = $1 and guest_id = $2 and status = 'FILLED' and filled_at = $3`,
		orderID, guestID, at)
	return err
}

func (s *Store) CancelOpen(ctx context.Context, db ledger.DB, orderID, guestID string) (bool, error) {
	tag, err := db.Exec(ctx, `
		update orders
		set status = 'CANCELED', updated_at = now()
		where id = $1 and guest_id = $2 and status = 'OPEN'`,
		orderID, guestID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) InsertTrade(ctx context.Context, db ledger.DB, tr model.Trade) (model.Trade, error) {
	row := db.QueryRow(ctx, `
		insert into trades (guest_id, symbol, side, qty, price, order_id)
		values ($1, $2, $3, $4, $5, $6)
		returning id, created_at`,
		tr.GuestID, tr.Symbol, tr.Side, tr.Qty, tr.Price, tr.OrderID)
	if err := row.Scan(&tr.ID, &tr.CreatedAt); err != nil {
		return model.Trade{}, err
	}
	return tr, nil
}

func (s *Store) ListOpenOrders(ctx context.Context, guestID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+` from orders
		where guest_id = $1 and status = 'OPEN'
		order by created_at desc`, guestID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListRecentOrders(ctx context.Context, guestID string, limit int) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+` from orders
		where guest_id = $1 and status <> 'OPEN'
		order by updated_at desc
		limit $2`, guestID, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ListOpenLimitOrders pages resting limit orders by id for the sweep.
func (s *Store) ListOpenLimitOrders(ctx context.Context, afterID string, limit int) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+` from orders
		where status = 'OPEN' and type = 'LIMIT' and id > $1
		order by id
		limit $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	orders := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) ListTrades(ctx context.Context, guestID string, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		select id, guest_id, symbol, side, qty, price, order_id, created_at
		from trades
		where guest_id = $1
		order by created_at desc
		limit $2`, guestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	trades := make([]model.Trade, 0)
	for rows.Next() {
		var tr model.Trade
		if err := rows.Scan(&tr.ID, &tr.GuestID, &tr.Symbol, &tr.Side, &tr.Qty,
			&tr.Price, &tr.OrderID, &tr.CreatedAt); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

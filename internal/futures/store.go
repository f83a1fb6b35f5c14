package futures

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/ledger"
	"github.com/NaierGG/Nierade/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const positionColumns = `id, guest_id, symbol, side, leverage, margin, entry_price, qty, liquidation_price, created_at`

func scanPosition(row pgx.Row) (model.FuturesPosition, error) {
	var p model.FuturesPosition
	err := row.Scan(&p.ID, &p.GuestID, &p.Symbol, &p.Side, &p.Leverage,
		&p.Margin, &p.EntryPrice, &p.Qty, &p.LiquidationPrice, &p.CreatedAt)
	return p, err
}

func (s *Store) GetPosition(ctx context.Context, db ledger.DB, guestID, symbol string) (model.FuturesPosition, error) {
	p, err := scanPosition(db.QueryRow(ctx,
		`select `+positionColumns+` from futures_positions where guest_id = $1 and symbol = $2`,
		guestID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.FuturesPosition{}, apperr.PositionNotFound()
	}
	return p, err
}

func (s *Store) CreatePosition(ctx context.Context, db ledger.DB, p model.FuturesPosition) (model.FuturesPosition, error) {
	row := db.QueryRow(ctx, `
		insert into futures_positions (guest_id, symbol, side, leverage, margin, entry_price, qty, liquidation_price)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+positionColumns,
		p.GuestID, p.Symbol, p.Side, p.Leverage, p.Margin, p.EntryPrice, p.Qty, p.LiquidationPrice)
	created, err := scanPosition(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// The unique index on (guest_id, symbol) closes the race between
		// two concurrent opens.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.FuturesPosition{}, apperr.PositionExists()
		}
		return model.FuturesPosition{}, err
	}
	return created, nil
}

// AddMargin increments in SQL so concurrent top-ups serialize on the row
// lock instead of overwriting each other.
func (s *Store) AddMargin(ctx context.Context, db ledger.DB, positionID string, amount decimal.Decimal) (model.FuturesPosition, error) {
	row := db.QueryRow(ctx, `
		update futures_positions
		set margin = margin + $2
		where id = $1
		returning `+positionColumns,
		positionID, amount)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.FuturesPosition{}, apperr.PositionNotFound()
	}
	return p, err
}

func (s *Store) SetLiquidationPrice(ctx context.Context, db ledger.DB, positionID string, price decimal.Decimal) error {
	_, err := db.Exec(ctx,
		`update futures_positions set liquidation_price = $2 where id = $1`,
		positionID, price)
	return err
}

// DeletePosition is the settlement claim: rows=1 for exactly one of any
// number of concurrent close or liquidation attempts.
func (s *Store) DeletePosition(ctx context.Context, db ledger.DB, positionID, guestID string) (bool, error) {
	tag, err := db.Exec(ctx,
		`delete from futures_positions where id = $1 and guest_id = $2`,
		positionID, guestID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) InsertFuturesTrade(ctx context.Context, db ledger.DB, tr model.FuturesTrade) (model.FuturesTrade, error) {
	row := db.QueryRow(ctx, `
		insert into futures_trades (guest_id, symbol, side, action, qty, price, fee, realized_pnl)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, created_at`,
		tr.GuestID, tr.Symbol, tr.Side, tr.Action, tr.Qty, tr.Price, tr.Fee, tr.RealizedPnl)
	if err := row.Scan(&tr.ID, &tr.CreatedAt); err != nil {
		return model.FuturesTrade{}, err
	}
	return tr, nil
}

func (s *Store) ListPositions(ctx context.Context, guestID string) ([]model.FuturesPosition, error) {
	rows, err := s.pool.Query(ctx, `
		select `+positionColumns+` from futures_positions
		where guest_id = $1
		order by created_at desc`, guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	positions := make([]model.FuturesPosition, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *Store) ListFuturesTrades(ctx context.Context, guestID string, limit int) ([]model.FuturesTrade, error) {
	rows, err := s.pool.Query(ctx, `
		select id, guest_id, symbol, side, action, qty, price, fee, realized_pnl, created_at
		from futures_trades
		where guest_id = $1
		order by created_at desc
		limit $2`, guestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	trades := make([]model.FuturesTrade, 0)
	for rows.Next() {
		var tr model.FuturesTrade
		if err := rows.Scan(&tr.ID, &tr.GuestID, &tr.Symbol, &tr.Side, &tr.Action,
			&tr.Qty, &tr.Price, &tr.Fee, &tr.RealizedPnl, &tr.CreatedAt); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

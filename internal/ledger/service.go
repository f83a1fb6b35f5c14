// Package ledger holds the atomic primitives that are allowed to touch
// balances and holdings. Each primitive is one conditional, single-row
// update: the WHERE clause is the concurrency control, so two racing
// spends can never both observe a passing condition that only one balance
// can satisfy. Nothing else in the repo writes these rows.
package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/model"
)

// DB is the slice of pgx that the primitives need. Both pgx.Tx and
// *pgxpool.Pool satisfy it, so every primitive runs equally inside a
// caller's transaction or standalone.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// maxRetries bounds the compare-and-swap loop on holdings. Average price
// is a nonlinear function of prior state, so a plain column increment is
// not safe there; bounded client-side retry is.
const maxRetries = 5

// dustThreshold is the residual quantity below which a holding is
// normalized to (0, 0) instead of carrying float dust forever.
var dustThreshold = decimal.New(1, -12)

type Service struct {
	pool         *pgxpool.Pool
	startingCash decimal.Decimal
}

func NewService(pool *pgxpool.Pool, startingCash decimal.Decimal) *Service {
	return &Service{pool: pool, startingCash: startingCash}
}

// EnsureAccounts provisions the guest row and both wallets on first use.
// The spot wallet starts funded with the configured paper cash; the
// futures wallet starts empty and is funded by transfer.
func (s *Service) EnsureAccounts(ctx context.Context, db DB, guestID string) error {
	if _, err := db.Exec(ctx, `insert into guests (id) values ($1) on conflict (id) do nothing`, guestID); err != nil {
		return err
	}
	if _, err := db.Exec(ctx,
		`insert into spot_accounts (guest_id, cash_usdt, starting_cash, realized_pnl) values ($1, $2, $2, 0) on conflict (guest_id) do nothing`,
		guestID, s.startingCash); err != nil {
		return err
	}
	_, err := db.Exec(ctx,
		`insert into futures_accounts (guest_id, cash_usdt) values ($1, 0) on conflict (guest_id) do nothing`, guestID)
	return err
}

// SpendCash decrements the spot balance only if it covers amount. Zero
// rows affected means the balance was insufficient at commit time, even
// if a prior read said otherwise.
func (s *Service) SpendCash(ctx context.Context, db DB, guestID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.InvalidAmount("amount")
	}
	tag, err := db.Exec(ctx,
		`update spot_accounts set cash_usdt = cash_usdt - $1 where guest_id = $2 and cash_usdt >= $1`,
		amount, guestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return apperr.InsufficientFunds("spot")
	}
	return nil
}

func (s *Service) CreditCash(ctx context.Context, db DB, guestID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.InvalidAmount("amount")
	}
	tag, err := db.Exec(ctx,
		`update spot_accounts set cash_usdt = cash_usdt + $1 where guest_id = $2`, amount, guestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return apperr.AccountNotFound()
	}
	return nil
}

// AddRealizedPnl applies a signed delta to the booked P&L counter.
func (s *Service) AddRealizedPnl(ctx context.Context, db DB, guestID string, delta decimal.Decimal) error {
	tag, err := db.Exec(ctx,
		`update spot_accounts set realized_pnl = realized_pnl + $1 where guest_id = $2`, delta, guestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return apperr.AccountNotFound()
	}
	return nil
}

func (s *Service) SpendFuturesCash(ctx context.Context, db DB, guestID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.InvalidAmount("amount")
	}
	tag, err := db.Exec(ctx,
		`update futures_accounts set cash_usdt = cash_usdt - $1 where guest_id = $2 and cash_usdt >= $1`,
		amount, guestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return apperr.InsufficientFunds("futures")
	}
	return nil
}

func (s *Service) CreditFuturesCash(ctx context.Context, db DB, guestID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.InvalidAmount("amount")
	}
	tag, err := db.Exec(ctx,
		`update futures_accounts set cash_usdt = cash_usdt + $1 where guest_id = $2`, amount, guestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return apperr.AccountNotFound()
	}
	return nil
}

// HoldingDelta reports the state a DecrementHolding observed and left
// behind; sellers need PreviousAvgPrice for realized P&L.
type HoldingDelta struct {
	PreviousQty      decimal.Decimal
	PreviousAvgPrice decimal.Decimal
	NextQty          decimal.Decimal
}

// DecrementHolding removes qty from the holding if the current quantity
// covers it. The update is guarded on the observed (qty, avg_price)
// tuple; a lost race is retried up to maxRetries before giving up with
// LEDGER_CONFLICT. Depleted holdings are normalized to (0, 0) in the
// same write.
func (s *Service) DecrementHolding(ctx context.Context, db DB, guestID, symbol string, qty decimal.Decimal) (HoldingDelta, error) {
	if !qty.IsPositive() {
		return HoldingDelta{}, apperr.InvalidAmount("qty")
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		var (
			id     string
			curQty decimal.Decimal
			curAvg decimal.Decimal
		)
		err := db.QueryRow(ctx,
			`select id, qty, avg_price from holdings where guest_id = $1 and symbol = $2`,
			guestID, symbol).Scan(&id, &curQty, &curAvg)
		if errors.Is(err, pgx.ErrNoRows) {
			return HoldingDelta{}, apperr.InsufficientHolding(symbol)
		}
		if err != nil {
			return HoldingDelta{}, err
		}
		if curQty.LessThan(qty) {
			return HoldingDelta{}, apperr.InsufficientHolding(symbol)
		}

		nextQty := curQty.Sub(qty)
		nextAvg := curAvg
		if nextQty.LessThanOrEqual(dustThreshold) {
			nextQty = decimal.Zero
			nextAvg = decimal.Zero
		}

		tag, err := db.Exec(ctx,
			`update holdings set qty = $1, avg_price = $2 where id = $3 and qty = $4 and avg_price = $5`,
			nextQty, nextAvg, id, curQty, curAvg)
		if err != nil {
			return HoldingDelta{}, err
		}
		if tag.RowsAffected() == 1 {
			return HoldingDelta{PreviousQty: curQty, PreviousAvgPrice: curAvg, NextQty: nextQty}, nil
		}
	}
	return HoldingDelta{}, apperr.LedgerConflict()
}

// IncrementHolding adds qty at price, recomputing the weighted average
// price with the same bounded CAS discipline. A missing row is created;
// an insert lost to a concurrent creator falls back into the loop.
func (s *Service) IncrementHolding(ctx context.Context, db DB, guestID, symbol string, qty, price decimal.Decimal) (model.Holding, error) {
	if !qty.IsPositive() {
		return model.Holding{}, apperr.InvalidAmount("qty")
	}
	if !price.IsPositive() {
		return model.Holding{}, apperr.InvalidAmount("price")
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		var (
			id     string
			curQty decimal.Decimal
			curAvg decimal.Decimal
		)
		err := db.QueryRow(ctx,
			`select id, qty, avg_price from holdings where guest_id = $1 and symbol = $2`,
			guestID, symbol).Scan(&id, &curQty, &curAvg)
		if errors.Is(err, pgx.ErrNoRows) {
			tag, insErr := db.Exec(ctx,
				`insert into holdings (guest_id, symbol, qty, avg_price) values ($1, $2, $3, $4) on conflict (guest_id, symbol) do nothing`,
				guestID, symbol, qty, price)
			if insErr != nil {
				return model.Holding{}, insErr
			}
			if tag.RowsAffected() == 1 {
				return model.Holding{GuestID: guestID, Symbol: symbol, Qty: qty, AvgPrice: price}, nil
			}
			continue
		}
		if err != nil {
			return model.Holding{}, err
		}

		newQty := curQty.Add(qty)
		newAvg := curQty.Mul(curAvg).Add(qty.Mul(price)).Div(newQty)

		tag, err := db.Exec(ctx,
			`update holdings set qty = $1, avg_price = $2 where id = $3 and qty = $4 and avg_price = $5`,
			newQty, newAvg, id, curQty, curAvg)
		if err != nil {
			return model.Holding{}, err
		}
		if tag.RowsAffected() == 1 {
			return model.Holding{ID: id, GuestID: guestID, Symbol: symbol, Qty: newQty, AvgPrice: newAvg}, nil
		}
	}
	return model.Holding{}, apperr.LedgerConflict()
}

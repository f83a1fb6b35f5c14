package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/model"
)

// Provision creates the guest's wallet rows outside any transaction.
// Read endpoints call this so a brand-new identity sees its starting
// balance instead of a 404.
func (s *Service) Provision(ctx context.Context, guestID string) error {
	return s.EnsureAccounts(ctx, s.pool, guestID)
}

func (s *Service) GetSpotAccount(ctx context.Context, guestID string) (model.SpotAccount, error) {
	var a model.SpotAccount
	err := s.pool.QueryRow(ctx,
		`select guest_id, cash_usdt, starting_cash, realized_pnl, created_at from spot_accounts where guest_id = $1`,
		guestID).Scan(&a.GuestID, &a.CashUSDT, &a.StartingCash, &a.RealizedPnl, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, apperr.AccountNotFound()
	}
	return a, err
}

func (s *Service) GetFuturesAccount(ctx context.Context, guestID string) (model.FuturesAccount, error) {
	var a model.FuturesAccount
	err := s.pool.QueryRow(ctx,
		`select guest_id, cash_usdt from futures_accounts where guest_id = $1`,
		guestID).Scan(&a.GuestID, &a.CashUSDT)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, apperr.AccountNotFound()
	}
	return a, err
}

func (s *Service) Holdings(ctx context.Context, guestID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`select id, guest_id, symbol, qty, avg_price from holdings where guest_id = $1 order by symbol`,
		guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Holding
	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.ID, &h.GuestID, &h.Symbol, &h.Qty, &h.AvgPrice); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

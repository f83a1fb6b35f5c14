package futures

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/ledger"
	"github.com/NaierGG/Nierade/internal/model"
	"github.com/NaierGG/Nierade/internal/money"
	"github.com/NaierGG/Nierade/internal/pricing"
	"github.com/NaierGG/Nierade/internal/types"
)

// Ledger is the slice of wallet primitives the futures engine composes.
type Ledger interface {
	EnsureAccounts(ctx context.Context, db ledger.DB, guestID string) error
	SpendCash(ctx context.Context, db ledger.DB, guestID string, amount decimal.Decimal) error
	CreditCash(ctx context.Context, db ledger.DB, guestID string, amount decimal.Decimal) error
	SpendFuturesCash(ctx context.Context, db ledger.DB, guestID string, amount decimal.Decimal) error
	CreditFuturesCash(ctx context.Context, db ledger.DB, guestID string, amount decimal.Decimal) error
}

type PositionStore interface {
	GetPosition(ctx context.Context, db ledger.DB, guestID, symbol string) (model.FuturesPosition, error)
	CreatePosition(ctx context.Context, db ledger.DB, p model.FuturesPosition) (model.FuturesPosition, error)
	AddMargin(ctx context.Context, db ledger.DB, positionID string, amount decimal.Decimal) (model.FuturesPosition, error)
	SetLiquidationPrice(ctx context.Context, db ledger.DB, positionID string, price decimal.Decimal) error
	DeletePosition(ctx context.Context, db ledger.DB, positionID, guestID string) (bool, error)
	InsertFuturesTrade(ctx context.Context, db ledger.DB, tr model.FuturesTrade) (model.FuturesTrade, error)

	ListPositions(ctx context.Context, guestID string) ([]model.FuturesPosition, error)
	ListFuturesTrades(ctx context.Context, guestID string, limit int) ([]model.FuturesTrade, error)
}

// Config carries the liquidation policy knobs.
type Config struct {
	// LiquidationFeeRate, applied to entry notional, is deducted from
	// residual equity before any refund.
	LiquidationFeeRate decimal.Decimal
	// HarshLiquidation forfeits residual equity entirely instead of
	// refunding it.
	HarshLiquidation bool
	// TransferMin is the smallest wallet transfer accepted.
	TransferMin decimal.Decimal
}

type Service struct {
	pool   *pgxpool.Pool
	store  PositionStore
	ledger Ledger
	prices *pricing.Resolver
	cfg    Config
	log    *logrus.Logger
}

func NewService(pool *pgxpool.Pool, store PositionStore, ledgerSvc Ledger, prices *pricing.Resolver, cfg Config, log *logrus.Logger) *Service {
	return &Service{pool: pool, store: store, ledger: ledgerSvc, prices: prices, cfg: cfg, log: log}
}

type OpenRequest struct {
	GuestID      string
	Symbol       string
	Side         types.FuturesSide
	Leverage     int
	Margin       decimal.Decimal
	CurrentPrice *decimal.Decimal
}

type OpenResult struct {
	Position model.FuturesPosition `json:"position"`
	Trade    model.FuturesTrade    `json:"trade"`
	Price    pricing.Execution     `json:"price"`
}

func (s *Service) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	if req.GuestID == "" {
		return OpenResult{}, apperr.Validation("guestId is required")
	}
	if !req.Side.Valid() {
		return OpenResult{}, apperr.Validation("side must be LONG or SHORT")
	}
	if req.Leverage < MinLeverage || req.Leverage > MaxLeverage {
		return OpenResult{}, apperr.Validation("leverage must be between 1 and 100")
	}
	if !req.Margin.IsPositive() {
		return OpenResult{}, apperr.InvalidAmount("margin")
	}
	symbol, err := s.prices.AssertAllowedSymbol(ctx, req.Symbol)
	if err != nil {
		return OpenResult{}, err
	}
	exec, err := s.prices.ResolveExecutionPrice(ctx, symbol, req.CurrentPrice)
	if err != nil {
		return OpenResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OpenResult{}, err
	}
	defer tx.Rollback(ctx)

	res, err := s.openTx(ctx, tx, req, symbol, exec.ExecutionPrice)
	if err != nil {
		return OpenResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OpenResult{}, err
	}
	res.Price = exec

	s.log.WithFields(logrus.Fields{
		"symbol":   symbol,
		"side":     req.Side,
		"leverage": req.Leverage,
		"margin":   req.Margin.String(),
	}).Info("futures position opened")
	return res, nil
}

func (s *Service) openTx(ctx context.Context, db ledger.DB, req OpenRequest, symbol string, entryPrice decimal.Decimal) (OpenResult, error) {
	if err := s.ledger.EnsureAccounts(ctx, db, req.GuestID); err != nil {
		return OpenResult{}, err
	}
	if _, err := s.store.GetPosition(ctx, db, req.GuestID, symbol); err == nil {
		return OpenResult{}, apperr.PositionExists()
	} else if !apperr.IsCode(err, apperr.CodePositionNotFound) {
		return OpenResult{}, err
	}

	notional := Notional(req.Margin, req.Leverage)
	qty := PositionQty(notional, entryPrice)
	fee := TakerFee(notional)

	// Margin plus entry fee leaves the wallet atomically; the conditional
	// update rejects an overdraft.
	if err := s.ledger.SpendFuturesCash(ctx, db, req.GuestID, req.Margin.Add(fee)); err != nil {
		return OpenResult{}, err
	}

	pos, err := s.store.CreatePosition(ctx, db, model.FuturesPosition{
		GuestID:          req.GuestID,
		Symbol:           symbol,
		Side:             req.Side,
		Leverage:         req.Leverage,
		Margin:           req.Margin,
		EntryPrice:       entryPrice,
		Qty:              qty,
		LiquidationPrice: LiquidationPrice(req.Side, entryPrice, req.Margin, qty, notional),
	})
	if err != nil {
		return OpenResult{}, err
	}
	trade, err := s.store.InsertFuturesTrade(ctx, db, model.FuturesTrade{
		GuestID: req.GuestID,
		Symbol:  symbol,
		Side:    req.Side,
		Action:  types.FuturesActionOpen,
		Qty:     qty,
		Price:   entryPrice,
		Fee:     fee,
	})
	if err != nil {
		return OpenResult{}, err
	}
	return OpenResult{Position: pos, Trade: trade}, nil
}

type CloseResult struct {
	Trade          model.FuturesTrade `json:"trade"`
	ReturnToWallet decimal.Decimal    `json:"returnToWallet"`
	RealizedPnl    decimal.Decimal    `json:"realizedPnl"`
	Fee            decimal.Decimal    `json:"fee"`
	Price          pricing.Execution  `json:"price"`
}

// Close settles a position at the current reference price. A losing
// position whose loss exceeds its margin spends the shortfall from the
// futures wallet; if the wallet cannot cover it the close fails whole.
func (s *Service) Close(ctx context.Context, guestID, symbol string, clientPrice *decimal.Decimal) (CloseResult, error) {
	sym, err := s.prices.AssertAllowedSymbol(ctx, symbol)
	if err != nil {
		return CloseResult{}, err
	}
	exec, err := s.prices.ResolveExecutionPrice(ctx, sym, clientPrice)
	if err != nil {
		return CloseResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CloseResult{}, err
	}
	defer tx.Rollback(ctx)

	res, err := s.closeTx(ctx, tx, guestID, sym, exec.ExecutionPrice)
	if err != nil {
		return CloseResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CloseResult{}, err
	}
	res.Price = exec
	return res, nil
}

func (s *Service) closeTx(ctx context.Context, db ledger.DB, guestID, symbol string, exitPrice decimal.Decimal) (CloseResult, error) {
	pos, err := s.store.GetPosition(ctx, db, guestID, symbol)
	if err != nil {
		return CloseResult{}, err
	}

	// The conditional delete doubles as the close claim: of any number
	// of concurrent closes exactly one proceeds.
	deleted, err := s.store.DeletePosition(ctx, db, pos.ID, guestID)
	if err != nil {
		return CloseResult{}, err
	}
	if !deleted {
		return CloseResult{}, apperr.PositionNotFound()
	}

	pnl := UnrealizedPnl(pos.Side, pos.EntryPrice, exitPrice, pos.Qty)
	fee := TakerFee(pos.Qty.Mul(exitPrice))
	ret := pos.Margin.Add(pnl).Sub(fee)

	if ret.IsNegative() {
		if err := s.ledger.SpendFuturesCash(ctx, db, guestID, ret.Neg()); err != nil {
			return CloseResult{}, err
		}
	} else if ret.IsPositive() {
		if err := s.ledger.CreditFuturesCash(ctx, db, guestID, ret); err != nil {
			return CloseResult{}, err
		}
	}

	trade, err := s.store.InsertFuturesTrade(ctx, db, model.FuturesTrade{
		GuestID:     guestID,
		Symbol:      symbol,
		Side:        pos.Side,
		Action:      types.FuturesActionClose,
		Qty:         pos.Qty,
		Price:       exitPrice,
		Fee:         fee,
		RealizedPnl: pnl,
	})
	if err != nil {
		return CloseResult{}, err
	}
	return CloseResult{Trade: trade, ReturnToWallet: ret, RealizedPnl: pnl, Fee: fee}, nil
}

// AddMargin moves cash from the futures wallet into a position's margin,
// pushing the liquidation price away from the mark.
func (s *Service) AddMargin(ctx context.Context, guestID, symbol string, amount decimal.Decimal) (model.FuturesPosition, error) {
	if !amount.IsPositive() {
		return model.FuturesPosition{}, apperr.InvalidAmount("amount")
	}
	sym, err := s.prices.AssertAllowedSymbol(ctx, symbol)
	if err != nil {
		return model.FuturesPosition{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.FuturesPosition{}, err
	}
	defer tx.Rollback(ctx)

	pos, err := s.addMarginTx(ctx, tx, guestID, sym, amount)
	if err != nil {
		return model.FuturesPosition{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.FuturesPosition{}, err
	}
	return pos, nil
}

func (s *Service) addMarginTx(ctx context.Context, db ledger.DB, guestID, symbol string, amount decimal.Decimal) (model.FuturesPosition, error) {
	pos, err := s.store.GetPosition(ctx, db, guestID, symbol)
	if err != nil {
		return model.FuturesPosition{}, err
	}
	if err := s.ledger.SpendFuturesCash(ctx, db, guestID, amount); err != nil {
		return model.FuturesPosition{}, err
	}
	// AddMargin increments in SQL and returns the resulting row, so two
	// concurrent top-ups both land.
	pos, err = s.store.AddMargin(ctx, db, pos.ID, amount)
	if err != nil {
		return model.FuturesPosition{}, err
	}

	// Entry notional is fixed at open; only margin moved.
	notional := pos.Qty.Mul(pos.EntryPrice)
	liq := LiquidationPrice(pos.Side, pos.EntryPrice, pos.Margin, pos.Qty, notional)
	if err := s.store.SetLiquidationPrice(ctx, db, pos.ID, liq); err != nil {
		return model.FuturesPosition{}, err
	}
	pos.LiquidationPrice = liq
	return pos, nil
}

type LiquidationSweep struct {
	Checked    int                  `json:"checked"`
	Liquidated []model.FuturesTrade `json:"liquidated"`
}

// CheckLiquidations marks every open position for the guest against the
// current reference price and liquidates those at or under the
// maintenance floor. Positions whose symbol has no price are skipped.
func (s *Service) CheckLiquidations(ctx context.Context, guestID string) (LiquidationSweep, error) {
	positions, err := s.store.ListPositions(ctx, guestID)
	if err != nil {
		return LiquidationSweep{}, err
	}

	sweep := LiquidationSweep{Liquidated: make([]model.FuturesTrade, 0)}
	for _, pos := range positions {
		sweep.Checked++
		mark, err := s.prices.ReferencePrice(ctx, pos.Symbol)
		if err != nil {
			s.log.WithError(err).WithField("symbol", pos.Symbol).Warn("liquidation check: no reference price")
			continue
		}
		trade, liquidated, err := s.liquidateIfBreached(ctx, pos, mark)
		if err != nil {
			s.log.WithError(err).WithField("positionId", pos.ID).Warn("liquidation attempt failed")
			continue
		}
		if liquidated {
			sweep.Liquidated = append(sweep.Liquidated, trade)
		}
	}
	return sweep, nil
}

func (s *Service) liquidateIfBreached(ctx context.Context, pos model.FuturesPosition, markPrice decimal.Decimal) (model.FuturesTrade, bool, error) {
	notional := pos.Qty.Mul(pos.EntryPrice)
	equity := Equity(pos.Margin, UnrealizedPnl(pos.Side, pos.EntryPrice, markPrice, pos.Qty))
	if !ShouldLiquidate(equity, notional) {
		return model.FuturesTrade{}, false, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.FuturesTrade{}, false, err
	}
	defer tx.Rollback(ctx)

	trade, liquidated, err := s.liquidateTx(ctx, tx, pos.GuestID, pos.Symbol, markPrice)
	if err != nil || !liquidated {
		return model.FuturesTrade{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.FuturesTrade{}, false, err
	}

	s.log.WithFields(logrus.Fields{
		"symbol": pos.Symbol,
		"side":   pos.Side,
		"mark":   markPrice.String(),
	}).Info("position liquidated")
	return trade, true, nil
}

// liquidateTx re-reads the position on the transaction and recomputes
// equity at the mark: a margin top-up committed after the sweep's
// snapshot must survive, not be liquidated against stale state.
func (s *Service) liquidateTx(ctx context.Context, db ledger.DB, guestID, symbol string, markPrice decimal.Decimal) (model.FuturesTrade, bool, error) {
	pos, err := s.store.GetPosition(ctx, db, guestID, symbol)
	if err != nil {
		if apperr.IsCode(err, apperr.CodePositionNotFound) {
			// A concurrent close or liquidation already settled it.
			return model.FuturesTrade{}, false, nil
		}
		return model.FuturesTrade{}, false, err
	}

	notional := pos.Qty.Mul(pos.EntryPrice)
	equity := Equity(pos.Margin, UnrealizedPnl(pos.Side, pos.EntryPrice, markPrice, pos.Qty))
	if !ShouldLiquidate(equity, notional) {
		return model.FuturesTrade{}, false, nil
	}

	deleted, err := s.store.DeletePosition(ctx, db, pos.ID, pos.GuestID)
	if err != nil {
		return model.FuturesTrade{}, false, err
	}
	if !deleted {
		return model.FuturesTrade{}, false, nil
	}

	fee := notional.Mul(s.cfg.LiquidationFeeRate)
	refund := decimal.Zero
	if !s.cfg.HarshLiquidation {
		refund = decimal.Max(decimal.Zero, equity.Sub(fee))
	}
	if refund.IsPositive() {
		if err := s.ledger.CreditFuturesCash(ctx, db, pos.GuestID, refund); err != nil {
			return model.FuturesTrade{}, false, err
		}
	}
	trade, err := s.store.InsertFuturesTrade(ctx, db, model.FuturesTrade{
		GuestID:     pos.GuestID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Action:      types.FuturesActionLiquidate,
		Qty:         pos.Qty,
		Price:       markPrice,
		Fee:         fee,
		RealizedPnl: refund.Sub(pos.Margin),
	})
	if err != nil {
		return model.FuturesTrade{}, false, err
	}
	return trade, true, nil
}

type TransferResult struct {
	SpotCash    decimal.Decimal `json:"spotCashUSDT"`
	FuturesCash decimal.Decimal `json:"futuresCashUSDT"`
}

// Transfer moves cash between the spot and futures wallets. The amount
// is validated as an exact decimal string before any parsing happens.
func (s *Service) Transfer(ctx context.Context, guestID string, direction types.TransferDirection, rawAmount string) (decimal.Decimal, error) {
	if !direction.Valid() {
		return decimal.Zero, apperr.Validation("direction must be SPOT_TO_FUTURES or FUTURES_TO_SPOT")
	}
	amount, err := money.ParseTransferAmount(rawAmount, 6, s.cfg.TransferMin)
	if err != nil {
		return decimal.Zero, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	if err := s.transferTx(ctx, tx, guestID, direction, amount); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (s *Service) transferTx(ctx context.Context, db ledger.DB, guestID string, direction types.TransferDirection, amount decimal.Decimal) error {
	if err := s.ledger.EnsureAccounts(ctx, db, guestID); err != nil {
		return err
	}
	if direction == types.TransferSpotToFutures {
		if err := s.ledger.SpendCash(ctx, db, guestID, amount); err != nil {
			return err
		}
		return s.ledger.CreditFuturesCash(ctx, db, guestID, amount)
	}
	if err := s.ledger.SpendFuturesCash(ctx, db, guestID, amount); err != nil {
		return err
	}
	return s.ledger.CreditCash(ctx, db, guestID, amount)
}

// Positions returns the guest's open positions marked to the current
// reference prices where available.
func (s *Service) Positions(ctx context.Context, guestID string) ([]model.FuturesPosition, error) {
	positions, err := s.store.ListPositions(ctx, guestID)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		mark, err := s.prices.ReferencePrice(ctx, positions[i].Symbol)
		if err != nil {
			continue
		}
		upnl := UnrealizedPnl(positions[i].Side, positions[i].EntryPrice, mark, positions[i].Qty)
		positions[i].MarkPrice = &mark
		positions[i].UnrealizedPnl = &upnl
	}
	return positions, nil
}

func (s *Service) Trades(ctx context.Context, guestID string) ([]model.FuturesTrade, error) {
	return s.store.ListFuturesTrades(ctx, guestID, 50)
}

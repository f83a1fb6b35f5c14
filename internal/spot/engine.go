// Package spot implements the spot order lifecycle: MARKET orders fill
// immediately against the synthetic market maker at the verified
// reference price, LIMIT orders rest OPEN until a speculative fill
// attempt crosses them. Settlement only ever goes through the ledger
// primitives; this package owns the ordering and the compensation.
package spot

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/ledger"
	"github.com/NaierGG/Nierade/internal/model"
	"github.com/NaierGG/Nierade/internal/pricing"
	"github.com/NaierGG/Nierade/internal/types"
)

// Ledger is the slice of the ledger primitives the engine composes.
type Ledger interface {
	EnsureAccounts(ctx context.Context, db ledger.DB, guestID string) error
	SpendCash(ctx context.Context, db ledger.DB, guestID string, amount decimal.Decimal) error
	CreditCash(ctx context.Context, db ledger.DB, guestID string, amount decimal.Decimal) error
	AddRealizedPnl(ctx context.Context, db ledger.DB, guestID string, delta decimal.Decimal) error
	IncrementHolding(ctx context.Context, db ledger.DB, guestID, symbol string, qty, price decimal.Decimal) (model.Holding, error)
	DecrementHolding(ctx context.Context, db ledger.DB, guestID, symbol string, qty decimal.Decimal) (ledger.HoldingDelta, error)
}

// OrderStore persists orders and trades. Transaction-scoped methods take
// the ledger.DB they must run on.
type OrderStore interface {
	CreateOrder(ctx context.Context, db ledger.DB, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, db ledger.DB, orderID string) (model.Order, error)
	ClaimFill(ctx context.Context, db ledger.DB, orderID, guestID string, at time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, db ledger.DB, orderID, guestID string, at time.Time) error
	CancelOpen(ctx context.Context, db ledger.DB, orderID, guestID string) (bool, error)
	InsertTrade(ctx context.Context, db ledger.DB, tr model.Trade) (model.Trade, error)

	GetOrderForGuest(ctx context.Context, orderID, guestID string) (model.Order, error)
	ListOpenOrders(ctx context.Context, guestID string) ([]model.Order, error)
	ListRecentOrders(ctx context.Context, guestID string, limit int) ([]model.Order, error)
	ListTrades(ctx context.Context, guestID string, limit int) ([]model.Trade, error)
	ListOpenLimitOrders(ctx context.Context, afterID string, limit int) ([]model.Order, error)
}

type Service struct {
	pool   *pgxpool.Pool
	store  OrderStore
	ledger Ledger
	prices *pricing.Resolver
	log    *logrus.Logger
}

func NewService(pool *pgxpool.Pool, store OrderStore, ledgerSvc Ledger, prices *pricing.Resolver, log *logrus.Logger) *Service {
	return &Service{pool: pool, store: store, ledger: ledgerSvc, prices: prices, log: log}
}

type PlaceOrderRequest struct {
	GuestID      string
	Symbol       string
	Side         types.OrderSide
	Type         types.OrderType
	Qty          decimal.Decimal
	LimitPrice   *decimal.Decimal
	CurrentPrice *decimal.Decimal
}

type PlaceOrderResult struct {
	Result string             `json:"result"`
	Order  model.Order        `json:"order"`
	Trade  *model.Trade       `json:"trade,omitempty"`
	Price  *pricing.Execution `json:"price,omitempty"`
}

func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	if req.GuestID == "" {
		return PlaceOrderResult{}, apperr.Validation("guestId is required")
	}
	if !req.Side.Valid() {
		return PlaceOrderResult{}, apperr.Validation("side must be BUY or SELL")
	}
	if !req.Type.Valid() {
		return PlaceOrderResult{}, apperr.Validation("type must be MARKET or LIMIT")
	}
	if !req.Qty.IsPositive() {
		return PlaceOrderResult{}, apperr.InvalidAmount("qty")
	}
	symbol, err := s.prices.AssertAllowedSymbol(ctx, req.Symbol)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	if req.Type == types.OrderTypeLimit {
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return PlaceOrderResult{}, apperr.Validation("limitPrice is required for LIMIT order")
		}
		return s.placeLimitOrder(ctx, req, symbol)
	}

	if req.CurrentPrice == nil {
		return PlaceOrderResult{}, apperr.Validation("currentPrice is required for MARKET order")
	}
	exec, err := s.prices.ResolveExecutionPrice(ctx, symbol, req.CurrentPrice)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	return s.placeMarketOrder(ctx, req, symbol, exec)
}

// placeMarketOrder creates the order already FILLED and settles it in the
// same transaction, so a market order has no observable OPEN state.
func (s *Service) placeMarketOrder(ctx context.Context, req PlaceOrderRequest, symbol string, exec pricing.Execution) (PlaceOrderResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.EnsureAccounts(ctx, tx, req.GuestID); err != nil {
		return PlaceOrderResult{}, err
	}
	now := time.Now().UTC()
	order, err := s.store.CreateOrder(ctx, tx, model.Order{
		GuestID:  req.GuestID,
		Symbol:   symbol,
		Side:     req.Side,
		Type:     types.OrderTypeMarket,
		Qty:      req.Qty,
		Status:   types.OrderStatusFilled,
		FilledAt: &now,
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	trade, err := s.applyFill(ctx, tx, fillInput{
		guestID: req.GuestID,
		symbol:  symbol,
		side:    req.Side,
		qty:     req.Qty,
		price:   exec.ExecutionPrice,
		orderID: &order.ID,
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PlaceOrderResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"symbol": symbol,
		"side":   req.Side,
		"qty":    req.Qty.String(),
		"price":  exec.ExecutionPrice.String(),
	}).Info("market order filled")

	return PlaceOrderResult{Result: "FILLED", Order: order, Trade: &trade, Price: &exec}, nil
}

func (s *Service) placeLimitOrder(ctx context.Context, req PlaceOrderRequest, symbol string) (PlaceOrderResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.EnsureAccounts(ctx, tx, req.GuestID); err != nil {
		return PlaceOrderResult{}, err
	}
	order, err := s.store.CreateOrder(ctx, tx, model.Order{
		GuestID:    req.GuestID,
		Symbol:     symbol,
		Side:       req.Side,
		Type:       types.OrderTypeLimit,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		Status:     types.OrderStatusOpen,
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PlaceOrderResult{}, err
	}
	return PlaceOrderResult{Result: "OPEN", Order: order}, nil
}

type fillInput struct {
	guestID string
	symbol  string
	side    types.OrderSide
	qty     decimal.Decimal
	price   decimal.Decimal
	orderID *string
}

// applyFill runs the settlement sequence for one fill. BUY spends cash
// then accrues the holding; SELL releases the holding first (capturing
// the cost basis), then credits proceeds and books realized P&L. Exactly
// one Trade row is appended per fill.
func (s *Service) applyFill(ctx context.Context, db ledger.DB, in fillInput) (model.Trade, error) {
	if in.side == types.OrderSideBuy {
		cost := in.qty.Mul(in.price)
		if err := s.ledger.SpendCash(ctx, db, in.guestID, cost); err != nil {
			return model.Trade{}, err
		}
		if _, err := s.ledger.IncrementHolding(ctx, db, in.guestID, in.symbol, in.qty, in.price); err != nil {
			return model.Trade{}, err
		}
	} else {
		delta, err := s.ledger.DecrementHolding(ctx, db, in.guestID, in.symbol, in.qty)
		if err != nil {
			return model.Trade{}, err
		}
		proceeds := in.qty.Mul(in.price)
		realized := proceeds.Sub(in.qty.Mul(delta.PreviousAvgPrice))
		if err := s.ledger.CreditCash(ctx, db, in.guestID, proceeds); err != nil {
			return model.Trade{}, err
		}
		if err := s.ledger.AddRealizedPnl(ctx, db, in.guestID, realized); err != nil {
			return model.Trade{}, err
		}
	}

	return s.store.InsertTrade(ctx, db, model.Trade{
		GuestID: in.guestID,
		Symbol:  in.symbol,
		Side:    in.side,
		Qty:     in.qty,
		Price:   in.price,
		OrderID: in.orderID,
	})
}

// CanLimitOrderFill reports whether a resting limit order may execute at
// price: an order only ever executes at a price at least as good as the
// one it asked for.
func CanLimitOrderFill(side types.OrderSide, limitPrice, executionPrice decimal.Decimal) bool {
	if side == types.OrderSideBuy {
		return executionPrice.LessThanOrEqual(limitPrice)
	}
	return executionPrice.GreaterThanOrEqual(limitPrice)
}

type FillResult struct {
	Filled bool               `json:"filled"`
	Trade  *model.Trade       `json:"trade,omitempty"`
	Price  *pricing.Execution `json:"price,omitempty"`
}

// FillLimitOrder attempts to execute one resting limit order at the
// current reference price. It is safe to call speculatively on every
// price tick: when nothing is due to happen it reports filled=false
// without error.
func (s *Service) FillLimitOrder(ctx context.Context, guestID, orderID string, clientPrice *decimal.Decimal) (FillResult, error) {
	order, err := s.store.GetOrderForGuest(ctx, orderID, guestID)
	if err != nil {
		return FillResult{}, err
	}
	exec, err := s.prices.ResolveExecutionPrice(ctx, order.Symbol, clientPrice)
	if err != nil {
		return FillResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FillResult{}, err
	}
	defer tx.Rollback(ctx)

	res, err := s.fillLimitOrderTx(ctx, tx, guestID, orderID, exec.ExecutionPrice)
	if err != nil {
		return FillResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FillResult{}, err
	}
	res.Price = &exec
	return res, nil
}

// fillLimitOrderTx is the claim/settle/unclaim protocol. The conditional
// OPEN->FILLED transition is the claim: of N concurrent attempts exactly
// one sees rows=1. If settlement then fails, the claim is reverted
// (guarded on the timestamp this attempt set) and the original error is
// re-raised, so an order is never left claimed but unsettled.
func (s *Service) fillLimitOrderTx(ctx context.Context, db ledger.DB, guestID, orderID string, executionPrice decimal.Decimal) (FillResult, error) {
	order, err := s.store.GetOrder(ctx, db, orderID)
	if err != nil {
		return FillResult{}, err
	}
	if order.GuestID != guestID {
		return FillResult{}, apperr.OrderNotFound()
	}
	if order.Status.Terminal() || order.FilledAt != nil {
		return FillResult{Filled: false}, nil
	}
	if order.Type != types.OrderTypeLimit {
		return FillResult{}, apperr.InvalidOrderType("only LIMIT orders can be filled via this flow")
	}
	if order.LimitPrice == nil {
		return FillResult{}, apperr.Validation("LIMIT order is missing limitPrice")
	}
	if !CanLimitOrderFill(order.Side, *order.LimitPrice, executionPrice) {
		return FillResult{Filled: false}, nil
	}

	now := time.Now().UTC()
	claimed, err := s.store.ClaimFill(ctx, db, order.ID, guestID, now)
	if err != nil {
		return FillResult{}, err
	}
	if !claimed {
		// Another concurrent attempt won the claim.
		return FillResult{Filled: false}, nil
	}

	trade, err := s.applyFill(ctx, db, fillInput{
		guestID: guestID,
		symbol:  order.Symbol,
		side:    order.Side,
		qty:     order.Qty,
		price:   executionPrice,
		orderID: &order.ID,
	})
	if err != nil {
		if relErr := s.store.ReleaseClaim(ctx, db, order.ID, guestID, now); relErr != nil {
			s.log.WithError(relErr).WithField("orderId", order.ID).Warn("failed to release fill claim")
		}
		return FillResult{}, err
	}
	return FillResult{Filled: true, Trade: &trade}, nil
}

// CancelOrder performs the conditional OPEN->CANCELED transition.
// Repeated cancels of a terminal order report ORDER_NOT_OPEN rather than
// mutating anything.
func (s *Service) CancelOrder(ctx context.Context, guestID, orderID string) (model.Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Order{}, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.CancelOpen(ctx, tx, orderID, guestID)
	if err != nil {
		return model.Order{}, err
	}
	if !ok {
		return model.Order{}, apperr.OrderNotOpen()
	}
	order, err := s.store.GetOrder(ctx, tx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, err
	}
	return order, nil
}

type SweepResult struct {
	Scanned int `json:"scanned"`
	Filled  int `json:"filled"`
	Batches int `json:"batches"`
}

// SweepOpenLimitOrders scans all resting limit orders in id order and
// attempts each one at the current reference price. Per-order failures
// are logged and skipped so one bad symbol cannot stall the sweep.
func (s *Service) SweepOpenLimitOrders(ctx context.Context, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	var res SweepResult
	priceCache := make(map[string]decimal.Decimal)
	cursor := ""

	for {
		orders, err := s.store.ListOpenLimitOrders(ctx, cursor, batchSize)
		if err != nil {
			return res, err
		}
		if len(orders) == 0 {
			return res, nil
		}
		res.Batches++
		for _, order := range orders {
			res.Scanned++
			cursor = order.ID

			price, ok := priceCache[order.Symbol]
			if !ok {
				ref, err := s.prices.ReferencePrice(ctx, order.Symbol)
				if err != nil {
					s.log.WithError(err).WithField("symbol", order.Symbol).Warn("sweep: no reference price")
					continue
				}
				price = ref
				priceCache[order.Symbol] = ref
			}

			filled, err := s.fillOneSweep(ctx, order, price)
			if err != nil {
				s.log.WithError(err).WithField("orderId", order.ID).Warn("sweep: fill attempt failed")
				continue
			}
			if filled {
				res.Filled++
			}
		}
		if len(orders) < batchSize {
			return res, nil
		}
	}
}

func (s *Service) fillOneSweep(ctx context.Context, order model.Order, price decimal.Decimal) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	res, err := s.fillLimitOrderTx(ctx, tx, order.GuestID, order.ID, price)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return res.Filled, nil
}

// Orders returns the open orders plus a short tail of settled history.
func (s *Service) Orders(ctx context.Context, guestID string) ([]model.Order, []model.Order, error) {
	open, err := s.store.ListOpenOrders(ctx, guestID)
	if err != nil {
		return nil, nil, err
	}
	recent, err := s.store.ListRecentOrders(ctx, guestID, 25)
	if err != nil {
		return nil, nil, err
	}
	return open, recent, nil
}

func (s *Service) Trades(ctx context.Context, guestID string) ([]model.Trade, error) {
	return s.store.ListTrades(ctx, guestID, 50)
}

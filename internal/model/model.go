package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/types"
)

// SpotAccount is the cash side of one identity's spot wallet. Holdings live
// in their own rows keyed by (guest_id, symbol).
type SpotAccount struct {
	GuestID      string          `json:"guestId"`
	CashUSDT     decimal.Decimal `json:"cashUSDT"`
	StartingCash decimal.Decimal `json:"startingCash"`
	RealizedPnl  decimal.Decimal `json:"realizedPnl"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Holding struct {
	ID       string          `json:"id"`
	GuestID  string          `json:"guestId"`
	Symbol   string          `json:"symbol"`
	Qty      decimal.Decimal `json:"qty"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
}

type Order struct {
	ID         string            `json:"id"`
	GuestID    string            `json:"guestId"`
	Symbol     string            `json:"symbol"`
	Side       types.OrderSide   `json:"side"`
	Type       types.OrderType   `json:"type"`
	Qty        decimal.Decimal   `json:"qty"`
	LimitPrice *decimal.Decimal  `json:"limitPrice,omitempty"`
	Status     types.OrderStatus `json:"status"`
	FilledAt   *time.Time        `json:"filledAt,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Trade is the append-only audit record for a spot fill.
type Trade struct {
	ID        string          `json:"id"`
	GuestID   string          `json:"guestId"`
	Symbol    string          `json:"symbol"`
	Side      types.OrderSide `json:"side"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	OrderID   *string         `json:"orderId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type FuturesAccount struct {
	GuestID  string          `json:"guestId"`
	CashUSDT decimal.Decimal `json:"cashUSDT"`
}

type FuturesPosition struct {
	ID               string            `json:"id"`
	GuestID          string            `json:"guestId"`
	Symbol           string            `json:"symbol"`
	Side             types.FuturesSide `json:"side"`
	Leverage         int               `json:"leverage"`
	Margin           decimal.Decimal   `json:"margin"`
	EntryPrice       decimal.Decimal   `json:"entryPrice"`
	Qty              decimal.Decimal   `json:"qty"`
	LiquidationPrice decimal.Decimal   `json:"liquidationPrice"`
	CreatedAt        time.Time         `json:"createdAt"`

	// Mark-to-market fields filled in by read paths when a reference
	// price is available; never persisted.
	MarkPrice     *decimal.Decimal `json:"markPrice,omitempty"`
	UnrealizedPnl *decimal.Decimal `json:"unrealizedPnl,omitempty"`
}

type FuturesTrade struct {
	ID          string              `json:"id"`
	GuestID     string              `json:"guestId"`
	Symbol      string              `json:"symbol"`
	Side        types.FuturesSide   `json:"side"`
	Action      types.FuturesAction `json:"action"`
	Qty         decimal.Decimal     `json:"qty"`
	Price       decimal.Decimal     `json:"price"`
	Fee         decimal.Decimal     `json:"fee"`
	RealizedPnl decimal.Decimal     `json:"realizedPnl"`
	CreatedAt   time.Time           `json:"createdAt"`
}

package types

type OrderSide string

type OrderType string

type OrderStatus string

type FuturesSide string

type FuturesAction string

type TransferDirection string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

const (
	FuturesSideLong  FuturesSide = "LONG"
	FuturesSideShort FuturesSide = "SHORT"
)

const (
	FuturesActionOpen      FuturesAction = "OPEN"
	FuturesActionClose     FuturesAction = "CLOSE"
	FuturesActionLiquidate FuturesAction = "LIQUIDATE"
)

const (
	TransferSpotToFutures TransferDirection = "SPOT_TO_FUTURES"
	TransferFuturesToSpot TransferDirection = "FUTURES_TO_SPOT"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled
}

func (s FuturesSide) Valid() bool {
	return s == FuturesSideLong || s == FuturesSideShort
}

func (d TransferDirection) Valid() bool {
	return d == TransferSpotToFutures || d == TransferFuturesToSpot
}

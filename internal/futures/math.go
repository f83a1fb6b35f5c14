// Package futures implements the isolated-margin perpetuals wallet:
// one position per symbol, margin posted up front, taker fees on entry
// and exit, and liquidation when equity falls to the maintenance floor.
package futures

import (
	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/types"
)

var (
	// MaintenanceMarginRate is the fraction of entry notional a position
	// must retain as equity before it is liquidated.
	MaintenanceMarginRate = decimal.RequireFromString("0.005")

	// TakerFeeRate applies to notional on both entry and exit.
	TakerFeeRate = decimal.RequireFromString("0.0004")
)

const (
	MinLeverage = 1
	MaxLeverage = 100
)

func Notional(margin decimal.Decimal, leverage int) decimal.Decimal {
	return margin.Mul(decimal.NewFromInt(int64(leverage)))
}

func PositionQty(notional, entryPrice decimal.Decimal) decimal.Decimal {
	return notional.Div(entryPrice)
}

func MaintenanceMargin(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(MaintenanceMarginRate)
}

func TakerFee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(TakerFeeRate)
}

// LiquidationPrice solves for the mark price at which equity equals the
// maintenance margin. For LONG that sits below entry, for SHORT above.
func LiquidationPrice(side types.FuturesSide, entryPrice, margin, qty, notional decimal.Decimal) decimal.Decimal {
	maint := MaintenanceMargin(notional)
	shift := maint.Sub(margin).Div(qty)
	if side == types.FuturesSideLong {
		return entryPrice.Add(shift)
	}
	return entryPrice.Sub(shift)
}

func UnrealizedPnl(side types.FuturesSide, entryPrice, markPrice, qty decimal.Decimal) decimal.Decimal {
	if side == types.FuturesSideLong {
		return markPrice.Sub(entryPrice).Mul(qty)
	}
	return entryPrice.Sub(markPrice).Mul(qty)
}

func Equity(margin, unrealizedPnl decimal.Decimal) decimal.Decimal {
	return margin.Add(unrealizedPnl)
}

// ShouldLiquidate reports whether equity has fallen to or below the
// maintenance floor for the position's entry notional.
func ShouldLiquidate(equity, notional decimal.Decimal) bool {
	return equity.LessThanOrEqual(MaintenanceMargin(notional))
}

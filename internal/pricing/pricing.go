// Package pricing keeps the server price-authoritative. Callers may send
// the price they observed on their own stream; it is cross-checked against
// the trusted reference price and then discarded. Settlement always uses
// the reference.
package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/NaierGG/Nierade/internal/apperr"
)

// DefaultMaxDriftPct is the widest deviation tolerated between a
// client-observed price and the reference price, in percent.
var DefaultMaxDriftPct = decimal.RequireFromString("0.5")

// PriceSource supplies the trusted last price for a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SymbolList answers whether a trading pair is supported at all.
type SymbolList interface {
	IsAllowed(ctx context.Context, symbol string) (bool, error)
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Execution is the outcome of resolving a price for settlement.
type Execution struct {
	ExecutionPrice decimal.Decimal `json:"executionPrice"`
	ReferencePrice decimal.Decimal `json:"referencePrice"`
	DriftPct       decimal.Decimal `json:"driftPct"`
}

type Resolver struct {
	source      PriceSource
	symbols     SymbolList
	maxDriftPct decimal.Decimal
}

func NewResolver(source PriceSource, symbols SymbolList, maxDriftPct decimal.Decimal) *Resolver {
	if !maxDriftPct.IsPositive() {
		maxDriftPct = DefaultMaxDriftPct
	}
	return &Resolver{source: source, symbols: symbols, maxDriftPct: maxDriftPct}
}

// AssertAllowedSymbol normalizes symbol and rejects unsupported pairs
// before any ledger mutation happens.
func (r *Resolver) AssertAllowedSymbol(ctx context.Context, symbol string) (string, error) {
	normalized := NormalizeSymbol(symbol)
	ok, err := r.symbols.IsAllowed(ctx, normalized)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.UnsupportedSymbol(normalized)
	}
	return normalized, nil
}

// ReferencePrice fetches the trusted price for symbol. A feed failure or a
// non-positive value is surfaced as PRICE_UNAVAILABLE, never substituted.
func (r *Resolver) ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	normalized := NormalizeSymbol(symbol)
	price, err := r.source.LastPrice(ctx, normalized)
	if err != nil {
		return decimal.Decimal{}, apperr.PriceUnavailable(normalized)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, apperr.PriceUnavailable(normalized)
	}
	return price, nil
}

// VerifyDrift returns the percentage deviation of clientPrice from
// referencePrice, or PRICE_DRIFT_EXCEEDED when it is above maxPct.
func VerifyDrift(clientPrice, referencePrice, maxPct decimal.Decimal) (decimal.Decimal, error) {
	if !clientPrice.IsPositive() {
		return decimal.Decimal{}, apperr.Validation("clientPrice must be a positive number")
	}
	if !referencePrice.IsPositive() {
		return decimal.Decimal{}, apperr.PriceUnavailable("reference")
	}
	drift := clientPrice.Sub(referencePrice).Abs().
		Div(referencePrice).
		Mul(decimal.NewFromInt(100))
	if drift.GreaterThan(maxPct) {
		return decimal.Decimal{}, apperr.PriceDrift(fmt.Sprintf(
			"price drift %s%% exceeds %s%% threshold", drift.StringFixed(4), maxPct.String()))
	}
	return drift, nil
}

// ResolveExecutionPrice fetches the reference price and, when the caller
// supplied a price, verifies it is within drift tolerance. The reference
// price is always the execution price; the client price is a spot-check.
func (r *Resolver) ResolveExecutionPrice(ctx context.Context, symbol string, clientPrice *decimal.Decimal) (Execution, error) {
	reference, err := r.ReferencePrice(ctx, symbol)
	if err != nil {
		return Execution{}, err
	}
	exec := Execution{ExecutionPrice: reference, ReferencePrice: reference}
	if clientPrice != nil {
		drift, err := VerifyDrift(*clientPrice, reference, r.maxDriftPct)
		if err != nil {
			return Execution{}, err
		}
		exec.DriftPct = drift
	}
	return exec, nil
}

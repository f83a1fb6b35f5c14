package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaierGG/Nierade/internal/apperr"
)

type fakeSource struct {
	price decimal.Decimal
	err   error
}

func (f fakeSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, f.err
}

type fakeSymbols map[string]bool

func (f fakeSymbols) IsAllowed(ctx context.Context, symbol string) (bool, error) {
	return f[symbol], nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestVerifyDrift(t *testing.T) {
	maxPct := dec("0.5")

	tests := []struct {
		name      string
		client    string
		reference string
		wantCode  string
		wantDrift string
	}{
		{name: "within tolerance", client: "100.3", reference: "100", wantDrift: "0.3"},
		{name: "exactly at threshold", client: "100.5", reference: "100", wantDrift: "0.5"},
		{name: "exceeds threshold", client: "110", reference: "100", wantCode: apperr.CodePriceDrift},
		{name: "below reference exceeds", client: "90", reference: "100", wantCode: apperr.CodePriceDrift},
		{name: "zero client price", client: "0", reference: "100", wantCode: apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drift, err := VerifyDrift(dec(tt.client), dec(tt.reference), maxPct)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, apperr.IsCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, drift.Equal(dec(tt.wantDrift)), "drift = %s", drift)
		})
	}
}

func TestResolveExecutionPriceUsesReference(t *testing.T) {
	r := NewResolver(fakeSource{price: dec("100")}, fakeSymbols{}, dec("0.5"))

	client := dec("100.3")
	exec, err := r.ResolveExecutionPrice(context.Background(), "btcusdt", &client)
	require.NoError(t, err)

	// The client price never becomes the settlement price.
	assert.True(t, exec.ExecutionPrice.Equal(dec("100")))
	assert.True(t, exec.ReferencePrice.Equal(dec("100")))
	assert.True(t, exec.DriftPct.Equal(dec("0.3")))
}

func TestResolveExecutionPriceWithoutClientPrice(t *testing.T) {
	r := NewResolver(fakeSource{price: dec("250.5")}, fakeSymbols{}, dec("0.5"))

	exec, err := r.ResolveExecutionPrice(context.Background(), "SOLUSDT", nil)
	require.NoError(t, err)
	assert.True(t, exec.ExecutionPrice.Equal(dec("250.5")))
	assert.True(t, exec.DriftPct.IsZero())
}

func TestResolveExecutionPriceDriftRejected(t *testing.T) {
	r := NewResolver(fakeSource{price: dec("100")}, fakeSymbols{}, dec("0.5"))

	client := dec("110")
	_, err := r.ResolveExecutionPrice(context.Background(), "BTCUSDT", &client)
	assert.True(t, apperr.IsCode(err, apperr.CodePriceDrift))
}

func TestReferencePriceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		source fakeSource
	}{
		{name: "feed down", source: fakeSource{err: errors.New("timeout")}},
		{name: "zero price", source: fakeSource{price: decimal.Zero}},
		{name: "negative price", source: fakeSource{price: dec("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.source, fakeSymbols{}, dec("0.5"))
			_, err := r.ReferencePrice(context.Background(), "BTCUSDT")
			assert.True(t, apperr.IsCode(err, apperr.CodePriceUnavailable))
		})
	}
}

func TestAssertAllowedSymbol(t *testing.T) {
	r := NewResolver(fakeSource{price: dec("1")}, fakeSymbols{"BTCUSDT": true}, dec("0.5"))

	got, err := r.AssertAllowedSymbol(context.Background(), " btcusdt ")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got)

	_, err = r.AssertAllowedSymbol(context.Background(), "DOGEUSDT")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnsupportedSymbol))
}

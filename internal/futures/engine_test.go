package futures

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/ledger"
	"github.com/NaierGG/Nierade/internal/model"
	"github.com/NaierGG/Nierade/internal/types"
)

type fakeLedger struct {
	spendFuturesErr error

	spotSpent      []decimal.Decimal
	spotCredited   []decimal.Decimal
	futuresSpent   []decimal.Decimal
	futuresCredits []decimal.Decimal
}

func (f *fakeLedger) EnsureAccounts(context.Context, ledger.DB, string) error { return nil }

func (f *fakeLedger) SpendCash(_ context.Context, _ ledger.DB, _ string, amount decimal.Decimal) error {
	f.spotSpent = append(f.spotSpent, amount)
	return nil
}

func (f *fakeLedger) CreditCash(_ context.Context, _ ledger.DB, _ string, amount decimal.Decimal) error {
	f.spotCredited = append(f.spotCredited, amount)
	return nil
}

func (f *fakeLedger) SpendFuturesCash(_ context.Context, _ ledger.DB, _ string, amount decimal.Decimal) error {
	if f.spendFuturesErr != nil {
		return f.spendFuturesErr
	}
	f.futuresSpent = append(f.futuresSpent, amount)
	return nil
}

func (f *fakeLedger) CreditFuturesCash(_ context.Context, _ ledger.DB, _ string, amount decimal.Decimal) error {
	f.futuresCredits = append(f.futuresCredits, amount)
	return nil
}

type fakeStore struct {
	position    model.FuturesPosition
	hasPosition bool
	deleteOK    bool

	created model.FuturesPosition
	trades  []model.FuturesTrade
	liqSet  []decimal.Decimal
}

func (f *fakeStore) GetPosition(context.Context, ledger.DB, string, string) (model.FuturesPosition, error) {
	if !f.hasPosition {
		return model.FuturesPosition{}, apperr.PositionNotFound()
	}
	return f.position, nil
}

func (f *fakeStore) CreatePosition(_ context.Context, _ ledger.DB, p model.FuturesPosition) (model.FuturesPosition, error) {
	p.ID = "pos-1"
	f.created = p
	return p, nil
}

func (f *fakeStore) AddMargin(_ context.Context, _ ledger.DB, _ string, amount decimal.Decimal) (model.FuturesPosition, error) {
	f.position.Margin = f.position.Margin.Add(amount)
	return f.position, nil
}

func (f *fakeStore) SetLiquidationPrice(_ context.Context, _ ledger.DB, _ string, price decimal.Decimal) error {
	f.liqSet = append(f.liqSet, price)
	return nil
}

func (f *fakeStore) DeletePosition(context.Context, ledger.DB, string, string) (bool, error) {
	return f.deleteOK, nil
}

func (f *fakeStore) InsertFuturesTrade(_ context.Context, _ ledger.DB, tr model.FuturesTrade) (model.FuturesTrade, error) {
	tr.ID = "ftr-1"
	f.trades = append(f.trades, tr)
	return tr, nil
}

func (f *fakeStore) ListPositions(context.Context, string) ([]model.FuturesPosition, error) {
	if f.hasPosition {
		return []model.FuturesPosition{f.position}, nil
	}
	return nil, nil
}

func (f *fakeStore) ListFuturesTrades(context.Context, string, int) ([]model.FuturesTrade, error) {
	return nil, nil
}

func newTestService(store *fakeStore, led *fakeLedger, cfg Config) *Service {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Service{store: store, ledger: led, cfg: cfg, log: log}
}

func longPosition() model.FuturesPosition {
	return model.FuturesPosition{
		ID:               "pos-1",
		GuestID:          "guest-a",
		Symbol:           "BTCUSDT",
		Side:             types.FuturesSideLong,
		Leverage:         10,
		Margin:           d("100"),
		EntryPrice:       d("1000"),
		Qty:              d("1"),
		LiquidationPrice: d("905"),
	}
}

func TestOpenTxSpendsMarginPlusFee(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{}
	svc := newTestService(store, led, Config{})

	res, err := svc.openTx(context.Background(), nil, OpenRequest{
		GuestID:  "guest-a",
		Side:     types.FuturesSideLong,
		Leverage: 10,
		Margin:   d("100"),
	}, "BTCUSDT", d("50000"))
	require.NoError(t, err)

	// notional 1000, fee 0.4, so 100.4 leaves the wallet.
	require.Len(t, led.futuresSpent, 1)
	assert.True(t, led.futuresSpent[0].Equal(d("100.4")))
	assert.True(t, res.Position.Qty.Equal(d("0.02")))
	assert.True(t, res.Position.LiquidationPrice.Equal(d("45250")))
	require.Len(t, store.trades, 1)
	assert.Equal(t, types.FuturesActionOpen, store.trades[0].Action)
	assert.True(t, store.trades[0].Fee.Equal(d("0.4")))
}

func TestOpenTxRejectsDuplicateSymbol(t *testing.T) {
	store := &fakeStore{hasPosition: true, position: longPosition()}
	svc := newTestService(store, &fakeLedger{}, Config{})

	_, err := svc.openTx(context.Background(), nil, OpenRequest{
		GuestID: "guest-a", Side: types.FuturesSideLong, Leverage: 5, Margin: d("50"),
	}, "BTCUSDT", d("1000"))
	assert.True(t, apperr.IsCode(err, apperr.CodePositionExists))
}

func TestOpenValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeLedger{}, Config{})

	_, err := svc.Open(context.Background(), OpenRequest{
		GuestID: "guest-a", Side: types.FuturesSideLong, Leverage: 0, Margin: d("100"),
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation), "leverage 0")

	_, err = svc.Open(context.Background(), OpenRequest{
		GuestID: "guest-a", Side: types.FuturesSideLong, Leverage: 101, Margin: d("100"),
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation), "leverage 101")

	_, err = svc.Open(context.Background(), OpenRequest{
		GuestID: "guest-a", Side: "UP", Leverage: 5, Margin: d("100"),
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation), "bad side")

	_, err = svc.Open(context.Background(), OpenRequest{
		GuestID: "guest-a", Side: types.FuturesSideShort, Leverage: 5, Margin: d("0"),
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidAmount), "zero margin")
}

func TestCloseTxProfit(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: true}
	svc := newTestService(store, led, Config{})

	res, err := svc.closeTx(context.Background(), nil, "guest-a", "BTCUSDT", d("1100"))
	require.NoError(t, err)

	// pnl +100, exit fee 1100*0.0004 = 0.44, return 199.56.
	assert.True(t, res.RealizedPnl.Equal(d("100")))
	assert.True(t, res.Fee.Equal(d("0.44")))
	assert.True(t, res.ReturnToWallet.Equal(d("199.56")))
	require.Len(t, led.futuresCredits, 1)
	assert.True(t, led.futuresCredits[0].Equal(d("199.56")))
	assert.Empty(t, led.futuresSpent)
}

func TestCloseTxShortfallSpendsWallet(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: true}
	svc := newTestService(store, led, Config{})

	// pnl -120 exceeds the 100 margin; exit fee 0.352.
	res, err := svc.closeTx(context.Background(), nil, "guest-a", "BTCUSDT", d("880"))
	require.NoError(t, err)
	assert.True(t, res.ReturnToWallet.Equal(d("-20.352")))
	require.Len(t, led.futuresSpent, 1)
	assert.True(t, led.futuresSpent[0].Equal(d("20.352")))
	assert.Empty(t, led.futuresCredits)
}

func TestCloseTxShortfallInsufficientFundsFails(t *testing.T) {
	led := &fakeLedger{spendFuturesErr: apperr.InsufficientFunds("futures")}
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: true}
	svc := newTestService(store, led, Config{})

	_, err := svc.closeTx(context.Background(), nil, "guest-a", "BTCUSDT", d("880"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))
	assert.Empty(t, store.trades)
}

func TestCloseTxConcurrentCloseLoses(t *testing.T) {
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: false}
	svc := newTestService(store, &fakeLedger{}, Config{})

	_, err := svc.closeTx(context.Background(), nil, "guest-a", "BTCUSDT", d("1100"))
	assert.True(t, apperr.IsCode(err, apperr.CodePositionNotFound))
}

func TestCloseTxMissingPosition(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeLedger{}, Config{})

	_, err := svc.closeTx(context.Background(), nil, "guest-a", "BTCUSDT", d("1000"))
	assert.True(t, apperr.IsCode(err, apperr.CodePositionNotFound))
}

func TestAddMarginTxRecomputesLiquidation(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: longPosition()}
	svc := newTestService(store, led, Config{})

	pos, err := svc.addMarginTx(context.Background(), nil, "guest-a", "BTCUSDT", d("50"))
	require.NoError(t, err)

	require.Len(t, led.futuresSpent, 1)
	assert.True(t, led.futuresSpent[0].Equal(d("50")))
	assert.True(t, pos.Margin.Equal(d("150")))
	// maint 5, margin 150: liq = 1000 + (5-150)/1 = 855.
	assert.True(t, pos.LiquidationPrice.Equal(d("855")), "got %s", pos.LiquidationPrice)
	require.Len(t, store.liqSet, 1)
}

func TestLiquidateTxRefundsResidualEquity(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: true}
	svc := newTestService(store, led, Config{LiquidationFeeRate: d("0.001")})

	// equity 4 at the mark, fee 1: refund 3.
	trade, liquidated, err := svc.liquidateTx(context.Background(), nil, "guest-a", "BTCUSDT", d("904"))
	require.NoError(t, err)
	require.True(t, liquidated)
	require.Len(t, led.futuresCredits, 1)
	assert.True(t, led.futuresCredits[0].Equal(d("3")))
	assert.Equal(t, types.FuturesActionLiquidate, trade.Action)
	assert.True(t, trade.RealizedPnl.Equal(d("-97")))
}

func TestLiquidateTxHarshForfeitsEquity(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: true}
	svc := newTestService(store, led, Config{LiquidationFeeRate: d("0.001"), HarshLiquidation: true})

	trade, liquidated, err := svc.liquidateTx(context.Background(), nil, "guest-a", "BTCUSDT", d("904"))
	require.NoError(t, err)
	require.True(t, liquidated)
	assert.Empty(t, led.futuresCredits)
	assert.True(t, trade.RealizedPnl.Equal(d("-100")))
}

func TestLiquidateTxNeverRefundsNegativeEquity(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: longPosition(), deleteOK: true}
	svc := newTestService(store, led, Config{LiquidationFeeRate: d("0.001")})

	_, liquidated, err := svc.liquidateTx(context.Background(), nil, "guest-a", "BTCUSDT", d("890"))
	require.NoError(t, err)
	require.True(t, liquidated)
	assert.Empty(t, led.futuresCredits)
}

func TestLiquidateTxHonorsConcurrentMarginTopUp(t *testing.T) {
	// The transactional read sees a margin top-up that landed after the
	// sweep snapshot: equity 54 against maintenance 5, so no liquidation.
	pos := longPosition()
	pos.Margin = d("150")
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: true, position: pos, deleteOK: true}
	svc := newTestService(store, led, Config{LiquidationFeeRate: d("0.001")})

	_, liquidated, err := svc.liquidateTx(context.Background(), nil, "guest-a", "BTCUSDT", d("904"))
	require.NoError(t, err)
	assert.False(t, liquidated)
	assert.Empty(t, store.trades)
	assert.Empty(t, led.futuresCredits)
}

func TestLiquidateTxSkipsAlreadySettledPosition(t *testing.T) {
	led := &fakeLedger{}
	store := &fakeStore{hasPosition: false}
	svc := newTestService(store, led, Config{LiquidationFeeRate: d("0.001")})

	_, liquidated, err := svc.liquidateTx(context.Background(), nil, "guest-a", "BTCUSDT", d("904"))
	require.NoError(t, err)
	assert.False(t, liquidated)
	assert.Empty(t, led.futuresCredits)
}

func TestTransferTxDirections(t *testing.T) {
	led := &fakeLedger{}
	svc := newTestService(&fakeStore{}, led, Config{TransferMin: d("0.01")})

	err := svc.transferTx(context.Background(), nil, "guest-a", types.TransferSpotToFutures, d("250"))
	require.NoError(t, err)
	require.Len(t, led.spotSpent, 1)
	assert.True(t, led.spotSpent[0].Equal(d("250")))
	require.Len(t, led.futuresCredits, 1)

	err = svc.transferTx(context.Background(), nil, "guest-a", types.TransferFuturesToSpot, d("100"))
	require.NoError(t, err)
	require.Len(t, led.futuresSpent, 1)
	require.Len(t, led.spotCredited, 1)
	assert.True(t, led.spotCredited[0].Equal(d("100")))
}

func TestTransferRejectsBadAmounts(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeLedger{}, Config{TransferMin: d("0.01")})

	for _, raw := range []string{"", "abc", "-5", "1e3", "1.2345678", "0.001"} {
		_, err := svc.Transfer(context.Background(), "guest-a", types.TransferSpotToFutures, raw)
		assert.Error(t, err, "amount %q", raw)
	}

	_, err := svc.Transfer(context.Background(), "guest-a", "SIDEWAYS", "10")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

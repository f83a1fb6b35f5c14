package ledger

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaierGG/Nierade/internal/apperr"
)

// fakeDB replays a scripted sequence of statement results, recording the
// SQL it saw. Exec results are CommandTags; QueryRow results are scan
// functions.
type fakeDB struct {
	t       *testing.T
	execs   []fakeExec
	rows    []func(dest ...any) error
	sqlSeen []string
}

type fakeExec struct {
	tag pgconn.CommandTag
	err error
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func (f *fakeDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.sqlSeen = append(f.sqlSeen, sql)
	require.NotEmpty(f.t, f.execs, "unexpected Exec: %s", sql)
	next := f.execs[0]
	f.execs = f.execs[1:]
	return next.tag, next.err
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.sqlSeen = append(f.sqlSeen, sql)
	require.NotEmpty(f.t, f.rows, "unexpected QueryRow: %s", sql)
	next := f.rows[0]
	f.rows = f.rows[1:]
	return fakeRow{scan: next}
}

func tag(s string) fakeExec { return fakeExec{tag: pgconn.NewCommandTag(s)} }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func holdingRow(id, qty, avg string) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*decimal.Decimal) = dec(qty)
		*dest[2].(*decimal.Decimal) = dec(avg)
		return nil
	}
}

func noRows(dest ...any) error { return pgx.ErrNoRows }

func newService() *Service {
	return NewService(nil, dec("10000"))
}

func TestSpendCashInsufficientAtCommitTime(t *testing.T) {
	db := &fakeDB{t: t, execs: []fakeExec{tag("UPDATE 0")}}

	err := newService().SpendCash(context.Background(), db, "guest_x", dec("100"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))
}

func TestSpendCashSuccess(t *testing.T) {
	db := &fakeDB{t: t, execs: []fakeExec{tag("UPDATE 1")}}

	err := newService().SpendCash(context.Background(), db, "guest_x", dec("100"))
	require.NoError(t, err)
	assert.Contains(t, db.sqlSeen[0], "cash_usdt >= $1")
}

func TestSpendCashRejectsNonPositive(t *testing.T) {
	err := newService().SpendCash(context.Background(), &fakeDB{t: t}, "guest_x", decimal.Zero)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidAmount))

	err = newService().SpendCash(context.Background(), &fakeDB{t: t}, "guest_x", dec("-5"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidAmount))
}

func TestCreditCashMissingAccount(t *testing.T) {
	db := &fakeDB{t: t, execs: []fakeExec{tag("UPDATE 0")}}

	err := newService().CreditCash(context.Background(), db, "guest_x", dec("1"))
	assert.True(t, apperr.IsCode(err, apperr.CodeAccountNotFound))
}

func TestSpendFuturesCashConditional(t *testing.T) {
	db := &fakeDB{t: t, execs: []fakeExec{tag("UPDATE 0")}}

	err := newService().SpendFuturesCash(context.Background(), db, "guest_x", dec("50"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))
	assert.Contains(t, db.sqlSeen[0], "futures_accounts")
}

func TestDecrementHoldingCapturesAvgPriceAndNormalizes(t *testing.T) {
	// Selling the full quantity resets the row to (0, 0).
	db := &fakeDB{
		t:     t,
		rows:  []func(dest ...any) error{holdingRow("h1", "2", "100")},
		execs: []fakeExec{tag("UPDATE 1")},
	}

	delta, err := newService().DecrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("2"))
	require.NoError(t, err)
	assert.True(t, delta.PreviousQty.Equal(dec("2")))
	assert.True(t, delta.PreviousAvgPrice.Equal(dec("100")))
	assert.True(t, delta.NextQty.IsZero())
}

func TestDecrementHoldingInsufficient(t *testing.T) {
	db := &fakeDB{t: t, rows: []func(dest ...any) error{holdingRow("h1", "1", "100")}}

	_, err := newService().DecrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("2"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientHolding))
}

func TestDecrementHoldingMissingRow(t *testing.T) {
	db := &fakeDB{t: t, rows: []func(dest ...any) error{noRows}}

	_, err := newService().DecrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("1"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientHolding))
}

func TestDecrementHoldingRetriesThenConflicts(t *testing.T) {
	rows := make([]func(dest ...any) error, maxRetries)
	execs := make([]fakeExec, maxRetries)
	for i := range rows {
		rows[i] = holdingRow("h1", "5", "100")
		execs[i] = tag("UPDATE 0") // every CAS attempt loses the race
	}
	db := &fakeDB{t: t, rows: rows, execs: execs}

	_, err := newService().DecrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("1"))
	assert.True(t, apperr.IsCode(err, apperr.CodeLedgerConflict))
	assert.Empty(t, db.rows, "expected exactly %d attempts", maxRetries)
}

func TestIncrementHoldingWeightedAverage(t *testing.T) {
	// 1 @ 100 held, buying 3 @ 200 -> avg (1*100+3*200)/4 = 175.
	db := &fakeDB{
		t:     t,
		rows:  []func(dest ...any) error{holdingRow("h1", "1", "100")},
		execs: []fakeExec{tag("UPDATE 1")},
	}

	h, err := newService().IncrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("3"), dec("200"))
	require.NoError(t, err)
	assert.True(t, h.Qty.Equal(dec("4")))
	assert.True(t, h.AvgPrice.Equal(dec("175")))
}

func TestIncrementHoldingCreatesRow(t *testing.T) {
	db := &fakeDB{
		t:     t,
		rows:  []func(dest ...any) error{noRows},
		execs: []fakeExec{tag("INSERT 0 1")},
	}

	h, err := newService().IncrementHolding(context.Background(), db, "guest_x", "ETHUSDT", dec("2"), dec("3000"))
	require.NoError(t, err)
	assert.True(t, h.Qty.Equal(dec("2")))
	assert.True(t, h.AvgPrice.Equal(dec("3000")))
}

func TestIncrementHoldingLostInsertRaceFallsBackToUpdate(t *testing.T) {
	// First pass: no row, insert loses to a concurrent creator.
	// Second pass: row is there, CAS update succeeds.
	db := &fakeDB{
		t: t,
		rows: []func(dest ...any) error{
			noRows,
			holdingRow("h1", "1", "100"),
		},
		execs: []fakeExec{tag("INSERT 0 0"), tag("UPDATE 1")},
	}

	h, err := newService().IncrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("1"), dec("300"))
	require.NoError(t, err)
	assert.True(t, h.Qty.Equal(dec("2")))
	assert.True(t, h.AvgPrice.Equal(dec("200")))
}

func TestIncrementHoldingExhaustsRetries(t *testing.T) {
	rows := make([]func(dest ...any) error, maxRetries)
	execs := make([]fakeExec, maxRetries)
	for i := range rows {
		rows[i] = holdingRow("h1", "1", "100")
		execs[i] = tag("UPDATE 0")
	}
	db := &fakeDB{t: t, rows: rows, execs: execs}

	_, err := newService().IncrementHolding(context.Background(), db, "guest_x", "BTCUSDT", dec("1"), dec("100"))
	assert.True(t, apperr.IsCode(err, apperr.CodeLedgerConflict))
}

func TestEnsureAccountsProvisionsBothWallets(t *testing.T) {
	db := &fakeDB{t: t, execs: []fakeExec{tag("INSERT 0 1"), tag("INSERT 0 1"), tag("INSERT 0 1")}}

	err := newService().EnsureAccounts(context.Background(), db, "guest_x")
	require.NoError(t, err)
	require.Len(t, db.sqlSeen, 3)
	assert.Contains(t, db.sqlSeen[0], "guests")
	assert.Contains(t, db.sqlSeen[1], "spot_accounts")
	assert.Contains(t, db.sqlSeen[2], "futures_accounts")
}

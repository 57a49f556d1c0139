package reconciler

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/balancerecon/internal/domain"
	"github.com/vadiminshakov/balancerecon/internal/storage/snapshot"
)

var scale = decimal.NewFromInt(1_000_000)

type fakeSource struct {
	balances map[string]*big.Int
	failures map[string]error
	queried  []string
}

func (f *fakeSource) BalanceOf(_ context.Context, address string) (*big.Int, error) {
	f.queried = append(f.queried, address)
	if err, ok := f.failures[address]; ok {
		return nil, err
	}
	if bal, ok := f.balances[address]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

type recordingWriter struct {
	saves [][]domain.MergedRecord
	err   error
	errAt int
}

func (w *recordingWriter) Save(recs []domain.MergedRecord) error {
	if w.err != nil && len(w.saves) == w.errAt {
		return w.err
	}
	w.saves = append(w.saves, slices.Clone(recs))
	return nil
}

func (w *recordingWriter) last() []domain.MergedRecord {
	if len(w.saves) == 0 {
		return nil
	}
	return w.saves[len(w.saves)-1]
}

type failingJournal struct{}

func (failingJournal) Append(domain.MergedRecord) error { return errors.New("disk full") }

func input(user, addr, recorded string) domain.InputRecord {
	return domain.InputRecord{User: user, Address: addr, Recorded: decimal.RequireFromString(recorded)}
}

func TestReconciler_ZeroOnchain(t *testing.T) {
	source := &fakeSource{}
	writer := &recordingWriter{}

	r, err := NewReconciler(zap.NewNop(), source, writer, scale)
	require.NoError(t, err)

	merged, err := r.Run(context.Background(), slices.Values([]domain.InputRecord{input("A", "0xAA", "10.0")}))
	require.NoError(t, err)

	require.Len(t, merged, 1)
	assert.True(t, merged[0].Recorded.Equal(decimal.NewFromInt(10)))
	assert.True(t, merged[0].Observed.IsZero())
	assert.Equal(t, merged, writer.last())
}

func TestReconciler_ScalesRawBalance(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		scale    decimal.Decimal
		expected string
	}{
		{name: "Six decimals", raw: big.NewInt(12_345_678), scale: scale, expected: "12.345678"},
		{name: "Below one unit", raw: big.NewInt(1), scale: scale, expected: "0.000001"},
		{name: "Eighteen decimals", raw: big.NewInt(1), scale: decimal.New(1, 18), expected: "0.000000000000000001"},
		{name: "Unscaled", raw: big.NewInt(42), scale: decimal.NewFromInt(1), expected: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{balances: map[string]*big.Int{"0xAA": tt.raw}}
			r, err := NewReconciler(nil, source, &recordingWriter{}, tt.scale)
			require.NoError(t, err)

			merged, err := r.Run(context.Background(), slices.Values([]domain.InputRecord{input("A", "0xAA", "1")}))
			require.NoError(t, err)
			require.Len(t, merged, 1)
			assert.Equal(t, tt.expected, merged[0].Observed.String())
		})
	}
}

func TestReconciler_StopsOnFirstLookupFailure(t *testing.T) {
	source := &fakeSource{
		balances: map[string]*big.Int{"0x01": big.NewInt(5_000_000), "0x03": big.NewInt(1)},
		failures: map[string]error{"0x02": errors.New("execution reverted")},
	}
	writer := &recordingWriter{}

	r, err := NewReconciler(zap.NewNop(), source, writer, scale)
	require.NoError(t, err)

	records := slices.Values([]domain.InputRecord{
		input("first", "0x01", "5"),
		input("second", "0x02", "1"),
		input("third", "0x03", "1"),
	})

	merged, err := r.Run(context.Background(), records)
	require.Error(t, err)

	var lookupErr *domain.LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "0x02", lookupErr.Address)
	assert.Contains(t, err.Error(), "execution reverted")

	assert.Equal(t, []string{"0x01", "0x02"}, source.queried, "third record must never be attempted")
	require.Len(t, merged, 1)

	persisted := writer.last()
	require.Len(t, persisted, 1)
	assert.Equal(t, "first", persisted[0].User)
}

func TestReconciler_KeepsSourceLookupError(t *testing.T) {
	sourceErr := &domain.LookupError{Address: "0xAA", Err: errors.New("not a hex address")}
	source := &fakeSource{failures: map[string]error{"0xAA": sourceErr}}

	r, err := NewReconciler(nil, source, &recordingWriter{}, scale)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), slices.Values([]domain.InputRecord{input("A", "0xAA", "1")}))
	assert.Same(t, sourceErr, err)
}

func TestReconciler_PersistsAfterEveryRecord(t *testing.T) {
	writer := &recordingWriter{}
	r, err := NewReconciler(nil, &fakeSource{}, writer, scale)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), slices.Values([]domain.InputRecord{
		input("A", "0xAA", "1"),
		input("B", "0xBB", "2"),
		input("C", "0xCC", "3"),
	}))
	require.NoError(t, err)

	// exactly one save per record, each holding everything merged so far
	require.Len(t, writer.saves, 3)
	for i, saved := range writer.saves {
		assert.Len(t, saved, i+1)
	}
	assert.Equal(t, "C", writer.last()[2].User)
}

func TestReconciler_FirstLookupFailureWritesNothing(t *testing.T) {
	source := &fakeSource{failures: map[string]error{"0xAA": errors.New("connection refused")}}
	writer := &recordingWriter{}

	r, err := NewReconciler(nil, source, writer, scale)
	require.NoError(t, err)

	merged, err := r.Run(context.Background(), slices.Values([]domain.InputRecord{
		input("A", "0xAA", "1"),
		input("B", "0xBB", "1"),
	}))

	var lookupErr *domain.LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Empty(t, merged)
	assert.Empty(t, writer.saves)
	assert.Equal(t, []string{"0xAA"}, source.queried)
}

func TestReconciler_EmptyInput(t *testing.T) {
	writer := &recordingWriter{}
	r, err := NewReconciler(nil, &fakeSource{}, writer, scale)
	require.NoError(t, err)

	merged, err := r.Run(context.Background(), slices.Values([]domain.InputRecord{}))
	require.NoError(t, err)
	assert.Empty(t, merged)

	require.Len(t, writer.saves, 1)
	assert.Empty(t, writer.saves[0])
}

func TestReconciler_PersistenceFailure(t *testing.T) {
	t.Run("plain writer error", func(t *testing.T) {
		source := &fakeSource{}
		writer := &recordingWriter{err: errors.New("read-only file system"), errAt: 1}

		r, err := NewReconciler(nil, source, writer, scale)
		require.NoError(t, err)

		_, err = r.Run(context.Background(), slices.Values([]domain.InputRecord{
			input("A", "0xAA", "1"),
			input("B", "0xBB", "1"),
			input("C", "0xCC", "1"),
		}))

		var persistErr *domain.PersistenceError
		require.True(t, errors.As(err, &persistErr))
		assert.Equal(t, []string{"0xAA", "0xBB"}, source.queried)
		assert.Len(t, writer.last(), 1)
	})

	t.Run("journal error", func(t *testing.T) {
		r, err := NewReconciler(nil, &fakeSource{}, &recordingWriter{}, scale, WithJournal(failingJournal{}))
		require.NoError(t, err)

		_, err = r.Run(context.Background(), slices.Values([]domain.InputRecord{input("A", "0xAA", "1")}))

		var persistErr *domain.PersistenceError
		require.True(t, errors.As(err, &persistErr))
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestReconciler_ProgressLines(t *testing.T) {
	var out bytes.Buffer
	source := &fakeSource{balances: map[string]*big.Int{"0xAA": big.NewInt(2_500_000)}}

	r, err := NewReconciler(nil, source, &recordingWriter{}, scale, WithProgress(&out))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), slices.Values([]domain.InputRecord{input("alice", "0xAA", "3")}))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "User           Onchain        Offchain       Difference sync", lines[0])
	assert.Equal(t, strings.Repeat("=", 60), lines[1])
	assert.Equal(t, "alice          2.50           3.00           0.500000000000 ", lines[2])
}

func TestReconciler_WithSnapshotStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balances.json")
	store := snapshot.NewStore(path)
	source := &fakeSource{
		balances: map[string]*big.Int{"0x01": big.NewInt(1_000_000)},
		failures: map[string]error{"0x02": errors.New("timeout")},
	}

	r, err := NewReconciler(nil, source, store, scale)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), slices.Values([]domain.InputRecord{
		input("first", "0x01", "1"),
		input("second", "0x02", "1"),
		input("third", "0x03", "1"),
	}))
	require.Error(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "first", loaded[0].User)
	assert.True(t, loaded[0].Observed.Equal(decimal.NewFromInt(1)))
}

func TestNewReconciler_Validation(t *testing.T) {
	_, err := NewReconciler(nil, nil, &recordingWriter{}, scale)
	assert.Error(t, err)

	_, err = NewReconciler(nil, &fakeSource{}, nil, scale)
	assert.Error(t, err)

	_, err = NewReconciler(nil, &fakeSource{}, &recordingWriter{}, decimal.Zero)
	assert.ErrorContains(t, err, "scale factor must be positive")

	_, err = NewReconciler(nil, &fakeSource{}, &recordingWriter{}, decimal.NewFromInt(-1))
	assert.Error(t, err)
}

// Package reconciler merges off-chain recorded balances with balances read from chain.
package reconciler

import (
	"context"
	"fmt"
	"io"
	"iter"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/balancerecon/internal/domain"
)

// divisionPrecision keeps every digit of an 18-decimals token after scaling.
const divisionPrecision = 36

type balanceSource interface {
	BalanceOf(ctx context.Context, address string) (*big.Int, error)
}

type snapshotWriter interface {
	Save(recs []domain.MergedRecord) error
}

type recordJournal interface {
	Append(rec domain.MergedRecord) error
}

// Reconciler walks input records one by one, strictly in order.
type Reconciler struct {
	l       *zap.Logger
	source  balanceSource
	writer  snapshotWriter
	journal recordJournal
	scale   decimal.Decimal
	out     io.Writer
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithJournal appends every merged record to j after the snapshot is saved.
func WithJournal(j recordJournal) Option {
	return func(r *Reconciler) {
		r.journal = j
	}
}

// WithProgress sets where progress lines are printed. Defaults to io.Discard.
func WithProgress(w io.Writer) Option {
	return func(r *Reconciler) {
		if w != nil {
			r.out = w
		}
	}
}

// NewReconciler creates a reconciler. scale converts raw smallest-unit balances into token units.
func NewReconciler(l *zap.Logger, source balanceSource, writer snapshotWriter, scale decimal.Decimal, opts ...Option) (*Reconciler, error) {
	if source == nil {
		return nil, errors.New("balance source is required")
	}
	if writer == nil {
		return nil, errors.New("snapshot writer is required")
	}
	if !scale.IsPositive() {
		return nil, fmt.Errorf("scale factor must be positive, got %s", scale.String())
	}
	if l == nil {
		l = zap.NewNop()
	}

	r := &Reconciler{
		l:      l,
		source: source,
		writer: writer,
		scale:  scale,
		out:    io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run reconciles records and returns the merged snapshot.
// The snapshot is rewritten once per merged record, so after a failure it holds
// exactly the records processed before the failing one. If the very first lookup
// fails nothing is written.
func (r *Reconciler) Run(ctx context.Context, records iter.Seq[domain.InputRecord]) ([]domain.MergedRecord, error) {
	merged := make([]domain.MergedRecord, 0)

	r.printHeader()

	for in := range records {
		if err := ctx.Err(); err != nil {
			return merged, errors.Wrap(err, "reconciliation canceled")
		}

		raw, err := r.source.BalanceOf(ctx, in.Address)
		if err != nil {
			var lookupErr *domain.LookupError
			if !errors.As(err, &lookupErr) {
				err = &domain.LookupError{Address: in.Address, Err: err}
			}

			r.l.Error("Failed to fetch on-chain balance",
				zap.String("user", in.User),
				zap.String("address", in.Address),
				zap.Int("processed", len(merged)),
				zap.Error(err))

			return merged, err
		}

		rec := domain.NewMergedRecord(in, r.normalize(raw))
		merged = append(merged, rec)

		if err := r.save(merged); err != nil {
			r.l.Error("Failed to persist snapshot",
				zap.String("user", in.User),
				zap.Int("records", len(merged)),
				zap.Error(err))

			return merged, err
		}

		if r.journal != nil {
			if err := r.journal.Append(rec); err != nil {
				return merged, &domain.PersistenceError{Path: "journal", Err: err}
			}
		}

		r.printRecord(rec)

		r.l.Debug("Record reconciled",
			zap.String("user", rec.User),
			zap.String("address", rec.Address),
			zap.String("observed", rec.Observed.String()),
			zap.String("recorded", rec.Recorded.String()))
	}

	// empty input still leaves a loadable snapshot behind
	if len(merged) == 0 {
		if err := r.save(merged); err != nil {
			return merged, err
		}
	}

	return merged, nil
}

func (r *Reconciler) normalize(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, 0).DivRound(r.scale, divisionPrecision)
}

func (r *Reconciler) save(recs []domain.MergedRecord) error {
	err := r.writer.Save(recs)
	if err == nil {
		return nil
	}

	var persistErr *domain.PersistenceError
	if !errors.As(err, &persistErr) {
		err = &domain.PersistenceError{Err: err}
	}
	return err
}

func (r *Reconciler) printHeader() {
	fmt.Fprintf(r.out, "%-15s%-15s%-15s%-15s\n", "User", "Onchain", "Offchain", "Difference sync")
	fmt.Fprintln(r.out, strings.Repeat("=", 60))
}

func (r *Reconciler) printRecord(rec domain.MergedRecord) {
	fmt.Fprintf(r.out, "%-15s%-15s%-15s%-15s\n",
		rec.User,
		rec.Observed.StringFixed(2),
		rec.Recorded.StringFixed(2),
		rec.Difference().StringFixed(12))
}

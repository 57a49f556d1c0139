package internal

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/balancerecon/config"
	"github.com/vadiminshakov/balancerecon/internal/clients"
	"github.com/vadiminshakov/balancerecon/internal/domain"
	"github.com/vadiminshakov/balancerecon/internal/services/balance"
	"github.com/vadiminshakov/balancerecon/internal/services/reconciler"
	"github.com/vadiminshakov/balancerecon/internal/services/statistics"
	"github.com/vadiminshakov/balancerecon/internal/storage/journal"
	"github.com/vadiminshakov/balancerecon/internal/storage/records"
	"github.com/vadiminshakov/balancerecon/internal/storage/snapshot"
)

// RunReconciliation reads the configured input, resolves every on-chain balance
// and leaves the merged snapshot at conf.OutputPath. Progress lines go to out.
func RunReconciliation(ctx context.Context, conf config.Config, logger *zap.Logger, out io.Writer) error {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	input, err := records.Load(conf.InputPath)
	if err != nil {
		return err
	}

	client, err := clients.NewEthClient(ctx, conf.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("Connected to provider",
		zap.String("rpc_url", conf.RPCURL),
		zap.String("chain_id", client.ConnectedChainID().String()),
		zap.String("contract", conf.ContractAddress))

	source, err := newBalanceSource(client, conf)
	if err != nil {
		return err
	}

	opts := []reconciler.Option{reconciler.WithProgress(out)}

	var j *journal.Journal
	if conf.JournalDir != "" {
		j, err = journal.Open(conf.JournalDir, runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Warn("Failed to close journal", zap.Error(err))
			}
		}()
		opts = append(opts, reconciler.WithJournal(j))
	}

	store := snapshot.NewStore(conf.OutputPath)

	r, err := reconciler.NewReconciler(logger, source, store, conf.ScaleFactor, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create reconciler")
	}

	var journalStart uint64
	if j != nil {
		journalStart = j.Last()
	}

	merged, err := r.Run(ctx, input)
	if err != nil {
		logger.Error("Reconciliation stopped",
			zap.Int("persisted", len(merged)),
			zap.String("snapshot", store.Path()),
			zap.Error(err))
		return err
	}

	if j != nil {
		if err := checkJournal(j, journalStart, runID, len(merged)); err != nil {
			return err
		}
		logger.Info("Journal updated",
			zap.Uint64("start_index", journalStart),
			zap.Uint64("end_index", j.Last()))
	}

	logger.Info("Reconciliation finished",
		zap.Int("records", len(merged)),
		zap.String("snapshot", store.Path()))

	return nil
}

// RunStatistics loads the snapshot at conf.OutputPath and writes the discrepancy report to out.
func RunStatistics(conf config.Config, out io.Writer) error {
	recs, err := snapshot.NewStore(conf.OutputPath).Load()
	if err != nil {
		return err
	}

	return statistics.Compute(recs).WriteReport(out)
}

// checkJournal verifies that the run left exactly one journal entry per merged record.
func checkJournal(j *journal.Journal, start uint64, runID string, merged int) error {
	entries, err := j.Since(start)
	if err != nil {
		return &domain.PersistenceError{Path: "journal", Err: err}
	}

	journaled := 0
	for _, e := range entries {
		if e.RunID == runID {
			journaled++
		}
	}
	if journaled != merged {
		return &domain.PersistenceError{
			Path: "journal",
			Err:  fmt.Errorf("run journaled %d records, reconciled %d", journaled, merged),
		}
	}

	return nil
}

func newBalanceSource(client *clients.EthClient, conf config.Config) (*balance.ERC20Source, error) {
	opts := []balance.Option{
		balance.WithMethod(conf.BalanceMethod),
		balance.WithTimeout(conf.RPCTimeout),
	}

	if conf.ABIPath != "" {
		parsed, err := balance.LoadABI(conf.ABIPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, balance.WithABI(parsed))
	}

	source, err := balance.NewERC20Source(client, conf.ContractAddress, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create balance source")
	}

	return source, nil
}

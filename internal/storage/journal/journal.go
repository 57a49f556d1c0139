// Package journal keeps a write-ahead log of merged records across reconciliation runs.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/balancerecon/internal/domain"
	"github.com/vadiminshakov/balancerecon/internal/storage/snapshot"
)

const keyPrefix = "run/"

// Entry one journaled record together with the run that produced it.
type Entry struct {
	Index  uint64
	RunID  string
	Record domain.MergedRecord
}

type payload struct {
	RunID  string                `json:"run_id"`
	Record snapshot.StoredRecord `json:"record"`
}

// Journal appends the records of a single run to a WAL shared by all runs.
// It is not safe for concurrent use; the reconciler appends sequentially.
type Journal struct {
	log   *gowal.Wal
	runID string
	seq   int
}

// Open opens or creates the WAL under dir for the run identified by runID.
func Open(dir, runID string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if runID == "" {
		return nil, errors.New("journal run id is required")
	}

	log, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "reconcile_",
		SegmentThreshold: 1000,
		MaxSegments:      100,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal in %s", dir)
	}

	return &Journal{log: log, runID: runID}, nil
}

// Append journals rec under key run/<run id>/<position in run>.
func (j *Journal) Append(rec domain.MergedRecord) error {
	if rec.Address == "" {
		return fmt.Errorf("merged record of %q has no address", rec.User)
	}

	data, err := json.Marshal(payload{RunID: j.runID, Record: snapshot.NewStoredRecord(rec)})
	if err != nil {
		return errors.Wrap(err, "encode journal entry")
	}

	key := fmt.Sprintf("%s%s/%d", keyPrefix, j.runID, j.seq)
	if err := j.log.Write(j.log.CurrentIndex()+1, key, data); err != nil {
		return errors.Wrapf(err, "journal record of %s", rec.Address)
	}
	j.seq++

	return nil
}

// Last returns the index of the newest entry, zero for an empty journal.
func (j *Journal) Last() uint64 {
	return j.log.CurrentIndex()
}

// Since returns the entries written after index, oldest first.
func (j *Journal) Since(index uint64) ([]Entry, error) {
	last := j.log.CurrentIndex()
	if last <= index {
		return nil, nil
	}

	entries := make([]Entry, 0, last-index)
	for idx := index + 1; idx <= last; idx++ {
		key, data, ok := j.log.Get(idx)
		if !ok || !strings.HasPrefix(key, keyPrefix) {
			continue
		}

		var p payload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrapf(err, "decode journal entry %d", idx)
		}
		rec, err := p.Record.ToMergedRecord()
		if err != nil {
			return nil, errors.Wrapf(err, "decode journal entry %d", idx)
		}

		entries = append(entries, Entry{Index: idx, RunID: p.RunID, Record: rec})
	}

	return entries, nil
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	return j.log.Close()
}

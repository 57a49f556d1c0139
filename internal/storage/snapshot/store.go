package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/balancerecon/internal/domain"
)

const defaultSnapshotPath = "balances.json"

// Store persists the merged balance list as a single JSON array.
type Store struct {
	path string
}

// NewStore creates a snapshot store writing to path.
func NewStore(path string) *Store {
	if path == "" {
		path = defaultSnapshotPath
	}
	return &Store{path: path}
}

// Path returns the snapshot location.
func (s *Store) Path() string { return s.path }

// StoredRecord is the serializable form of domain.MergedRecord.
// Balances are json.Number so they are written as JSON numbers without float rounding.
type StoredRecord struct {
	User           string      `json:"user"`
	PublicAddress  string      `json:"public_address"`
	Mpxr           json.Number `json:"mpxr"`
	OnchainBalance json.Number `json:"onchain_balance"`
}

// NewStoredRecord converts domain.MergedRecord into its stored representation.
func NewStoredRecord(rec domain.MergedRecord) StoredRecord {
	return StoredRecord{
		User:           rec.User,
		PublicAddress:  rec.Address,
		Mpxr:           json.Number(rec.Recorded.String()),
		OnchainBalance: json.Number(rec.Observed.String()),
	}
}

// ToMergedRecord reconstructs domain.MergedRecord from stored data.
func (sr StoredRecord) ToMergedRecord() (domain.MergedRecord, error) {
	recorded, err := decimal.NewFromString(sr.Mpxr.String())
	if err != nil {
		return domain.MergedRecord{}, errors.Wrap(err, "decode mpxr")
	}

	observed, err := decimal.NewFromString(sr.OnchainBalance.String())
	if err != nil {
		return domain.MergedRecord{}, errors.Wrap(err, "decode onchain_balance")
	}

	return domain.MergedRecord{
		User:     sr.User,
		Address:  sr.PublicAddress,
		Recorded: recorded,
		Observed: observed,
	}, nil
}

// Save overwrites the snapshot with recs atomically via temp file.
func (s *Store) Save(recs []domain.MergedRecord) error {
	stored := make([]StoredRecord, 0, len(recs))
	for _, rec := range recs {
		stored = append(stored, NewStoredRecord(rec))
	}

	payload, err := json.MarshalIndent(stored, "", "    ")
	if err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "encode snapshot")}
	}

	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "write snapshot temp file")}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "replace snapshot")}
	}

	return nil
}

// Load reads a previously persisted snapshot.
func (s *Store) Load() ([]domain.MergedRecord, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &domain.MalformedInputError{Source: s.path, Reason: "read snapshot", Err: err}
	}

	var stored []StoredRecord
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, &domain.MalformedInputError{Source: s.path, Reason: "decode snapshot", Err: err}
	}
	if stored == nil {
		return nil, &domain.MalformedInputError{Source: s.path, Reason: "snapshot is not a JSON array"}
	}

	recs := make([]domain.MergedRecord, 0, len(stored))
	for _, sr := range stored {
		rec, err := sr.ToMergedRecord()
		if err != nil {
			return nil, &domain.MalformedInputError{Source: s.path, Reason: "record of " + sr.User, Err: err}
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

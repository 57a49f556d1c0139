// Package records reads the off-chain balance list the reconciler works through.
package records

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/balancerecon/internal/domain"
)

// storedRecord mirrors one element of the input array. Pointers and the raw
// balance tell absent keys apart from zero values.
type storedRecord struct {
	User     *string         `json:"user"`
	Address  *string         `json:"public_address"`
	Recorded json.RawMessage `json:"mpxr"`
}

// Load opens the JSON array at path and returns its records in file order.
func Load(path string) (iter.Seq[domain.InputRecord], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.MalformedInputError{Source: path, Reason: "open", Err: err}
	}
	defer f.Close()

	return decode(f, path)
}

// Decode reads records from r. The whole array is validated before the
// sequence is returned, so a malformed resource yields no records at all.
func Decode(r io.Reader) (iter.Seq[domain.InputRecord], error) {
	return decode(r, "input")
}

func decode(r io.Reader, source string) (iter.Seq[domain.InputRecord], error) {
	elements, err := readArray(json.NewDecoder(r))
	if err != nil {
		return nil, &domain.MalformedInputError{Source: source, Reason: "expected a JSON array", Err: err}
	}

	parsed := make([]domain.InputRecord, 0, len(elements))
	for i, raw := range elements {
		rec, err := parseRecord(raw)
		if err != nil {
			return nil, &domain.MalformedInputError{Source: source, Reason: fmt.Sprintf("element %d", i), Err: err}
		}
		parsed = append(parsed, rec)
	}

	return once(parsed), nil
}

// readArray returns the elements of the single top-level array in dec's input.
func readArray(dec *json.Decoder) ([]json.RawMessage, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("got %v", tok)
	}

	var elements []json.RawMessage
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		elements = append(elements, raw)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after the array")
	}

	return elements, nil
}

func parseRecord(raw json.RawMessage) (domain.InputRecord, error) {
	var sr storedRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return domain.InputRecord{}, err
	}

	switch {
	case sr.User == nil:
		return domain.InputRecord{}, fmt.Errorf(`missing field "user"`)
	case sr.Address == nil:
		return domain.InputRecord{}, fmt.Errorf(`missing field "public_address"`)
	case len(sr.Recorded) == 0 || string(sr.Recorded) == "null":
		return domain.InputRecord{}, fmt.Errorf(`missing field "mpxr"`)
	case sr.Recorded[0] == '"':
		return domain.InputRecord{}, fmt.Errorf(`field "mpxr" must be a number, got %s`, sr.Recorded)
	}

	recorded, err := decimal.NewFromString(string(sr.Recorded))
	if err != nil {
		return domain.InputRecord{}, fmt.Errorf(`field "mpxr" must be a number, got %s`, sr.Recorded)
	}

	return domain.InputRecord{
		User:     *sr.User,
		Address:  *sr.Address,
		Recorded: recorded,
	}, nil
}

// once yields recs a single time; ranging over the sequence again yields nothing.
func once(recs []domain.InputRecord) iter.Seq[domain.InputRecord] {
	consumed := false
	return func(yield func(domain.InputRecord) bool) {
		if consumed {
			return
		}
		consumed = true

		for _, rec := range recs {
			if !yield(rec) {
				return
			}
		}
	}
}

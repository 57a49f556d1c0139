// Package domain defines core data structures used throughout the reconciler.
package domain

import "github.com/shopspring/decimal"

// InputRecord off-chain bookkeeping entry for a single user.
type InputRecord struct {
	// User identifier in the bookkeeping system.
	User string
	// Address chain address holding the user's tokens.
	Address string
	// Recorded off-chain balance.
	Recorded decimal.Decimal
}

// MergedRecord pairs the recorded balance of a user with the balance observed on chain.
type MergedRecord struct {
	User     string
	Address  string
	Recorded decimal.Decimal
	Observed decimal.Decimal
}

// NewMergedRecord creates a new MergedRecord.
func NewMergedRecord(in InputRecord, observed decimal.Decimal) MergedRecord {
	return MergedRecord{
		User:     in.User,
		Address:  in.Address,
		Recorded: in.Recorded,
		Observed: observed,
	}
}

// Difference returns recorded minus observed balance.
func (r MergedRecord) Difference() decimal.Decimal {
	return r.Recorded.Sub(r.Observed)
}

// HasDifference reports whether recorded and observed balances differ.
func (r MergedRecord) HasDifference() bool {
	return !r.Recorded.Equal(r.Observed)
}

// ZeroOnchain reports whether nothing is held on chain.
func (r MergedRecord) ZeroOnchain() bool {
	return r.Observed.IsZero()
}

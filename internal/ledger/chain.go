package ledger

import (
	"context"
	"fmt"

	"queueloss/internal/domain"
	"queueloss/internal/idhash"
)

// Chain break reasons.
const (
	BreakSequence = "sequence_gap"
	BreakLink     = "previous_hash_mismatch"
	BreakHash     = "entry_hash_mismatch"
)

// ChainReport is the outcome of VerifyChainIntegrity. The chain is reported,
// never repaired.
type ChainReport struct {
	Valid   bool `json:"valid"`
	Entries int  `json:"entries"`

	// Populated when Valid is false. BreakIndex is the 0-based position in
	// ascending sequence order of the first entry that fails.
	BreakIndex    int    `json:"break_index"`
	BreakEntryID  string `json:"break_entry_id,omitempty"`
	BreakSequence int64  `json:"break_sequence,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// EntryCheck is the outcome of VerifySingleEntry.
type EntryCheck struct {
	EntryID        string `json:"entry_id"`
	StoredHash     string `json:"stored_hash"`
	CalculatedHash string `json:"calculated_hash"`
	Valid          bool   `json:"valid"`
}

// VerifyChainIntegrity walks the ledger in sequence order. Every entry must
// carry sequence i+1, link to its predecessor's hash (genesis for the first),
// and hash to its stored entry_hash.
func (s *Service) VerifyChainIntegrity(ctx context.Context) (ChainReport, error) {
	entries, err := s.entries.ListAscending(ctx)
	if err != nil {
		return ChainReport{}, fmt.Errorf("list roi entries: %w", err)
	}

	report := checkChain(entries)
	s.metrics.RecordChainCheck(report.Valid)
	if !report.Valid {
		s.logger.Error("roi chain broken",
			"index", report.BreakIndex,
			"sequence", report.BreakSequence,
			"entry_id", report.BreakEntryID,
			"reason", report.Reason,
		)
	}
	return report, nil
}

func checkChain(entries []*domain.ROILogEntry) ChainReport {
	report := ChainReport{Valid: true, Entries: len(entries), BreakIndex: -1}

	prev := domain.GenesisHash
	for i, e := range entries {
		reason := ""
		switch {
		case e.SequenceNumber != int64(i+1):
			reason = BreakSequence
		case e.PreviousEntryHash != prev:
			reason = BreakLink
		case idhash.ComputeEntryHash(*e) != e.EntryHash:
			reason = BreakHash
		}
		if reason != "" {
			report.Valid = false
			report.BreakIndex = i
			report.BreakEntryID = e.EntryID
			report.BreakSequence = e.SequenceNumber
			report.Reason = reason
			return report
		}
		prev = e.EntryHash
	}
	return report
}

// VerifySingleEntry recomputes one entry's hash from its stored fields.
func (s *Service) VerifySingleEntry(ctx context.Context, entryID string) (EntryCheck, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return EntryCheck{}, fmt.Errorf("get roi entry %s: %w", entryID, err)
	}
	calculated := idhash.ComputeEntryHash(*e)
	return EntryCheck{
		EntryID:        entryID,
		StoredHash:     e.EntryHash,
		CalculatedHash: calculated,
		Valid:          calculated == e.EntryHash,
	}, nil
}

package domain

import "time"

// GenesisHash is the previous-hash sentinel of the first ledger entry.
const GenesisHash = "genesis"

// ROILogEntry is one immutable, hash-chained record of a verified action.
type ROILogEntry struct {
	EntryID    string     `json:"entry_id"`
	Timestamp  time.Time  `json:"timestamp"`
	ActionID   string     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	LocationID string     `json:"location_id"`
	ActionCost float64    `json:"action_cost"`

	BeforeDate time.Time `json:"before_date"`
	BeforeLoss float64   `json:"before_loss"`
	AfterDate  time.Time `json:"after_date"`
	AfterLoss  float64   `json:"after_loss"`

	LossReduction         float64 `json:"loss_reduction"`
	ImprovementPercentage float64 `json:"improvement_percentage"`
	NetBenefit            float64 `json:"net_benefit"`

	EntryHash         string `json:"entry_hash"`
	PreviousEntryHash string `json:"previous_entry_hash"`
	SequenceNumber    int64  `json:"sequence_number"`
}

// LedgerHead is the tail of the chain an append links to.
// A zero head means an empty ledger.
type LedgerHead struct {
	SequenceNumber int64
	EntryHash      string
}

// NextSequence returns the sequence number of the entry after h.
func (h LedgerHead) NextSequence() int64 {
	return h.SequenceNumber + 1
}

// PreviousHash returns the hash the next entry must link to.
func (h LedgerHead) PreviousHash() string {
	if h.SequenceNumber == 0 || h.EntryHash == "" {
		return GenesisHash
	}
	return h.EntryHash
}

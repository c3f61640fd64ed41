package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RepackingReturnSupplier attributes boxes created by a repacking return
const RepackingReturnSupplier = "Repacking Return"

// RepackEntry is one group and quantity removed for or returned from repacking
type RepackEntry struct {
	BoxSpec
	Quantity int `json:"quantity"`
}

// Validate checks the spec and requires a positive quantity
func (e RepackEntry) Validate() error {
	if err := e.BoxSpec.Validate(); err != nil {
		return err
	}
	if e.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// RepackingRecord is the audit trail of one repacking operation
type RepackingRecord struct {
	ID            string        `json:"id"`
	ColdRoomID    string        `json:"coldRoomId"`
	RemovedBoxes  []RepackEntry `json:"removedBoxes"`
	ReturnedBoxes []RepackEntry `json:"returnedBoxes"`
	RejectedBoxes int           `json:"rejectedBoxes"`
	Notes         string        `json:"notes,omitempty"`
	ProcessedBy   string        `json:"processedBy,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewRepackingRecord builds the audit record; the entry lists are kept as given
func NewRepackingRecord(coldRoomID string, removed, returned []RepackEntry, rejected int, notes, processedBy string, now time.Time) (*RepackingRecord, error) {
	if coldRoomID == "" {
		return nil, ErrColdRoomRequired
	}
	if rejected < 0 {
		return nil, ErrInvalidQuantity
	}
	for _, e := range append(append([]RepackEntry{}, removed...), returned...) {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	if removed == nil {
		removed = []RepackEntry{}
	}
	if returned == nil {
		returned = []RepackEntry{}
	}
	return &RepackingRecord{
		ID:            uuid.New().String(),
		ColdRoomID:    coldRoomID,
		RemovedBoxes:  removed,
		ReturnedBoxes: returned,
		RejectedBoxes: rejected,
		Notes:         notes,
		ProcessedBy:   processedBy,
		Timestamp:     now,
	}, nil
}

// EncodeEntries renders an entry list for storage
func EncodeEntries(entries []RepackEntry) (string, error) {
	if entries == nil {
		entries = []RepackEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeEntries parses a stored entry list. Malformed text yields an empty list and an error.
func DecodeEntries(raw string) ([]RepackEntry, error) {
	if raw == "" {
		return []RepackEntry{}, nil
	}
	var entries []RepackEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return []RepackEntry{}, ErrMalformedDocument
	}
	return entries, nil
}

// RemovalStep is one box touched while removing stock for repacking
type RemovalStep struct {
	Box   *Box
	Taken int
	// Exhausted means the box is to be deleted; otherwise it is updated
	Exhausted bool
}

// PlanRemoval walks candidate boxes oldest first, consuming until quantity is
// covered. Running out of stock is not an error: the uncovered amount is
// returned as unremoved.
func PlanRemoval(candidates []*Box, quantity int, now time.Time) (steps []RemovalStep, unremoved int, err error) {
	if quantity <= 0 {
		return nil, 0, nil
	}
	boxes := append([]*Box(nil), candidates...)
	SortFIFO(boxes)

	remaining := quantity
	for _, box := range boxes {
		if remaining <= 0 {
			break
		}
		if box.IsInPallet || box.Quantity <= 0 {
			continue
		}
		res, err := box.Consume(remaining, now)
		if err != nil {
			return nil, 0, err
		}
		steps = append(steps, RemovalStep{Box: box, Taken: res.Taken, Exhausted: res.Exhausted})
		remaining -= res.Taken
	}
	return steps, remaining, nil
}

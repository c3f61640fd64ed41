package domain

import (
	"encoding/json"
	"time"
)

// CountingStatus is the cold-room loading status of a counting record
type CountingStatus string

const (
	StatusPendingColdroom  CountingStatus = "pending_coldroom"
	StatusPartiallyLoaded  CountingStatus = "partially_loaded"
	StatusLoadedToColdroom CountingStatus = "loaded_to_coldroom"
)

// CountingRecord is one intake batch's declared produce counts and how much of
// it has been moved into cold storage
type CountingRecord struct {
	ID                        string          `json:"id"`
	SupplierName              string          `json:"supplierName,omitempty"`
	Region                    string          `json:"region,omitempty"`
	CountingData              Quantities      `json:"countingData"`
	Totals                    json.RawMessage `json:"totals,omitempty"`
	BoxesLoadedToColdroom     Quantities      `json:"boxesLoadedToColdroom"`
	TotalBoxesLoaded          int             `json:"totalBoxesLoaded"`
	LoadingProgressPercentage int             `json:"loadingProgressPercentage"`
	Status                    CountingStatus  `json:"status"`
	ForColdroom               bool            `json:"forColdroom"`
	SubmittedAt               time.Time       `json:"submittedAt"`
	ColdRoomLoadedTo          *string         `json:"coldRoomLoadedTo,omitempty"`
	LoadedToColdroomAt        *time.Time      `json:"loadedToColdroomAt,omitempty"`
	UpdatedAt                 time.Time       `json:"updatedAt"`

	// DecodeIssues names the stored sub-documents that could not be decoded and
	// were replaced by empty ones. Never persisted.
	DecodeIssues []string `json:"decodeIssues,omitempty"`
}

// LoadingProgress returns round(100*loaded/declared) clamped to [0,100], 0 when nothing was declared
func LoadingProgress(loaded, declared int) int {
	if declared <= 0 || loaded <= 0 {
		return 0
	}
	// integer round half up of 100*loaded/declared
	progress := (200*loaded + declared) / (2 * declared)
	if progress > 100 {
		return 100
	}
	return progress
}

// StatusForProgress derives the record status from its progress
func StatusForProgress(progress int) CountingStatus {
	switch {
	case progress >= 100:
		return StatusLoadedToColdroom
	case progress > 0:
		return StatusPartiallyLoaded
	default:
		return StatusPendingColdroom
	}
}

// ApplyLoadedBoxes adds freshly loaded quantities to the record and re-derives
// its totals, progress and status. The record is stamped as loaded into
// coldRoomID only when progress reaches 100. Returns the specs now loaded
// beyond what was declared; over-loading is tolerated, not rejected.
func (r *CountingRecord) ApplyLoadedBoxes(deltas Quantities, coldRoomID string, now time.Time) []BoxSpec {
	if r.BoxesLoadedToColdroom == nil {
		r.BoxesLoadedToColdroom = Quantities{}
	}
	for spec, n := range deltas {
		r.BoxesLoadedToColdroom.Add(spec, n)
	}

	r.TotalBoxesLoaded = r.BoxesLoadedToColdroom.Total()
	r.LoadingProgressPercentage = LoadingProgress(r.TotalBoxesLoaded, r.CountingData.Total())
	r.Status = StatusForProgress(r.LoadingProgressPercentage)
	if r.LoadingProgressPercentage == 100 {
		stamp := now
		r.LoadedToColdroomAt = &stamp
		if coldRoomID != "" {
			room := coldRoomID
			r.ColdRoomLoadedTo = &room
		}
	}
	r.UpdatedAt = now

	return r.Overloaded()
}

// Overloaded lists specs whose loaded count exceeds the declared count
func (r *CountingRecord) Overloaded() []BoxSpec {
	var over []BoxSpec
	for _, spec := range r.BoxesLoadedToColdroom.Specs() {
		if r.BoxesLoadedToColdroom[spec] > r.CountingData[spec] {
			over = append(over, spec)
		}
	}
	return over
}

// RemainingSummary is what is still to be loaded from a counting record
type RemainingSummary struct {
	PerGroup                  Quantities     `json:"remainingBoxes"`
	Total                     int            `json:"totalRemaining"`
	LoadingProgressPercentage int            `json:"loadingProgressPercentage"`
	HasRemainingBoxes         bool           `json:"hasRemainingBoxes"`
	Status                    CountingStatus `json:"status"`
}

// RemainingBoxes computes max(0, declared-loaded) per declared spec. Fully
// loaded or over-loaded specs are left out of the map.
func (r *CountingRecord) RemainingBoxes() RemainingSummary {
	perGroup := Quantities{}
	total := 0
	for spec, declared := range r.CountingData {
		remaining := declared - r.BoxesLoadedToColdroom[spec]
		if remaining <= 0 {
			continue
		}
		perGroup[spec] = remaining
		total += remaining
	}
	progress := LoadingProgress(r.BoxesLoadedToColdroom.Total(), r.CountingData.Total())
	return RemainingSummary{
		PerGroup:                  perGroup,
		Total:                     total,
		LoadingProgressPercentage: progress,
		HasRemainingBoxes:         total > 0,
		Status:                    StatusForProgress(progress),
	}
}

package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
	AggregateType() string
	ColdRoom() string
}

// Aggregate type names used as outbox partition keys
const (
	AggregateBox            = "box"
	AggregatePallet         = "pallet"
	AggregateCountingRecord = "counting-record"
	AggregateRepacking      = "repacking-record"
	AggregateTemperature    = "temperature-log"
)

// BoxesLoadedEvent is published when intake boxes are placed into a cold room
type BoxesLoadedEvent struct {
	ColdRoomID    string     `json:"coldRoomId"`
	BoxIDs        []string   `json:"boxIds"`
	TotalQuantity int        `json:"totalQuantity"`
	ByGroup       Quantities `json:"byGroup"`
	LoadedAt      time.Time  `json:"loadedAt"`
}

func (e *BoxesLoadedEvent) EventType() string     { return "wms.coldroom.boxes-loaded" }
func (e *BoxesLoadedEvent) OccurredAt() time.Time { return e.LoadedAt }
func (e *BoxesLoadedEvent) AggregateType() string { return AggregateBox }
func (e *BoxesLoadedEvent) ColdRoom() string      { return e.ColdRoomID }
func (e *BoxesLoadedEvent) AggregateID() string {
	if len(e.BoxIDs) == 0 {
		return e.ColdRoomID
	}
	return e.BoxIDs[0]
}

// CountingRecordLoadedEvent is published when a counting record's loading progress changes
type CountingRecordLoadedEvent struct {
	CountingRecordID string         `json:"countingRecordId"`
	ColdRoomID       string         `json:"coldRoomId"`
	Loaded           Quantities     `json:"loaded"`
	TotalBoxesLoaded int            `json:"totalBoxesLoaded"`
	Progress         int            `json:"loadingProgressPercentage"`
	Status           CountingStatus `json:"status"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func (e *CountingRecordLoadedEvent) EventType() string {
	return "wms.coldroom.counting-record-loaded"
}
func (e *CountingRecordLoadedEvent) OccurredAt() time.Time { return e.UpdatedAt }
func (e *CountingRecordLoadedEvent) AggregateID() string   { return e.CountingRecordID }
func (e *CountingRecordLoadedEvent) AggregateType() string { return AggregateCountingRecord }
func (e *CountingRecordLoadedEvent) ColdRoom() string      { return e.ColdRoomID }

// PalletAssembledEvent is published when a manual pallet is created
type PalletAssembledEvent struct {
	PalletID       string     `json:"palletId"`
	PalletName     string     `json:"palletName"`
	ColdRoomID     string     `json:"coldRoomId"`
	TotalBoxes     int        `json:"totalBoxes"`
	TotalWeightKg  int        `json:"totalWeightKg"`
	Composition    Quantities `json:"composition"`
	ShortfallBoxes int        `json:"shortfallBoxes"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	AssembledAt    time.Time  `json:"assembledAt"`
}

func (e *PalletAssembledEvent) EventType() string     { return "wms.coldroom.pallet-assembled" }
func (e *PalletAssembledEvent) OccurredAt() time.Time { return e.AssembledAt }
func (e *PalletAssembledEvent) AggregateID() string   { return e.PalletID }
func (e *PalletAssembledEvent) AggregateType() string { return AggregatePallet }
func (e *PalletAssembledEvent) ColdRoom() string      { return e.ColdRoomID }

// PalletDissolvedEvent is published when a pallet's boxes are returned to the loose pool
type PalletDissolvedEvent struct {
	PalletID      string    `json:"palletId"`
	PalletName    string    `json:"palletName"`
	ColdRoomID    string    `json:"coldRoomId"`
	BoxesReturned int       `json:"boxesReturned"`
	DissolvedAt   time.Time `json:"dissolvedAt"`
}

func (e *PalletDissolvedEvent) EventType() string     { return "wms.coldroom.pallet-dissolved" }
func (e *PalletDissolvedEvent) OccurredAt() time.Time { return e.DissolvedAt }
func (e *PalletDissolvedEvent) AggregateID() string   { return e.PalletID }
func (e *PalletDissolvedEvent) AggregateType() string { return AggregatePallet }
func (e *PalletDissolvedEvent) ColdRoom() string      { return e.ColdRoomID }

// RepackingRecordedEvent is published after a repacking adjustment completes
type RepackingRecordedEvent struct {
	RecordID   string     `json:"recordId"`
	ColdRoomID string     `json:"coldRoomId"`
	Removed    Quantities `json:"removed"`
	Returned   Quantities `json:"returned"`
	Unremoved  Quantities `json:"unremoved,omitempty"`
	Rejected   int        `json:"rejectedBoxes"`
	RecordedAt time.Time  `json:"recordedAt"`
}

func (e *RepackingRecordedEvent) EventType() string     { return "wms.coldroom.repacking-recorded" }
func (e *RepackingRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }
func (e *RepackingRecordedEvent) AggregateID() string   { return e.RecordID }
func (e *RepackingRecordedEvent) AggregateType() string { return AggregateRepacking }
func (e *RepackingRecordedEvent) ColdRoom() string      { return e.ColdRoomID }

// TemperatureRecordedEvent is published for every temperature reading
type TemperatureRecordedEvent struct {
	LogID       string    `json:"logId"`
	ColdRoomID  string    `json:"coldRoomId"`
	Temperature string    `json:"temperature"`
	Humidity    string    `json:"humidity,omitempty"`
	OutOfRange  bool      `json:"outOfRange"`
	RecordedAt  time.Time `json:"recordedAt"`
}

func (e *TemperatureRecordedEvent) EventType() string     { return "wms.coldroom.temperature-recorded" }
func (e *TemperatureRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }
func (e *TemperatureRecordedEvent) AggregateID() string   { return e.LogID }
func (e *TemperatureRecordedEvent) AggregateType() string { return AggregateTemperature }
func (e *TemperatureRecordedEvent) ColdRoom() string      { return e.ColdRoomID }

// TemperatureExcursionEvent is published when a reading falls outside the room's bounds
type TemperatureExcursionEvent struct {
	LogID       string    `json:"logId"`
	ColdRoomID  string    `json:"coldRoomId"`
	Temperature string    `json:"temperature"`
	MinTempC    string    `json:"minTempC,omitempty"`
	MaxTempC    string    `json:"maxTempC,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}

func (e *TemperatureExcursionEvent) EventType() string     { return "wms.coldroom.temperature-excursion" }
func (e *TemperatureExcursionEvent) OccurredAt() time.Time { return e.RecordedAt }
func (e *TemperatureExcursionEvent) AggregateID() string   { return e.LogID }
func (e *TemperatureExcursionEvent) AggregateType() string { return AggregateTemperature }
func (e *TemperatureExcursionEvent) ColdRoom() string      { return e.ColdRoomID }

package application

import (
	"time"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

// BoxDTO represents a box in responses
type BoxDTO struct {
	ID                  string     `json:"id"`
	Variety             string     `json:"variety"`
	BoxType             string     `json:"boxType"`
	Size                string     `json:"size"`
	Grade               string     `json:"grade"`
	Quantity            int        `json:"quantity"`
	WeightKg            int        `json:"weightKg"`
	ColdRoomID          string     `json:"coldRoomId"`
	SupplierName        string     `json:"supplierName"`
	Region              string     `json:"region"`
	CountingRecordID    *string    `json:"countingRecordId,omitempty"`
	PalletID            *string    `json:"palletId,omitempty"`
	IsInPallet          bool       `json:"isInPallet"`
	LoadingSheetID      *string    `json:"loadingSheetId,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	ConvertedToPalletAt *time.Time `json:"convertedToPalletAt,omitempty"`
}

// PalletDTO represents a pallet with its display fields
type PalletDTO struct {
	ID             string    `json:"id"`
	PalletName     string    `json:"palletName"`
	ColdRoomID     string    `json:"coldRoomId"`
	PalletCount    int       `json:"palletCount"`
	IsManual       bool      `json:"isManual"`
	TotalBoxes     int       `json:"totalBoxes"`
	TotalWeightKg  int       `json:"totalWeightKg"`
	BoxesPerPallet int       `json:"boxesPerPallet"`
	FullPallets    int       `json:"fullPallets"`
	RemainingBoxes int       `json:"remainingBoxes"`
	BoxCount       int       `json:"boxCount"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LoadBoxesResult summarizes a best-effort load
type LoadBoxesResult struct {
	CreatedBoxes   int      `json:"createdBoxes"`
	FailedBoxes    int      `json:"failedBoxes"`
	TotalQuantity  int      `json:"totalQuantity"`
	UpdatedRecords int      `json:"updatedRecords"`
	FailedRecords  int      `json:"failedRecords"`
	BoxIDs         []string `json:"boxIds"`
}

// CreatePalletResult describes an assembled pallet and how its stock was found
type CreatePalletResult struct {
	Pallet         PalletDTO `json:"pallet"`
	AssignedBoxes  int       `json:"assignedBoxes"`
	SplitBoxes     int       `json:"splitBoxes"`
	ShortfallBoxes int       `json:"shortfallBoxes"`
	BoxIDs         []string  `json:"boxIds"`
}

// ExistingPalletDTO answers whether a pallet with the requested composition exists
type ExistingPalletDTO struct {
	Exists     bool   `json:"exists"`
	PalletID   string `json:"palletId,omitempty"`
	PalletName string `json:"palletName,omitempty"`
}

// DissolvePalletResult reports a dissolved pallet
type DissolvePalletResult struct {
	PalletID      string `json:"palletId"`
	PalletName    string `json:"palletName"`
	BoxesReturned int64  `json:"boxesReturned"`
}

// RepackEntryDTO is one group and quantity
type RepackEntryDTO struct {
	Variety  string `json:"variety"`
	BoxType  string `json:"boxType"`
	Size     string `json:"size"`
	Grade    string `json:"grade"`
	Quantity int    `json:"quantity"`
}

// RepackingRecordDTO represents a repacking audit record
type RepackingRecordDTO struct {
	ID            string           `json:"id"`
	ColdRoomID    string           `json:"coldRoomId"`
	RemovedBoxes  []RepackEntryDTO `json:"removedBoxes"`
	ReturnedBoxes []RepackEntryDTO `json:"returnedBoxes"`
	RejectedBoxes int              `json:"rejectedBoxes"`
	Notes         string           `json:"notes,omitempty"`
	ProcessedBy   string           `json:"processedBy,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// RepackingResult reports what a repacking adjustment actually changed
type RepackingResult struct {
	Record           RepackingRecordDTO `json:"record"`
	RemovedQuantity  int                `json:"removedQuantity"`
	ReturnedQuantity int                `json:"returnedQuantity"`
	DeletedBoxes     int                `json:"deletedBoxes"`
	MergedBoxes      int                `json:"mergedBoxes"`
	CreatedBoxes     int                `json:"createdBoxes"`
	Unremoved        []RepackEntryDTO   `json:"unremoved,omitempty"`
}

// TemperatureLogDTO represents a temperature reading
type TemperatureLogDTO struct {
	ID          string    `json:"id"`
	ColdRoomID  string    `json:"coldRoomId"`
	Temperature string    `json:"temperature"`
	Humidity    *string   `json:"humidity,omitempty"`
	OutOfRange  bool      `json:"outOfRange"`
	RecordedBy  string    `json:"recordedBy,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// RemainingRecordDTO is a counting record with what is still to be loaded
type RemainingRecordDTO struct {
	ID                        string                `json:"id"`
	SupplierName              string                `json:"supplierName,omitempty"`
	Region                    string                `json:"region,omitempty"`
	CountingData              domain.Quantities     `json:"countingData"`
	BoxesLoadedToColdroom     domain.Quantities     `json:"boxesLoadedToColdroom"`
	RemainingBoxes            domain.Quantities     `json:"remainingBoxes"`
	TotalRemaining            int                   `json:"totalRemaining"`
	TotalBoxesLoaded          int                   `json:"totalBoxesLoaded"`
	LoadingProgressPercentage int                   `json:"loadingProgressPercentage"`
	HasRemainingBoxes         bool                  `json:"hasRemainingBoxes"`
	Status                    domain.CountingStatus `json:"status"`
	ColdRoomLoadedTo          *string               `json:"coldRoomLoadedTo,omitempty"`
	SubmittedAt               time.Time             `json:"submittedAt"`
	DecodeIssues              []string              `json:"decodeIssues,omitempty"`
}

// ExistingBoxesDTO answers whether boxes were loaded from a counting record
type ExistingBoxesDTO struct {
	Exists        bool `json:"exists"`
	BoxCount      int  `json:"boxCount"`
	TotalQuantity int  `json:"totalQuantity"`
}

// GroupedBoxDTO is available loose stock of one group
type GroupedBoxDTO struct {
	Variety         string    `json:"variety"`
	BoxType         string    `json:"boxType"`
	Size            string    `json:"size"`
	Grade           string    `json:"grade"`
	ColdRoomID      string    `json:"coldRoomId"`
	TotalQuantity   int       `json:"totalQuantity"`
	BoxCount        int       `json:"boxCount"`
	WeightKg        int       `json:"weightKg"`
	OldestCreatedAt time.Time `json:"oldestCreatedAt"`
}

// ColdRoomStatsDTO holds per cold room totals
type ColdRoomStatsDTO struct {
	ColdRoomID        string             `json:"coldRoomId"`
	Name              string             `json:"name"`
	TotalBoxes        int                `json:"totalBoxes"`
	LooseBoxes        int                `json:"looseBoxes"`
	PalletizedBoxes   int                `json:"palletizedBoxes"`
	BoxRows           int                `json:"boxRows"`
	Pallets           int                `json:"pallets"`
	TotalWeightKg     int                `json:"totalWeightKg"`
	ByVariety         map[string]int     `json:"byVariety"`
	LatestTemperature *TemperatureLogDTO `json:"latestTemperature,omitempty"`
}

package application

import "github.com/wms-platform/coldroom-service/internal/domain"

// BoxGroupInput identifies a box group in a command
type BoxGroupInput struct {
	Variety string
	BoxType string
	Size    string
	Grade   string
}

// Spec converts the input into a domain spec
func (g BoxGroupInput) Spec() domain.BoxSpec {
	return domain.BoxSpec{
		Variety: domain.Variety(g.Variety),
		BoxType: domain.BoxType(g.BoxType),
		Size:    g.Size,
		Grade:   domain.Grade(g.Grade),
	}
}

// LoadBoxInput is one intake box to place into a cold room
type LoadBoxInput struct {
	BoxGroupInput
	Quantity         int
	ColdRoomID       string
	SupplierName     string
	Region           string
	CountingRecordID string
}

// LoadBoxesCommand represents the command to load intake boxes into cold rooms
type LoadBoxesCommand struct {
	Boxes []LoadBoxInput
}

// PalletGroupInput is one group requested for a manual pallet
type PalletGroupInput struct {
	BoxGroupInput
	Quantity         int
	SupplierName     string
	Region           string
	CountingRecordID string
}

// CreateManualPalletCommand represents the command to assemble a manual pallet
type CreateManualPalletCommand struct {
	PalletName     string
	ColdRoomID     string
	BoxesPerPallet int
	CreatedBy      string
	Groups         []PalletGroupInput
}

// CheckExistingPalletQuery represents the query to look for a pallet with the same composition
type CheckExistingPalletQuery struct {
	ColdRoomID string
	Groups     []PalletGroupInput
}

// DissolvePalletCommand represents the command to return a pallet's boxes to the loose pool
type DissolvePalletCommand struct {
	PalletID    string
	DissolvedBy string
}

// RepackInput is one group and quantity of a repacking command
type RepackInput struct {
	BoxGroupInput
	Quantity int
}

// RecordRepackingCommand represents the command to record a repacking adjustment
type RecordRepackingCommand struct {
	ColdRoomID    string
	RemovedBoxes  []RepackInput
	ReturnedBoxes []RepackInput
	RejectedBoxes int
	Notes         string
	ProcessedBy   string
}

// RecordTemperatureCommand represents the command to log a temperature reading.
// Values are decimal strings as sent by the client.
type RecordTemperatureCommand struct {
	ColdRoomID  string
	Temperature string
	Humidity    string
	RecordedBy  string
}

// ListBoxesQuery represents the query to list boxes
type ListBoxesQuery struct {
	ColdRoomID string
	InPallet   *bool
}

// ListPalletsQuery represents the query to list pallets
type ListPalletsQuery struct {
	ColdRoomID string
}

// PalletBoxesQuery represents the query to list the boxes of a pallet
type PalletBoxesQuery struct {
	PalletID string
}

// CheckExistingBoxesQuery represents the query for boxes loaded from a counting record
type CheckExistingBoxesQuery struct {
	CountingRecordID string
}

// GroupedBoxesQuery represents the query for available stock aggregated by group
type GroupedBoxesQuery struct {
	ColdRoomID string
}

// HistoryQuery represents a query for the latest temperature logs or repacking records
type HistoryQuery struct {
	ColdRoomID string
	Limit      int
}

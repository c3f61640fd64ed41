package domain

import (
	"context"
	"time"
)

// BoxFilter narrows box listings; zero fields do not filter
type BoxFilter struct {
	ColdRoomID       string
	PalletID         string
	CountingRecordID string
	InPallet         *bool
	AvailableOnly    bool
}

// BoxRepository defines persistence of boxes
type BoxRepository interface {
	Create(ctx context.Context, box *Box) error
	Update(ctx context.Context, box *Box) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Box, error)

	// FindAvailable returns loose, non-empty boxes of the group that are not on a
	// loading sheet, oldest first. Inside a transaction the rows are locked.
	FindAvailable(ctx context.Context, key BoxGroupKey) ([]*Box, error)

	// FindRemovalCandidates returns loose boxes of the group holding at least
	// minQuantity, oldest first
	FindRemovalCandidates(ctx context.Context, key BoxGroupKey, minQuantity int) ([]*Box, error)

	// FindMergeTarget returns one loose box of the group not on a loading sheet, or nil
	FindMergeTarget(ctx context.Context, key BoxGroupKey) (*Box, error)

	FindByPallet(ctx context.Context, palletID string) ([]*Box, error)

	// ReleasePallet returns every box of the pallet to the loose pool and reports how many rows changed
	ReleasePallet(ctx context.Context, palletID string, now time.Time) (int64, error)

	List(ctx context.Context, filter BoxFilter) ([]*Box, error)
}

// PalletRepository defines persistence of pallets
type PalletRepository interface {
	Create(ctx context.Context, pallet *Pallet) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Pallet, error)
	FindManualByColdRoom(ctx context.Context, coldRoomID string) ([]*Pallet, error)
	List(ctx context.Context, coldRoomID string) ([]*Pallet, error)
}

// CountingRecordRepository defines persistence of counting records. Reads
// decode sub-documents per record and never fail on a malformed one.
type CountingRecordRepository interface {
	Create(ctx context.Context, record *CountingRecord) error
	Update(ctx context.Context, record *CountingRecord) error
	FindByID(ctx context.Context, id string) (*CountingRecord, error)
	ListForColdroom(ctx context.Context) ([]*CountingRecord, error)
}

// TemperatureLogRepository defines persistence of temperature readings
type TemperatureLogRepository interface {
	Create(ctx context.Context, log *TemperatureLog) error
	List(ctx context.Context, coldRoomID string, limit int) ([]*TemperatureLog, error)
	Latest(ctx context.Context, coldRoomID string) (*TemperatureLog, error)
}

// RepackingRecordRepository defines persistence of repacking audit records
type RepackingRecordRepository interface {
	Create(ctx context.Context, record *RepackingRecord) error
	List(ctx context.Context, coldRoomID string, limit int) ([]*RepackingRecord, error)
}

// EventRecorder stores domain events for later delivery. Called inside a
// transaction it commits or rolls back with the state change.
type EventRecorder interface {
	Record(ctx context.Context, events ...DomainEvent) error
}

// Store groups the repositories behind one transaction scope
type Store interface {
	Boxes() BoxRepository
	Pallets() PalletRepository
	CountingRecords() CountingRecordRepository
	TemperatureLogs() TemperatureLogRepository
	RepackingRecords() RepackingRecordRepository
	Events() EventRecorder

	// WithinTransaction runs fn atomically. fn must use tx, not the outer store,
	// and may be re-run on transient transaction errors.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Ping(ctx context.Context) error
}

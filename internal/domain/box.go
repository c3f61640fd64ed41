package domain

import (
	"time"

	"github.com/google/uuid"
)

// Box is a quantity of uniformly packed produce held in a cold room
type Box struct {
	ID      string `bson:"_id" json:"id"`
	BoxSpec `bson:",inline"`

	Quantity            int        `bson:"quantity" json:"quantity"`
	ColdRoomID          string     `bson:"coldRoomId" json:"coldRoomId"`
	SupplierName        string     `bson:"supplierName" json:"supplierName"`
	Region              string     `bson:"region" json:"region"`
	CountingRecordID    *string    `bson:"countingRecordId,omitempty" json:"countingRecordId,omitempty"`
	PalletID            *string    `bson:"palletId,omitempty" json:"palletId,omitempty"`
	IsInPallet          bool       `bson:"isInPallet" json:"isInPallet"`
	LoadingSheetID      *string    `bson:"loadingSheetId,omitempty" json:"loadingSheetId,omitempty"`
	CreatedAt           time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time  `bson:"updatedAt" json:"updatedAt"`
	ConvertedToPalletAt *time.Time `bson:"convertedToPalletAt,omitempty" json:"convertedToPalletAt,omitempty"`
}

// BoxOrigin is the intake metadata copied onto every box produced for a group
type BoxOrigin struct {
	SupplierName     string
	Region           string
	CountingRecordID *string
}

// NewBox produces a loose box of the given group
func NewBox(key BoxGroupKey, quantity int, origin BoxOrigin, now time.Time) (*Box, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if key.ColdRoomID == "" {
		return nil, ErrColdRoomRequired
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Box{
		ID:               uuid.New().String(),
		BoxSpec:          key.BoxSpec,
		Quantity:         quantity,
		ColdRoomID:       key.ColdRoomID,
		SupplierName:     origin.SupplierName,
		Region:           origin.Region,
		CountingRecordID: cloneString(origin.CountingRecordID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// GroupKey returns the stock identity of the box
func (b *Box) GroupKey() BoxGroupKey {
	return NewBoxGroupKey(b.BoxSpec, b.ColdRoomID)
}

// Origin returns the intake metadata of the box
func (b *Box) Origin() BoxOrigin {
	return BoxOrigin{
		SupplierName:     b.SupplierName,
		Region:           b.Region,
		CountingRecordID: cloneString(b.CountingRecordID),
	}
}

// IsAvailable reports whether the box can be consumed: loose, not on a loading sheet, non-empty
func (b *Box) IsAvailable() bool {
	return !b.IsInPallet && b.LoadingSheetID == nil && b.Quantity > 0
}

// WeightKg is the weight of the whole box row
func (b *Box) WeightKg() int {
	return b.Quantity * b.BoxType.UnitWeightKg()
}

// ConsumeResult describes what happened to a box after consumption
type ConsumeResult struct {
	// Taken is how much of the requested amount this box supplied
	Taken int
	// Exhausted means the whole box was used; the caller deletes or reassigns it
	Exhausted bool
}

// Consume takes up to amount from the box. When amount covers the whole box it
// is exhausted and left untouched for the caller to delete or reassign;
// otherwise its quantity is reduced in place.
func (b *Box) Consume(amount int, now time.Time) (ConsumeResult, error) {
	if amount <= 0 {
		return ConsumeResult{}, ErrInvalidQuantity
	}
	if amount >= b.Quantity {
		return ConsumeResult{Taken: b.Quantity, Exhausted: true}, nil
	}
	b.Quantity -= amount
	b.UpdatedAt = now
	return ConsumeResult{Taken: amount}, nil
}

// Merge adds amount to a loose box
func (b *Box) Merge(amount int, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	if b.IsInPallet {
		return ErrBoxInPallet
	}
	b.Quantity += amount
	b.UpdatedAt = now
	return nil
}

// Split carves amount off into a new box carrying the same spec, room and origin.
// amount must be strictly less than the box quantity, so neither side ends at zero.
func (b *Box) Split(amount int, now time.Time) (*Box, error) {
	if amount <= 0 || amount >= b.Quantity {
		return nil, ErrInvalidQuantity
	}
	part, err := NewBox(b.GroupKey(), amount, b.Origin(), now)
	if err != nil {
		return nil, err
	}
	b.Quantity -= amount
	b.UpdatedAt = now
	return part, nil
}

// AssignToPallet places the box on a pallet
func (b *Box) AssignToPallet(palletID string, now time.Time) {
	id := palletID
	b.PalletID = &id
	b.IsInPallet = true
	b.ConvertedToPalletAt = &now
	b.UpdatedAt = now
}

// Release returns the box to the loose pool
func (b *Box) Release(now time.Time) {
	b.PalletID = nil
	b.IsInPallet = false
	b.ConvertedToPalletAt = nil
	b.UpdatedAt = now
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

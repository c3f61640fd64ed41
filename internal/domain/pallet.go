package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBoxesPerPallet is the capacity hint used when a request omits it
const DefaultBoxesPerPallet = 288

// Pallet is a named physical grouping of boxes
type Pallet struct {
	ID             string    `bson:"_id" json:"id"`
	PalletName     string    `bson:"palletName" json:"palletName"`
	ColdRoomID     string    `bson:"coldRoomId" json:"coldRoomId"`
	PalletCount    int       `bson:"palletCount" json:"palletCount"`
	IsManual       bool      `bson:"isManual" json:"isManual"`
	TotalBoxes     int       `bson:"totalBoxes" json:"totalBoxes"`
	TotalWeightKg  int       `bson:"totalWeightKg" json:"totalWeightKg"`
	BoxesPerPallet int       `bson:"boxesPerPallet" json:"boxesPerPallet"`
	CreatedBy      string    `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
}

// NewManualPallet creates a user-assembled pallet whose totals come from the
// requested amounts rather than from the stock that was found.
func NewManualPallet(name, coldRoomID string, groups []GroupRequest, boxesPerPallet int, createdBy string, now time.Time) (*Pallet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPalletNameRequired
	}
	if coldRoomID == "" {
		return nil, ErrColdRoomRequired
	}
	if boxesPerPallet <= 0 {
		boxesPerPallet = DefaultBoxesPerPallet
	}
	totalBoxes, totalWeight := RequestedTotals(groups)
	if totalBoxes == 0 {
		return nil, ErrNoPalletGroups
	}
	return &Pallet{
		ID:             uuid.New().String(),
		PalletName:     name,
		ColdRoomID:     coldRoomID,
		PalletCount:    1,
		IsManual:       true,
		TotalBoxes:     totalBoxes,
		TotalWeightKg:  totalWeight,
		BoxesPerPallet: boxesPerPallet,
		CreatedBy:      createdBy,
		CreatedAt:      now,
	}, nil
}

// FullPallets is how many full pallets the box count would fill. Display only.
func (p *Pallet) FullPallets() int {
	if p.BoxesPerPallet <= 0 {
		return 0
	}
	return p.TotalBoxes / p.BoxesPerPallet
}

// RemainingBoxes is the count left over after FullPallets. Display only.
func (p *Pallet) RemainingBoxes() int {
	if p.BoxesPerPallet <= 0 {
		return 0
	}
	return p.TotalBoxes % p.BoxesPerPallet
}

// RequestedTotals sums box count and weight over positive requests
func RequestedTotals(groups []GroupRequest) (boxes, weightKg int) {
	for _, g := range groups {
		if g.Quantity <= 0 {
			continue
		}
		boxes += g.Quantity
		weightKg += g.Quantity * g.BoxType.UnitWeightKg()
	}
	return boxes, weightKg
}

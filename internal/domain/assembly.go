package domain

import (
	"sort"
	"time"
)

// GroupRequest asks for quantity boxes of a spec. Origin attributes any stock
// that has to be created because too little was found.
type GroupRequest struct {
	BoxSpec
	Quantity int
	Origin   BoxOrigin
}

// AssemblyStepKind says how a step touched the stock
type AssemblyStepKind string

const (
	// StepAssign moves a whole existing box onto the pallet
	StepAssign AssemblyStepKind = "assign"
	// StepSplit reduces an existing box and puts the split-off part on the pallet
	StepSplit AssemblyStepKind = "split"
	// StepShortfall creates a box on the pallet for stock that was not found
	StepShortfall AssemblyStepKind = "shortfall"
)

// AssemblyStep is one change the assembler wants persisted
type AssemblyStep struct {
	Kind AssemblyStepKind
	// Source is the existing box, already mutated; nil for StepShortfall
	Source *Box
	// Created is the new box for StepSplit and StepShortfall
	Created *Box
	Taken   int
}

// SortFIFO orders boxes oldest first, ties broken by id
func SortFIFO(boxes []*Box) {
	sort.SliceStable(boxes, func(i, j int) bool {
		if !boxes[i].CreatedAt.Equal(boxes[j].CreatedAt) {
			return boxes[i].CreatedAt.Before(boxes[j].CreatedAt)
		}
		return boxes[i].ID < boxes[j].ID
	})
}

// AssembleGroup satisfies one group request from the available boxes of that
// group, oldest first. Whole boxes are assigned while they fit; the first box
// larger than the remainder is split; any remainder left once stock runs out
// becomes a shortfall box attributed to the request's own origin. Boxes are
// mutated in memory and every change is returned as a step.
func AssembleGroup(palletID, coldRoomID string, req GroupRequest, available []*Box, now time.Time) ([]AssemblyStep, error) {
	if req.Quantity <= 0 {
		return nil, nil
	}
	key := NewBoxGroupKey(req.BoxSpec, coldRoomID)

	candidates := make([]*Box, 0, len(available))
	for _, b := range available {
		if b.IsAvailable() && b.GroupKey() == key {
			candidates = append(candidates, b)
		}
	}
	SortFIFO(candidates)

	var steps []AssemblyStep
	remaining := req.Quantity
	for _, box := range candidates {
		if remaining <= 0 {
			break
		}
		if box.Quantity <= remaining {
			remaining -= box.Quantity
			box.AssignToPallet(palletID, now)
			steps = append(steps, AssemblyStep{Kind: StepAssign, Source: box, Taken: box.Quantity})
			continue
		}
		part, err := box.Split(remaining, now)
		if err != nil {
			return nil, err
		}
		part.AssignToPallet(palletID, now)
		steps = append(steps, AssemblyStep{Kind: StepSplit, Source: box, Created: part, Taken: remaining})
		remaining = 0
	}

	if remaining > 0 {
		part, err := NewBox(key, remaining, req.Origin, now)
		if err != nil {
			return nil, err
		}
		part.AssignToPallet(palletID, now)
		steps = append(steps, AssemblyStep{Kind: StepShortfall, Created: part, Taken: remaining})
	}
	return steps, nil
}

// ShortfallQuantity sums what had to be created rather than found
func ShortfallQuantity(steps []AssemblyStep) int {
	n := 0
	for _, s := range steps {
		if s.Kind == StepShortfall {
			n += s.Taken
		}
	}
	return n
}

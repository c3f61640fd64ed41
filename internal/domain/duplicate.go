package domain

// PalletComposition is a pallet's current content summed per spec
type PalletComposition struct {
	PalletID   string
	PalletName string
	Quantities Quantities
}

// ComposePallet sums a pallet's boxes per spec
func ComposePallet(p *Pallet, boxes []*Box) PalletComposition {
	q := Quantities{}
	for _, b := range boxes {
		q.Add(b.BoxSpec, b.Quantity)
	}
	return PalletComposition{PalletID: p.ID, PalletName: p.PalletName, Quantities: q}
}

// RequestedComposition sums positive requests per spec
func RequestedComposition(groups []GroupRequest) Quantities {
	q := Quantities{}
	for _, g := range groups {
		if g.Quantity <= 0 {
			continue
		}
		q.Add(g.BoxSpec, g.Quantity)
	}
	return q
}

// FindDuplicate returns the first candidate holding exactly the requested
// quantity of every requested spec. Specs a candidate holds beyond the request
// are not compared, so a pallet carrying extra groups still matches.
func FindDuplicate(groups []GroupRequest, candidates []PalletComposition) *PalletComposition {
	requested := RequestedComposition(groups)
	if len(requested) == 0 {
		return nil
	}
	for i := range candidates {
		if matchesRequested(requested, candidates[i].Quantities) {
			return &candidates[i]
		}
	}
	return nil
}

func matchesRequested(requested, have Quantities) bool {
	for spec, qty := range requested {
		if have[spec] != qty {
			return false
		}
	}
	return true
}

package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Quantities maps a box spec to a box count. It serializes as a JSON object
// keyed by the canonical spec key.
type Quantities map[BoxSpec]int

// Total sums every value
func (q Quantities) Total() int {
	total := 0
	for _, n := range q {
		total += n
	}
	return total
}

// Add increments the count of a spec
func (q Quantities) Add(spec BoxSpec, n int) {
	q[spec] += n
}

// Clone returns an independent copy, never nil
func (q Quantities) Clone() Quantities {
	out := make(Quantities, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Specs returns the keys in canonical key order
func (q Quantities) Specs() []BoxSpec {
	specs := make([]BoxSpec, 0, len(q))
	for k := range q {
		specs = append(specs, k)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].String() < specs[j].String() })
	return specs
}

// MarshalJSON renders {"variety_boxType_grade_size": n}
func (q Quantities) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, len(q))
	for k, v := range q {
		m[k.String()] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses the canonical-key object form
func (q *Quantities) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Quantities, len(m))
	for k, v := range m {
		spec, err := ParseBoxSpec(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		out[spec] += v
	}
	*q = out
	return nil
}

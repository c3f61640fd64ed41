package domain

import (
	"fmt"
	"strings"
)

// Variety is the avocado variety packed in a box
type Variety string

const (
	VarietyFuerte Variety = "fuerte"
	VarietyHass   Variety = "hass"
)

// BoxType is the nominal pack weight of a box
type BoxType string

const (
	BoxType4kg  BoxType = "4kg"
	BoxType10kg BoxType = "10kg"
)

// UnitWeightKg returns the weight of one box of this type
func (t BoxType) UnitWeightKg() int {
	if t == BoxType4kg {
		return 4
	}
	return 10
}

// Grade is the quality class of a box
type Grade string

const (
	GradeClass1 Grade = "class1"
	GradeClass2 Grade = "class2"
)

// Allowed enumeration values, used by request validation
var (
	Varieties = []string{string(VarietyFuerte), string(VarietyHass)}
	BoxTypes  = []string{string(BoxType4kg), string(BoxType10kg)}
	Grades    = []string{string(GradeClass1), string(GradeClass2)}
)

// BoxSpec identifies a kind of packed produce independent of where it is stored.
// It is comparable and used directly as a map key.
type BoxSpec struct {
	Variety Variety `json:"variety" bson:"variety"`
	BoxType BoxType `json:"boxType" bson:"boxType"`
	Size    string  `json:"size" bson:"size"`
	Grade   Grade   `json:"grade" bson:"grade"`
}

// Validate checks every field against the allowed values
func (s BoxSpec) Validate() error {
	switch s.Variety {
	case VarietyFuerte, VarietyHass:
	default:
		return fmt.Errorf("%w: variety %q", ErrInvalidBoxSpec, s.Variety)
	}
	switch s.BoxType {
	case BoxType4kg, BoxType10kg:
	default:
		return fmt.Errorf("%w: box type %q", ErrInvalidBoxSpec, s.BoxType)
	}
	switch s.Grade {
	case GradeClass1, GradeClass2:
	default:
		return fmt.Errorf("%w: grade %q", ErrInvalidBoxSpec, s.Grade)
	}
	if strings.TrimSpace(s.Size) == "" {
		return fmt.Errorf("%w: size is required", ErrInvalidBoxSpec)
	}
	return nil
}

// String renders the canonical key variety_boxType_grade_size
func (s BoxSpec) String() string {
	return string(s.Variety) + "_" + string(s.BoxType) + "_" + string(s.Grade) + "_" + s.Size
}

// ParseBoxSpec parses variety_boxType_grade_size. The size is the remainder
// after the third separator, so it may itself contain underscores.
func ParseBoxSpec(key string) (BoxSpec, error) {
	parts := strings.SplitN(key, "_", 4)
	if len(parts) != 4 {
		return BoxSpec{}, fmt.Errorf("%w: malformed key %q", ErrInvalidBoxSpec, key)
	}
	return BoxSpec{
		Variety: Variety(parts[0]),
		BoxType: BoxType(parts[1]),
		Grade:   Grade(parts[2]),
		Size:    parts[3],
	}, nil
}

// BoxGroupKey is the stock identity: a spec held in one cold room
type BoxGroupKey struct {
	BoxSpec
	ColdRoomID string `json:"coldRoomId"`
}

// NewBoxGroupKey builds a group key
func NewBoxGroupKey(spec BoxSpec, coldRoomID string) BoxGroupKey {
	return BoxGroupKey{BoxSpec: spec, ColdRoomID: coldRoomID}
}

// String renders the key including the cold room
func (k BoxGroupKey) String() string {
	return k.BoxSpec.String() + "@" + k.ColdRoomID
}

// LockKey is the name of the serialization lock guarding this group's stock
func (k BoxGroupKey) LockKey() string {
	return "coldroom:" + k.ColdRoomID + ":" + k.BoxSpec.String()
}

// CountingRecordLockKey is the name of the lock guarding a counting record's progress
func CountingRecordLockKey(recordID string) string {
	return "counting-record:" + recordID
}

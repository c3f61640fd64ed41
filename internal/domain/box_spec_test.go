package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoxSpec(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    BoxSpec
		wantErr bool
	}{
		{
			name: "canonical key",
			key:  "fuerte_4kg_class1_sizeA",
			want: BoxSpec{Variety: VarietyFuerte, BoxType: BoxType4kg, Grade: GradeClass1, Size: "sizeA"},
		},
		{
			name: "size containing separator",
			key:  "hass_10kg_class2_size_20",
			want: BoxSpec{Variety: VarietyHass, BoxType: BoxType10kg, Grade: GradeClass2, Size: "size_20"},
		},
		{name: "too few parts", key: "hass_10kg_class2", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBoxSpec(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBoxSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.key, got.String())
		})
	}
}

func TestBoxSpecValidate(t *testing.T) {
	valid := BoxSpec{Variety: VarietyHass, BoxType: BoxType4kg, Grade: GradeClass1, Size: "16"}
	assert.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*BoxSpec){
		"variety":  func(s *BoxSpec) { s.Variety = "pinkerton" },
		"box type": func(s *BoxSpec) { s.BoxType = "6kg" },
		"grade":    func(s *BoxSpec) { s.Grade = "class3" },
		"size":     func(s *BoxSpec) { s.Size = "  " },
	} {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidBoxSpec)
		})
	}
}

func TestBoxGroupKeyIdentity(t *testing.T) {
	spec := BoxSpec{Variety: VarietyFuerte, BoxType: BoxType4kg, Grade: GradeClass1, Size: "sizeA"}
	a := NewBoxGroupKey(spec, "coldroom1")
	b := NewBoxGroupKey(spec, "coldroom1")
	c := NewBoxGroupKey(spec, "coldroom2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "coldroom:coldroom1:fuerte_4kg_class1_sizeA", a.LockKey())

	seen := map[BoxGroupKey]int{a: 1}
	seen[b]++
	assert.Equal(t, 2, seen[a])
}

func TestUnitWeight(t *testing.T) {
	assert.Equal(t, 4, BoxType4kg.UnitWeightKg())
	assert.Equal(t, 10, BoxType10kg.UnitWeightKg())
}

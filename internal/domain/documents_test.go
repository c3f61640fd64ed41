package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQuantities(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Quantities
		wantErr bool
	}{
		{name: "blank", raw: "  ", want: Quantities{}},
		{name: "empty object", raw: "{}", want: Quantities{}},
		{
			name: "canonical keys",
			raw:  `{"fuerte_4kg_class1_sizeA": 100, "hass_10kg_class2_sizeB": 3}`,
			want: Quantities{specA: 100, specB: 3},
		},
		{name: "not json", raw: `{"fuerte_4kg`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "negative count", raw: `{"fuerte_4kg_class1_sizeA": -1}`, wantErr: true},
		{name: "fractional count", raw: `{"fuerte_4kg_class1_sizeA": 1.5}`, wantErr: true},
		{name: "string count", raw: `{"fuerte_4kg_class1_sizeA": "10"}`, wantErr: true},
		{name: "malformed key", raw: `{"fuerte": 10}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeQuantities(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedDocument)
				assert.NotNil(t, got)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantitiesJSONUsesCanonicalKeys(t *testing.T) {
	data, err := json.Marshal(Quantities{specA: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fuerte_4kg_class1_sizeA": 7}`, string(data))

	text, err := EncodeQuantities(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
}

func TestDecodeDocumentsDegradesPerField(t *testing.T) {
	rec := &CountingRecord{ID: "cr-bad"}
	rec.DecodeDocuments(StoredCountingDocuments{
		CountingData:          `{"fuerte_4kg_class1_sizeA": 100}`,
		Totals:                `not json`,
		BoxesLoadedToColdroom: `{"fuerte_4kg_class1_sizeA": "forty"}`,
	})

	assert.Equal(t, []string{DocTotals, DocBoxesLoadedToColdroom}, rec.DecodeIssues)
	assert.Equal(t, Quantities{specA: 100}, rec.CountingData)
	assert.Empty(t, rec.BoxesLoadedToColdroom)
	assert.JSONEq(t, `{}`, string(rec.Totals))

	summary := rec.RemainingBoxes()
	assert.Equal(t, 100, summary.Total)
	assert.Equal(t, 0, summary.LoadingProgressPercentage)
}

func TestEncodeDocumentsRoundTrip(t *testing.T) {
	rec := &CountingRecord{
		CountingData:          Quantities{specA: 10, specB: 2},
		BoxesLoadedToColdroom: Quantities{specB: 2},
		Totals:                json.RawMessage(`{"boxes":12}`),
	}
	docs, err := rec.EncodeDocuments()
	require.NoError(t, err)

	var back CountingRecord
	back.DecodeDocuments(docs)
	assert.Empty(t, back.DecodeIssues)
	assert.Equal(t, rec.CountingData, back.CountingData)
	assert.Equal(t, rec.BoxesLoadedToColdroom, back.BoxesLoadedToColdroom)
	assert.JSONEq(t, `{"boxes":12}`, string(back.Totals))
}

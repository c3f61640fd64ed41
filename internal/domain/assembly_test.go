package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepSummary struct {
	Kind     AssemblyStepKind
	SourceID string
	Taken    int
	Left     int
}

func summarize(steps []AssemblyStep) []stepSummary {
	out := make([]stepSummary, 0, len(steps))
	for _, s := range steps {
		sum := stepSummary{Kind: s.Kind, Taken: s.Taken}
		if s.Source != nil {
			sum.SourceID = s.Source.ID
			sum.Left = s.Source.Quantity
		}
		out = append(out, sum)
	}
	return out
}

func TestAssembleGroupFIFO(t *testing.T) {
	older := newTestBox(t, specA, "coldroom1", 3, t0)
	newer := newTestBox(t, specA, "coldroom1", 5, t0.Add(time.Hour))

	// input order must not matter
	steps, err := AssembleGroup("pallet-1", "coldroom1",
		GroupRequest{BoxSpec: specA, Quantity: 4}, []*Box{newer, older}, t0.Add(2*time.Hour))
	require.NoError(t, err)

	want := []stepSummary{
		{Kind: StepAssign, SourceID: older.ID, Taken: 3, Left: 3},
		{Kind: StepSplit, SourceID: newer.ID, Taken: 1, Left: 4},
	}
	if diff := cmp.Diff(want, summarize(steps)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, older.IsInPallet)
	assert.False(t, newer.IsInPallet)
	assert.Equal(t, 4, newer.Quantity)
	require.NotNil(t, steps[1].Created)
	assert.Equal(t, 1, steps[1].Created.Quantity)
	assert.Equal(t, "pallet-1", *steps[1].Created.PalletID)
}

func TestAssembleGroupSplitConservation(t *testing.T) {
	src := newTestBox(t, specA, "coldroom1", 10, t0)
	steps, err := AssembleGroup("p", "coldroom1", GroupRequest{BoxSpec: specA, Quantity: 7}, []*Box{src}, t0)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, StepSplit, steps[0].Kind)
	assert.Equal(t, 10, src.Quantity+steps[0].Created.Quantity)
	assert.Equal(t, 3, src.Quantity)
}

func TestAssembleGroupShortfall(t *testing.T) {
	src := newTestBox(t, specA, "coldroom1", 2, t0)
	reqOrigin := BoxOrigin{SupplierName: "Requested Supplier", Region: "Nyeri"}

	steps, err := AssembleGroup("p", "coldroom1",
		GroupRequest{BoxSpec: specA, Quantity: 9, Origin: reqOrigin}, []*Box{src}, t0)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, StepAssign, steps[0].Kind)
	short := steps[1]
	assert.Equal(t, StepShortfall, short.Kind)
	assert.Nil(t, short.Source)
	assert.Equal(t, 7, short.Created.Quantity)
	assert.Equal(t, "Requested Supplier", short.Created.SupplierName, "shortfall uses the request's origin")
	assert.Equal(t, "Nyeri", short.Created.Region)
	assert.True(t, short.Created.IsInPallet)
	assert.Equal(t, 7, ShortfallQuantity(steps))
}

func TestAssembleGroupIgnoresOtherStock(t *testing.T) {
	otherRoom := newTestBox(t, specA, "coldroom2", 5, t0)
	otherSpec := newTestBox(t, specB, "coldroom1", 5, t0)
	onSheet := newTestBox(t, specA, "coldroom1", 5, t0)
	onSheet.LoadingSheetID = StringPtr("sheet")
	palletized := newTestBox(t, specA, "coldroom1", 5, t0)
	palletized.AssignToPallet("other", t0)

	steps, err := AssembleGroup("p", "coldroom1", GroupRequest{BoxSpec: specA, Quantity: 5},
		[]*Box{otherRoom, otherSpec, onSheet, palletized}, t0)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, StepShortfall, steps[0].Kind)
}

func TestAssembleGroupSkipsNonPositive(t *testing.T) {
	src := newTestBox(t, specA, "coldroom1", 2, t0)
	steps, err := AssembleGroup("p", "coldroom1", GroupRequest{BoxSpec: specA, Quantity: 0}, []*Box{src}, t0)
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.False(t, src.IsInPallet)
}

func TestNewManualPalletTotalsFromRequest(t *testing.T) {
	groups := []GroupRequest{
		{BoxSpec: specA, Quantity: 10},
		{BoxSpec: specB, Quantity: 3},
		{BoxSpec: specB, Quantity: -2},
	}
	p, err := NewManualPallet("  P-01 ", "coldroom1", groups, 0, "alice", t0)
	require.NoError(t, err)

	assert.Equal(t, "P-01", p.PalletName)
	assert.Equal(t, 13, p.TotalBoxes)
	assert.Equal(t, 10*4+3*10, p.TotalWeightKg)
	assert.Equal(t, 1, p.PalletCount)
	assert.True(t, p.IsManual)
	assert.Equal(t, DefaultBoxesPerPallet, p.BoxesPerPallet)
	assert.Equal(t, 0, p.FullPallets())
	assert.Equal(t, 13, p.RemainingBoxes())

	p.BoxesPerPallet = 5
	assert.Equal(t, 2, p.FullPallets())
	assert.Equal(t, 3, p.RemainingBoxes())
}

func TestNewManualPalletValidation(t *testing.T) {
	groups := []GroupRequest{{BoxSpec: specA, Quantity: 1}}

	_, err := NewManualPallet("", "coldroom1", groups, 10, "", t0)
	assert.ErrorIs(t, err, ErrPalletNameRequired)

	_, err = NewManualPallet("P", "", groups, 10, "", t0)
	assert.ErrorIs(t, err, ErrColdRoomRequired)

	_, err = NewManualPallet("P", "coldroom1", []GroupRequest{{BoxSpec: specA}}, 10, "", t0)
	assert.ErrorIs(t, err, ErrNoPalletGroups)
}

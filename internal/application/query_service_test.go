package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/coldroom-service/internal/domain"
	sharedErrors "github.com/wms-platform/coldroom-service/pkg/errors"
)

func TestRemainingBoxes_DegradesPerRecord(t *testing.T) {
	f := newFixture(t)
	f.seedRecord(t, "cr-ok", domain.Quantities{specA: 100, specB: 20}, domain.Quantities{specA: 40, specB: 20})
	f.store.SeedRawCountingRecord(
		&domain.CountingRecord{ID: "cr-bad", ForColdroom: true, SubmittedAt: t0.Add(-time.Hour)},
		domain.StoredCountingDocuments{CountingData: `{"fuerte_4kg_class1_sizeA": "lots"}`, Totals: "{", BoxesLoadedToColdroom: "{}"},
	)
	f.store.SeedRawCountingRecord(
		&domain.CountingRecord{ID: "cr-intake", ForColdroom: false, SubmittedAt: t0},
		domain.StoredCountingDocuments{CountingData: `{}`},
	)

	records, err := f.query.RemainingBoxes(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	ok := records[0]
	assert.Equal(t, "cr-ok", ok.ID)
	assert.Equal(t, domain.Quantities{specA: 60}, ok.RemainingBoxes, "fully loaded groups are left out")
	assert.Equal(t, 60, ok.TotalRemaining)
	assert.Equal(t, 50, ok.LoadingProgressPercentage)
	assert.True(t, ok.HasRemainingBoxes)
	assert.Empty(t, ok.DecodeIssues)

	bad := records[1]
	assert.Equal(t, "cr-bad", bad.ID)
	assert.ElementsMatch(t, []string{domain.DocCountingData, domain.DocTotals}, bad.DecodeIssues)
	assert.Empty(t, bad.CountingData)
	assert.Equal(t, 0, bad.TotalRemaining)
	assert.Equal(t, domain.StatusPendingColdroom, bad.Status)
}

func TestRemainingBoxes_OverloadClamped(t *testing.T) {
	f := newFixture(t)
	f.seedRecord(t, "cr-1", domain.Quantities{specA: 100}, domain.Quantities{specA: 150})

	records, err := f.query.RemainingBoxes(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].RemainingBoxes)
	assert.Equal(t, 0, records[0].TotalRemaining)
	assert.Equal(t, 100, records[0].LoadingProgressPercentage)
	assert.Equal(t, domain.StatusLoadedToColdroom, records[0].Status)
}

func TestListBoxesAndPallets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t, specA, "coldroom1", 6, t0)
	f.seedBox(t, specB, "coldroom2", 2, t0)

	created, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
		PalletName: "P-1",
		ColdRoomID: "coldroom1",
		Groups:     []PalletGroupInput{groupInput(specA, 4)},
	})
	require.NoError(t, err)

	all, err := f.query.ListBoxes(ctx, ListBoxesQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inPallet := true
	palletized, err := f.query.ListBoxes(ctx, ListBoxesQuery{ColdRoomID: "coldroom1", InPallet: &inPallet})
	require.NoError(t, err)
	require.Len(t, palletized, 1)
	assert.Equal(t, 4, palletized[0].Quantity)
	assert.Equal(t, 16, palletized[0].WeightKg)

	_, err = f.query.ListBoxes(ctx, ListBoxesQuery{ColdRoomID: "coldroom7"})
	requireAppError(t, err, sharedErrors.CodeValidationError)

	pallets, err := f.query.ListPallets(ctx, ListPalletsQuery{ColdRoomID: "coldroom1"})
	require.NoError(t, err)
	require.Len(t, pallets, 1)
	assert.Equal(t, created.Pallet.ID, pallets[0].ID)
	assert.Equal(t, 1, pallets[0].BoxCount)
	assert.True(t, pallets[0].IsManual)

	pallets, err = f.query.ListPallets(ctx, ListPalletsQuery{ColdRoomID: "coldroom2"})
	require.NoError(t, err)
	assert.Empty(t, pallets)

	boxes, err := f.query.PalletBoxes(ctx, PalletBoxesQuery{PalletID: created.Pallet.ID})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, created.Pallet.ID, *boxes[0].PalletID)

	_, err = f.query.PalletBoxes(ctx, PalletBoxesQuery{PalletID: "missing"})
	requireAppError(t, err, sharedErrors.CodeNotFound)
}

func TestCheckExistingBoxes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.LoadBoxes(ctx, LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 7, "cr-1"),
		loadInput(specB, "coldroom1", 3, "cr-1"),
		loadInput(specB, "coldroom1", 9, "cr-2"),
	}})
	require.NoError(t, err)

	got, err := f.query.CheckExistingBoxes(ctx, CheckExistingBoxesQuery{CountingRecordID: "cr-1"})
	require.NoError(t, err)
	assert.Equal(t, &ExistingBoxesDTO{Exists: true, BoxCount: 2, TotalQuantity: 10}, got)

	got, err = f.query.CheckExistingBoxes(ctx, CheckExistingBoxesQuery{CountingRecordID: "cr-3"})
	require.NoError(t, err)
	assert.False(t, got.Exists)

	_, err = f.query.CheckExistingBoxes(ctx, CheckExistingBoxesQuery{})
	requireAppError(t, err, sharedErrors.CodeValidationError)
}

func TestGroupedBoxes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t, specA, "coldroom1", 3, t0.Add(time.Hour))
	f.seedBox(t, specA, "coldroom1", 5, t0)
	f.seedBox(t, specB, "coldroom1", 2, t0)
	sheet := f.seedBox(t, specB, "coldroom1", 9, t0)
	sheet.LoadingSheetID = domain.StringPtr("ls-1")
	f.store.SeedBox(sheet)
	f.seedBox(t, specA, "coldroom2", 1, t0)

	groups, err := f.query.GroupedBoxes(ctx, GroupedBoxesQuery{ColdRoomID: "coldroom1"})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byVariety := map[string]GroupedBoxDTO{}
	for _, g := range groups {
		byVariety[g.Variety] = g
	}
	a := byVariety[string(specA.Variety)]
	assert.Equal(t, 8, a.TotalQuantity)
	assert.Equal(t, 2, a.BoxCount)
	assert.Equal(t, 32, a.WeightKg)
	assert.Equal(t, t0, a.OldestCreatedAt)

	b := byVariety[string(specB.Variety)]
	assert.Equal(t, 2, b.TotalQuantity, "boxes on a loading sheet are not available")

	all, err := f.query.GroupedBoxes(ctx, GroupedBoxesQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t, specA, "coldroom1", 10, t0)
	f.seedBox(t, specB, "coldroom1", 5, t0)
	_, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
		PalletName: "P-1",
		ColdRoomID: "coldroom1",
		Groups:     []PalletGroupInput{groupInput(specB, 5)},
	})
	require.NoError(t, err)
	_, err = f.svc.RecordTemperature(ctx, RecordTemperatureCommand{ColdRoomID: "coldroom1", Temperature: "4"})
	require.NoError(t, err)

	stats, err := f.query.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	room1 := stats[0]
	assert.Equal(t, "coldroom1", room1.ColdRoomID)
	assert.Equal(t, "Cold Room 1", room1.Name)
	assert.Equal(t, 15, room1.TotalBoxes)
	assert.Equal(t, 10, room1.LooseBoxes)
	assert.Equal(t, 5, room1.PalletizedBoxes)
	assert.Equal(t, 1, room1.Pallets)
	assert.Equal(t, 10*4+5*10, room1.TotalWeightKg)
	assert.Equal(t, map[string]int{string(specA.Variety): 10, string(specB.Variety): 5}, room1.ByVariety)
	require.NotNil(t, room1.LatestTemperature)
	assert.Equal(t, "4.00", room1.LatestTemperature.Temperature)

	room2 := stats[1]
	assert.Equal(t, 0, room2.TotalBoxes)
	assert.Nil(t, room2.LatestTemperature)
}

func TestHistoryQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.svc.RecordTemperature(ctx, RecordTemperatureCommand{ColdRoomID: "coldroom1", Temperature: "3"})
		require.NoError(t, err)
	}
	_, err := f.svc.RecordRepacking(ctx, RecordRepackingCommand{
		ColdRoomID:    "coldroom2",
		ReturnedBoxes: []RepackInput{repackInput(specA, 1)},
		Notes:         "re-graded",
	})
	require.NoError(t, err)

	logs, err := f.query.TemperatureLogs(ctx, HistoryQuery{ColdRoomID: "coldroom1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].RecordedAt.After(logs[1].RecordedAt), "newest first")

	records, err := f.query.RepackingRecords(ctx, HistoryQuery{ColdRoomID: "coldroom2"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "re-graded", records[0].Notes)
	assert.Len(t, records[0].ReturnedBoxes, 1)

	records, err = f.query.RepackingRecords(ctx, HistoryQuery{ColdRoomID: "coldroom1"})
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.Equal(t, defaultHistoryLimit, historyLimit(0))
	assert.Equal(t, maxHistoryLimit, historyLimit(5000))
	assert.Equal(t, 7, historyLimit(7))
}

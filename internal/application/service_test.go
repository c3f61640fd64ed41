package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/lock"
	"github.com/wms-platform/coldroom-service/internal/testutil"
	sharedErrors "github.com/wms-platform/coldroom-service/pkg/errors"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	"github.com/wms-platform/coldroom-service/pkg/resilience"
)

var (
	t0    = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	specA = domain.BoxSpec{Variety: domain.VarietyFuerte, BoxType: domain.BoxType4kg, Grade: domain.GradeClass1, Size: "sizeA"}
	specB = domain.BoxSpec{Variety: domain.VarietyHass, BoxType: domain.BoxType10kg, Grade: domain.GradeClass2, Size: "sizeB"}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store *testutil.MemoryStore
	svc   *ColdRoomService
	query *ColdRoomQueryService
	clock *fakeClock
}

func testCatalog() *domain.Catalog {
	minT := decimal.NewFromInt(2)
	maxT := decimal.NewFromInt(8)
	return domain.NewCatalog(
		domain.ColdRoom{ID: "coldroom1", Name: "Cold Room 1", MinTempC: &minT, MaxTempC: &maxT, BoxesPerPallet: 288},
		domain.ColdRoom{ID: "coldroom2", Name: "Cold Room 2"},
	)
}

func newFixtureWithLocker(t *testing.T, locker GroupLocker, cfg Config) *fixture {
	t.Helper()
	store := testutil.NewMemoryStore()
	clock := &fakeClock{now: t0}
	m := metrics.New(metrics.DefaultConfig("coldroom-test"))
	logger := logging.NewNop()
	catalog := testCatalog()
	return &fixture{
		store: store,
		svc:   NewColdRoomService(store, locker, catalog, m, logger, cfg, WithClock(clock.Now)),
		query: NewColdRoomQueryService(store, catalog, m, logger, cfg, WithClock(clock.Now)),
		clock: clock,
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLocker(t, lock.NewKeyedMutex(), DefaultConfig())
}

func (f *fixture) seedBox(t *testing.T, spec domain.BoxSpec, room string, qty int, at time.Time) *domain.Box {
	t.Helper()
	b, err := domain.NewBox(domain.NewBoxGroupKey(spec, room), qty, domain.BoxOrigin{SupplierName: "Kakuzi", Region: "Murang'a"}, at)
	require.NoError(t, err)
	f.store.SeedBox(b)
	return b
}

func (f *fixture) seedRecord(t *testing.T, id string, declared, loaded domain.Quantities) {
	t.Helper()
	rec := &domain.CountingRecord{
		ID:                    id,
		SupplierName:          "Kakuzi",
		CountingData:          declared,
		BoxesLoadedToColdroom: loaded,
		Status:                domain.StatusPendingColdroom,
		ForColdroom:           true,
		SubmittedAt:           t0,
	}
	require.NoError(t, f.store.SeedCountingRecord(rec))
}

func requireAppError(t *testing.T, err error, code string) *sharedErrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := sharedErrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func loadInput(spec domain.BoxSpec, room string, qty int, recordID string) LoadBoxInput {
	return LoadBoxInput{
		BoxGroupInput: BoxGroupInput{
			Variety: string(spec.Variety),
			BoxType: string(spec.BoxType),
			Size:    spec.Size,
			Grade:   string(spec.Grade),
		},
		Quantity:         qty,
		ColdRoomID:       room,
		SupplierName:     "Kakuzi",
		Region:           "Murang'a",
		CountingRecordID: recordID,
	}
}

func groupInput(spec domain.BoxSpec, qty int) PalletGroupInput {
	return PalletGroupInput{
		BoxGroupInput: BoxGroupInput{
			Variety: string(spec.Variety),
			BoxType: string(spec.BoxType),
			Size:    spec.Size,
			Grade:   string(spec.Grade),
		},
		Quantity:     qty,
		SupplierName: "Requested Supplier",
		Region:       "Nyeri",
	}
}

func repackInput(spec domain.BoxSpec, qty int) RepackInput {
	return RepackInput{
		BoxGroupInput: BoxGroupInput{
			Variety: string(spec.Variety),
			BoxType: string(spec.BoxType),
			Size:    spec.Size,
			Grade:   string(spec.Grade),
		},
		Quantity: qty,
	}
}

func TestLoadBoxes_AdvancesCountingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRecord(t, "cr-1", domain.Quantities{specA: 100}, nil)

	res, err := f.svc.LoadBoxes(ctx, LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 30, "cr-1"),
		loadInput(specA, "coldroom1", 10, "cr-1"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CreatedBoxes)
	assert.Equal(t, 40, res.TotalQuantity)
	assert.Equal(t, 1, res.UpdatedRecords)
	assert.Len(t, res.BoxIDs, 2)

	remaining, err := f.query.RemainingBoxes(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, domain.Quantities{specA: 60}, remaining[0].RemainingBoxes)
	assert.Equal(t, 60, remaining[0].TotalRemaining)
	assert.Equal(t, 40, remaining[0].LoadingProgressPercentage)
	assert.Equal(t, domain.StatusPartiallyLoaded, remaining[0].Status)
	assert.Nil(t, remaining[0].ColdRoomLoadedTo)

	f.clock.Advance(time.Hour)
	_, err = f.svc.LoadBoxes(ctx, LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 60, "cr-1"),
	}})
	require.NoError(t, err)

	record, err := f.store.CountingRecords().FindByID(ctx, "cr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLoadedToColdroom, record.Status)
	assert.Equal(t, 100, record.TotalBoxesLoaded)
	require.NotNil(t, record.LoadedToColdroomAt)
	assert.Equal(t, t0.Add(time.Hour), *record.LoadedToColdroomAt)
	require.NotNil(t, record.ColdRoomLoadedTo)
	assert.Equal(t, "coldroom1", *record.ColdRoomLoadedTo)
	assert.Empty(t, record.RemainingBoxes().PerGroup)

	var types []string
	for _, ev := range f.store.RecordedEvents() {
		types = append(types, ev.EventType())
	}
	assert.Equal(t, []string{
		"wms.coldroom.boxes-loaded",
		"wms.coldroom.counting-record-loaded",
		"wms.coldroom.boxes-loaded",
		"wms.coldroom.counting-record-loaded",
	}, types)
}

func TestLoadBoxes_OverloadIsClampedWithoutError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRecord(t, "cr-1", domain.Quantities{specA: 100}, nil)

	res, err := f.svc.LoadBoxes(ctx, LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 150, "cr-1"),
	}})
	// loading beyond the declared count is tolerated
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedRecords)

	record, err := f.store.CountingRecords().FindByID(ctx, "cr-1")
	require.NoError(t, err)
	assert.Equal(t, 100, record.LoadingProgressPercentage)
	assert.Equal(t, []domain.BoxSpec{specA}, record.Overloaded())
	assert.Empty(t, record.RemainingBoxes().PerGroup)
}

func TestLoadBoxes_Validation(t *testing.T) {
	tests := []struct {
		name  string
		boxes []LoadBoxInput
	}{
		{"empty batch", nil},
		{"zero quantity", []LoadBoxInput{loadInput(specA, "coldroom1", 5, ""), loadInput(specA, "coldroom1", 0, "")}},
		{"unknown cold room", []LoadBoxInput{loadInput(specA, "coldroom9", 5, "")}},
		{"missing cold room", []LoadBoxInput{loadInput(specA, "", 5, "")}},
		{"bad variety", []LoadBoxInput{func() LoadBoxInput {
			in := loadInput(specA, "coldroom1", 5, "")
			in.Variety = "kiwi"
			return in
		}()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.LoadBoxes(context.Background(), LoadBoxesCommand{Boxes: tt.boxes})
			appErr := requireAppError(t, err, sharedErrors.CodeValidationError)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
			assert.Empty(t, f.store.AllBoxes(), "nothing is written when validation fails")
		})
	}
}

func TestLoadBoxes_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.seedRecord(t, "cr-1", domain.Quantities{specA: 100}, nil)
	f.store.Hooks.BoxCreate = func(box *domain.Box) error {
		if box.Quantity == 13 {
			return errors.New("write timeout")
		}
		return nil
	}

	res, err := f.svc.LoadBoxes(context.Background(), LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 13, "cr-1"),
		loadInput(specA, "coldroom1", 20, "cr-1"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedBoxes)
	assert.Equal(t, 1, res.FailedBoxes)
	assert.Equal(t, 20, res.TotalQuantity)

	record, err := f.store.CountingRecords().FindByID(context.Background(), "cr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Quantities{specA: 20}, record.BoxesLoadedToColdroom, "only created boxes count towards the record")
	assert.Equal(t, 20, record.LoadingProgressPercentage)
}

func TestLoadBoxes_AllBoxesFail(t *testing.T) {
	f := newFixture(t)
	f.store.Hooks.BoxCreate = func(*domain.Box) error { return errors.New("disk full") }

	_, err := f.svc.LoadBoxes(context.Background(), LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 5, ""),
	}})
	appErr := requireAppError(t, err, sharedErrors.CodeInternalError)
	assert.Equal(t, "an internal error occurred", appErr.Message)
}

func TestLoadBoxes_RecordFailuresKeepBoxes(t *testing.T) {
	f := newFixture(t)
	f.store.SeedRawCountingRecord(
		&domain.CountingRecord{ID: "cr-bad", ForColdroom: true, SubmittedAt: t0},
		domain.StoredCountingDocuments{CountingData: "{not json", Totals: "{}", BoxesLoadedToColdroom: "{}"},
	)
	f.seedRecord(t, "cr-ok", domain.Quantities{specA: 10}, nil)
	f.store.Hooks.CountingRecordUpdate = func(rec *domain.CountingRecord) error {
		if rec.ID == "cr-ok" {
			return errors.New("connection reset")
		}
		return nil
	}

	res, err := f.svc.LoadBoxes(context.Background(), LoadBoxesCommand{Boxes: []LoadBoxInput{
		loadInput(specA, "coldroom1", 5, "cr-bad"),
		loadInput(specA, "coldroom1", 5, "cr-ok"),
		loadInput(specA, "coldroom1", 5, "cr-missing"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CreatedBoxes)
	assert.Equal(t, 0, res.UpdatedRecords)
	assert.Equal(t, 3, res.FailedRecords)
	assert.Len(t, f.store.AllBoxes(), 3)

	record, err := f.store.CountingRecords().FindByID(context.Background(), "cr-ok")
	require.NoError(t, err)
	assert.Empty(t, record.BoxesLoadedToColdroom, "failed update is rolled back")
}

func TestCreateManualPallet_FIFOSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.seedBox(t, specA, "coldroom1", 3, t0)
	newer := f.seedBox(t, specA, "coldroom1", 5, t0.Add(time.Hour))

	res, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
		PalletName: "  P-001 ",
		ColdRoomID: "coldroom1",
		CreatedBy:  "alice",
		Groups:     []PalletGroupInput{groupInput(specA, 4), groupInput(specB, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, "P-001", res.Pallet.PalletName)
	assert.Equal(t, 4, res.Pallet.TotalBoxes)
	assert.Equal(t, 16, res.Pallet.TotalWeightKg)
	assert.Equal(t, 288, res.Pallet.BoxesPerPallet)
	assert.Equal(t, 0, res.Pallet.FullPallets)
	assert.Equal(t, 4, res.Pallet.RemainingBoxes)
	assert.Equal(t, 1, res.AssignedBoxes)
	assert.Equal(t, 1, res.SplitBoxes)
	assert.Equal(t, 0, res.ShortfallBoxes)
	assert.Equal(t, 2, res.Pallet.BoxCount)

	got, err := f.store.Boxes().FindByID(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInPallet)
	assert.Equal(t, res.Pallet.ID, *got.PalletID)

	got, err = f.store.Boxes().FindByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.False(t, got.IsInPallet)
	assert.Equal(t, 4, got.Quantity)

	onPallet, err := f.store.Boxes().FindByPallet(ctx, res.Pallet.ID)
	require.NoError(t, err)
	total := 0
	for _, b := range onPallet {
		total += b.Quantity
	}
	assert.Equal(t, 4, total)

	total = 0
	for _, b := range f.store.AllBoxes() {
		total += b.Quantity
	}
	assert.Equal(t, 8, total, "split conserves quantity")
}

func TestCreateManualPallet_Shortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t, specA, "coldroom1", 2, t0)
	f.seedBox(t, specA, "coldroom2", 50, t0)

	res, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
		PalletName:     "P-short",
		ColdRoomID:     "coldroom1",
		BoxesPerPallet: 4,
		Groups:         []PalletGroupInput{groupInput(specA, 10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, res.ShortfallBoxes)
	assert.Equal(t, 10, res.Pallet.TotalBoxes)
	assert.Equal(t, 2, res.Pallet.FullPallets)
	assert.Equal(t, 2, res.Pallet.RemainingBoxes)

	onPallet, err := f.store.Boxes().FindByPallet(ctx, res.Pallet.ID)
	require.NoError(t, err)
	require.Len(t, onPallet, 2)
	var shortfall *domain.Box
	for _, b := range onPallet {
		if b.Quantity == 8 {
			shortfall = b
		}
	}
	require.NotNil(t, shortfall)
	assert.Equal(t, "Requested Supplier", shortfall.SupplierName)
	assert.Equal(t, "Nyeri", shortfall.Region)
	assert.Equal(t, "coldroom1", shortfall.ColdRoomID)

	other, err := f.store.Boxes().List(ctx, domain.BoxFilter{ColdRoomID: "coldroom2"})
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, 50, other[0].Quantity, "stock of another cold room is never used")
}

func TestCreateManualPallet_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{ColdRoomID: "coldroom1", Groups: []PalletGroupInput{groupInput(specA, 1)}})
	requireAppError(t, err, sharedErrors.CodeValidationError)

	_, err = f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{PalletName: "P", ColdRoomID: "coldroom1", Groups: []PalletGroupInput{groupInput(specA, 0)}})
	requireAppError(t, err, sharedErrors.CodeValidationError)

	_, err = f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{PalletName: "P", ColdRoomID: "coldroom1", Groups: []PalletGroupInput{groupInput(specA, -1)}})
	requireAppError(t, err, sharedErrors.CodeValidationError)

	_, err = f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{PalletName: "P", ColdRoomID: "nowhere", Groups: []PalletGroupInput{groupInput(specA, 1)}})
	requireAppError(t, err, sharedErrors.CodeValidationError)

	assert.Empty(t, f.store.AllPallets())
}

func TestCreateManualPallet_DuplicatePerColdRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groups := []PalletGroupInput{groupInput(specA, 5), groupInput(specB, 2)}

	first, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{PalletName: "P-1", ColdRoomID: "coldroom1", Groups: groups})
	require.NoError(t, err)

	existing, err := f.svc.CheckExistingPallet(ctx, CheckExistingPalletQuery{ColdRoomID: "coldroom1", Groups: groups})
	require.NoError(t, err)
	assert.True(t, existing.Exists)
	assert.Equal(t, first.Pallet.ID, existing.PalletID)

	_, err = f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{PalletName: "P-2", ColdRoomID: "coldroom1", Groups: groups})
	appErr := requireAppError(t, err, sharedErrors.CodeConflict)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	assert.Equal(t, first.Pallet.ID, appErr.Details["existingPalletId"])
	assert.Equal(t, "P-1", appErr.Details["existingPalletName"])
	assert.Len(t, f.store.AllPallets(), 1, "the duplicate attempt writes nothing")

	second, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{PalletName: "P-2", ColdRoomID: "coldroom2", Groups: groups})
	require.NoError(t, err)
	assert.NotEqual(t, first.Pallet.ID, second.Pallet.ID)

	existing, err = f.svc.CheckExistingPallet(ctx, CheckExistingPalletQuery{ColdRoomID: "coldroom1", Groups: []PalletGroupInput{groupInput(specA, 6)}})
	require.NoError(t, err)
	assert.False(t, existing.Exists)
}

func TestCreateManualPallet_ExtraGroupsStillMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
		PalletName: "P-1",
		ColdRoomID: "coldroom1",
		Groups:     []PalletGroupInput{groupInput(specA, 5), groupInput(specB, 2)},
	})
	require.NoError(t, err)

	// a request for a subset of an existing pallet's groups is reported as a duplicate
	existing, err := f.svc.CheckExistingPallet(ctx, CheckExistingPalletQuery{
		ColdRoomID: "coldroom1",
		Groups:     []PalletGroupInput{groupInput(specA, 5)},
	})
	require.NoError(t, err)
	assert.True(t, existing.Exists)
}

func TestCreateManualPallet_ConcurrentAssembliesNeverDoubleSpend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.seedBox(t, specA, "coldroom1", 1, t0.Add(time.Duration(i)*time.Minute))
	}

	const workers = 5
	results := make([]*CreatePalletResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
				PalletName: fmt.Sprintf("P-%d", i),
				ColdRoomID: "coldroom1",
				Groups:     []PalletGroupInput{groupInput(specA, i+1)},
			})
		}(i)
	}
	wg.Wait()

	shortfall := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		shortfall += results[i].ShortfallBoxes
	}

	palletTotals := make(map[string]int)
	loose := 0
	seen := make(map[string]bool)
	for _, b := range f.store.AllBoxes() {
		assert.False(t, seen[b.ID])
		seen[b.ID] = true
		if b.IsInPallet {
			palletTotals[*b.PalletID] += b.Quantity
		} else {
			loose += b.Quantity
		}
	}
	for _, p := range f.store.AllPallets() {
		assert.Equal(t, p.TotalBoxes, palletTotals[p.ID], "pallet %s holds exactly what was requested", p.PalletName)
	}
	assert.Equal(t, 0, loose)
	assert.Equal(t, 15-10, shortfall, "only the missing stock is created")
}

type contendedLocker struct{}

func (contendedLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	return nil, fmt.Errorf("%w: %v", domain.ErrLockNotObtained, keys)
}

func TestCreateManualPallet_LockContentionIsUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockRetry = &resilience.RetryConfig{
		MaxAttempts:     2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffFactor:   1,
		RetryableErrors: isLockContention,
	}
	f := newFixtureWithLocker(t, contendedLocker{}, cfg)

	_, err := f.svc.CreateManualPallet(context.Background(), CreateManualPalletCommand{
		PalletName: "P-1",
		ColdRoomID: "coldroom1",
		Groups:     []PalletGroupInput{groupInput(specA, 1)},
	})
	appErr := requireAppError(t, err, sharedErrors.CodeServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
	assert.True(t, appErr.Retryable())
	assert.Empty(t, f.store.AllPallets())
}

func TestDissolvePallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t, specA, "coldroom1", 3, t0)
	f.seedBox(t, specA, "coldroom1", 5, t0.Add(time.Minute))

	created, err := f.svc.CreateManualPallet(ctx, CreateManualPalletCommand{
		PalletName: "P-1",
		ColdRoomID: "coldroom1",
		Groups:     []PalletGroupInput{groupInput(specA, 4), groupInput(specB, 2)},
	})
	require.NoError(t, err)
	require.Equal(t, 3, created.Pallet.BoxCount)

	res, err := f.svc.DissolvePallet(ctx, DissolvePalletCommand{PalletID: created.Pallet.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.BoxesReturned)
	assert.Equal(t, "P-1", res.PalletName)

	_, err = f.store.Pallets().FindByID(ctx, created.Pallet.ID)
	assert.ErrorIs(t, err, domain.ErrPalletNotFound)
	for _, b := range f.store.AllBoxes() {
		assert.False(t, b.IsInPallet)
		assert.Nil(t, b.PalletID)
		assert.Nil(t, b.ConvertedToPalletAt)
	}

	_, err = f.svc.DissolvePallet(ctx, DissolvePalletCommand{PalletID: created.Pallet.ID})
	requireAppError(t, err, sharedErrors.CodeNotFound)

	_, err = f.svc.DissolvePallet(ctx, DissolvePalletCommand{})
	requireAppError(t, err, sharedErrors.CodeValidationError)
}

func TestRecordRepacking_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.seedBox(t, specA, "coldroom1", 10, t0)

	res, err := f.svc.RecordRepacking(ctx, RecordRepackingCommand{
		ColdRoomID:    "coldroom1",
		RemovedBoxes:  []RepackInput{repackInput(specA, 10)},
		ReturnedBoxes: []RepackInput{repackInput(specA, 6)},
		RejectedBoxes: 4,
		ProcessedBy:   "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.RemovedQuantity)
	assert.Equal(t, 6, res.ReturnedQuantity)
	assert.Equal(t, 1, res.DeletedBoxes)
	assert.Equal(t, 1, res.CreatedBoxes)
	assert.Empty(t, res.Unremoved)

	_, err = f.store.Boxes().FindByID(ctx, original.ID)
	assert.ErrorIs(t, err, domain.ErrBoxNotFound)

	boxes := f.store.AllBoxes()
	require.Len(t, boxes, 1)
	assert.Equal(t, domain.RepackingReturnSupplier, boxes[0].SupplierName)
	assert.Equal(t, 6, boxes[0].Quantity)
	assert.Equal(t, specA, boxes[0].BoxSpec)

	res, err = f.svc.RecordRepacking(ctx, RecordRepackingCommand{
		ColdRoomID:    "coldroom1",
		ReturnedBoxes: []RepackInput{repackInput(specA, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedBoxes)

	boxes = f.store.AllBoxes()
	require.Len(t, boxes, 1)
	assert.Equal(t, 10, boxes[0].Quantity)
	assert.Len(t, f.store.RepackingRecordsStored(), 2)
}

func TestRecordRepacking_PartialRemoval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	box := f.seedBox(t, specA, "coldroom1", 10, t0)

	res, err := f.svc.RecordRepacking(ctx, RecordRepackingCommand{
		ColdRoomID:   "coldroom1",
		RemovedBoxes: []RepackInput{repackInput(specA, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.RemovedQuantity)
	assert.Equal(t, 0, res.DeletedBoxes)

	got, err := f.store.Boxes().FindByID(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
}

func TestRecordRepacking_UnderRemovalIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t, specA, "coldroom1", 3, t0)

	res, err := f.svc.RecordRepacking(ctx, RecordRepackingCommand{
		ColdRoomID:   "coldroom1",
		RemovedBoxes: []RepackInput{repackInput(specA, 5), repackInput(specB, 2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.RemovedQuantity, "no single box holds the requested quantity")
	assert.ElementsMatch(t, []RepackEntryDTO{
		toRepackEntryDTO(specA, 5),
		toRepackEntryDTO(specB, 2),
	}, res.Unremoved)
	assert.Len(t, f.store.AllBoxes(), 1)
}

func TestRecordRepacking_FailureAbortsButKeepsAuditRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedBox(t, specA, "coldroom1", 10, t0)
	b := f.seedBox(t, specB, "coldroom1", 10, t0)
	f.store.Hooks.BoxDelete = func(id string) error {
		if id == a.ID {
			return errors.New("primary stepped down")
		}
		return nil
	}

	_, err := f.svc.RecordRepacking(ctx, RecordRepackingCommand{
		ColdRoomID:    "coldroom1",
		RemovedBoxes:  []RepackInput{repackInput(specA, 10), repackInput(specB, 10)},
		ReturnedBoxes: []RepackInput{repackInput(specA, 3)},
	})
	requireAppError(t, err, sharedErrors.CodeInternalError)

	records := f.store.RepackingRecordsStored()
	require.Len(t, records, 1)
	assert.Len(t, records[0].RemovedBoxes, 2)

	got, err := f.store.Boxes().FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity, "later removals are not attempted")
	assert.Len(t, f.store.AllBoxes(), 2, "no return box is created")
	assert.Empty(t, f.store.RecordedEvents())
}

func TestRecordRepacking_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordRepacking(context.Background(), RecordRepackingCommand{
		ColdRoomID:   "coldroom1",
		RemovedBoxes: []RepackInput{repackInput(specA, 0)},
	})
	requireAppError(t, err, sharedErrors.CodeValidationError)

	_, err = f.svc.RecordRepacking(context.Background(), RecordRepackingCommand{
		ColdRoomID:    "coldroom1",
		RejectedBoxes: -1,
	})
	requireAppError(t, err, sharedErrors.CodeValidationError)
	assert.Empty(t, f.store.RepackingRecordsStored())
}

func TestRecordTemperature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inRange, err := f.svc.RecordTemperature(ctx, RecordTemperatureCommand{ColdRoomID: "coldroom1", Temperature: "5.5", Humidity: "85"})
	require.NoError(t, err)
	assert.False(t, inRange.OutOfRange)
	assert.Equal(t, "5.50", inRange.Temperature)
	require.NotNil(t, inRange.Humidity)
	assert.Equal(t, "85", *inRange.Humidity)
	assert.Len(t, f.store.RecordedEvents(), 1)

	f.clock.Advance(time.Minute)
	outOfRange, err := f.svc.RecordTemperature(ctx, RecordTemperatureCommand{ColdRoomID: "coldroom1", Temperature: "12.25"})
	require.NoError(t, err)
	assert.True(t, outOfRange.OutOfRange)

	events := f.store.RecordedEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "wms.coldroom.temperature-excursion", events[2].EventType())

	unbounded, err := f.svc.RecordTemperature(ctx, RecordTemperatureCommand{ColdRoomID: "coldroom2", Temperature: "30"})
	require.NoError(t, err)
	assert.False(t, unbounded.OutOfRange)

	for _, cmd := range []RecordTemperatureCommand{
		{ColdRoomID: "coldroom1", Temperature: "warm"},
		{ColdRoomID: "coldroom1", Temperature: "5", Humidity: "wet"},
		{ColdRoomID: "coldroom1", Temperature: "-80"},
		{ColdRoomID: "coldroom1", Temperature: "5", Humidity: "120"},
		{ColdRoomID: "", Temperature: "5"},
	} {
		_, err := f.svc.RecordTemperature(ctx, cmd)
		requireAppError(t, err, sharedErrors.CodeValidationError)
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", fmt.Errorf("boxes[0]: %w", domain.ErrInvalidQuantity), sharedErrors.CodeValidationError, http.StatusBadRequest},
		{"pallet not found", domain.ErrPalletNotFound, sharedErrors.CodeNotFound, http.StatusNotFound},
		{"record not found", domain.ErrCountingRecordNotFound, sharedErrors.CodeNotFound, http.StatusNotFound},
		{"duplicate", &domain.DuplicatePalletError{PalletID: "p1", PalletName: "P"}, sharedErrors.CodeConflict, http.StatusConflict},
		{"lock", domain.ErrLockNotObtained, sharedErrors.CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("find: %w", context.DeadlineExceeded), sharedErrors.CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"store failure", errors.New("socket closed"), sharedErrors.CodeInternalError, http.StatusInternalServerError},
		{"already mapped", sharedErrors.ErrValidation("x"), sharedErrors.CodeValidationError, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := toAppError(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}
	assert.Nil(t, toAppError(nil))
}

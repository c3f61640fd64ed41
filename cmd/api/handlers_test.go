package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/coldroom-service/internal/application"
	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/internal/infrastructure/lock"
	"github.com/wms-platform/coldroom-service/internal/testutil"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	"github.com/wms-platform/coldroom-service/pkg/middleware"
)

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details"`
}

func setupRouter(t *testing.T) (*gin.Engine, *testutil.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	minT := decimal.NewFromInt(2)
	maxT := decimal.NewFromInt(8)
	catalog := domain.NewCatalog(
		domain.ColdRoom{ID: "coldroom1", Name: "Cold Room 1", MinTempC: &minT, MaxTempC: &maxT, BoxesPerPallet: 288},
		domain.ColdRoom{ID: "coldroom2", Name: "Cold Room 2"},
	)
	require.NoError(t, RegisterEnums(catalog))

	store := testutil.NewMemoryStore()
	m := metrics.New(metrics.DefaultConfig("coldroom-handler-test"))
	logger := logging.NewNop()
	cfg := application.DefaultConfig()

	commands := application.NewColdRoomService(store, lock.NewKeyedMutex(), catalog, m, logger, cfg)
	queries := application.NewColdRoomQueryService(store, catalog, m, logger, cfg)

	router := gin.New()
	router.Use(middleware.RequestID())
	NewColdRoomHandler(commands, queries, logger).Register(router)
	return router, store
}

func doRequest(t *testing.T, router *gin.Engine, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func boxGroup(quantity int) map[string]any {
	return map[string]any{
		"variety":  "hass",
		"boxType":  "4kg",
		"size":     "size16",
		"grade":    "class1",
		"quantity": quantity,
	}
}

func loadBox(quantity int, room string) map[string]any {
	b := boxGroup(quantity)
	b["coldRoomId"] = room
	b["supplierName"] = "Mwangi Farms"
	b["region"] = "Murang'a"
	return b
}

func TestDispatch_ActionErrors(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"missing action", http.MethodGet, "/api/cold-room", http.StatusBadRequest},
		{"unknown action", http.MethodGet, "/api/cold-room?action=shred-boxes", http.StatusBadRequest},
		{"mutation over GET", http.MethodGet, "/api/cold-room?action=load-boxes", http.StatusMethodNotAllowed},
		{"query over POST", http.MethodPost, "/api/cold-room?action=stats", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doRequest(t, router, tt.method, tt.target, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestLoadBoxes_CreatesAndLists(t *testing.T) {
	router, store := setupRouter(t)

	w, env := doRequest(t, router, http.MethodPost, "/api/cold-room?action=load-boxes", map[string]any{
		"boxes": []any{loadBox(20, "coldroom1"), loadBox(5, "coldroom2")},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var result application.LoadBoxesResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.CreatedBoxes)
	assert.Equal(t, 25, result.TotalQuantity)
	assert.Len(t, store.AllBoxes(), 2)

	w, env = doRequest(t, router, http.MethodGet, "/api/cold-room?action=boxes&coldRoomId=coldroom1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var boxes []application.BoxDTO
	require.NoError(t, json.Unmarshal(env.Data, &boxes))
	require.Len(t, boxes, 1)
	assert.Equal(t, 20, boxes[0].Quantity)
	assert.Equal(t, 80, boxes[0].WeightKg)
}

func TestLoadBoxes_ValidationFailures(t *testing.T) {
	router, _ := setupRouter(t)

	bad := loadBox(5, "coldroom1")
	bad["variety"] = "reed"
	unknownRoom := loadBox(5, "coldroom9")

	for name, body := range map[string]any{
		"empty list":      map[string]any{"boxes": []any{}},
		"unknown variety": map[string]any{"boxes": []any{bad}},
		"unknown room":    map[string]any{"boxes": []any{unknownRoom}},
		"zero quantity":   map[string]any{"boxes": []any{loadBox(0, "coldroom1")}},
	} {
		t.Run(name, func(t *testing.T) {
			w, env := doRequest(t, router, http.MethodPost, "/api/cold-room?action=load-boxes", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.False(t, env.Success)
		})
	}
}

func TestManualPallet_LifecycleOverHTTP(t *testing.T) {
	router, store := setupRouter(t)

	w, _ := doRequest(t, router, http.MethodPost, "/api/cold-room?action=load-boxes", map[string]any{
		"boxes": []any{loadBox(30, "coldroom1")},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	palletBody := map[string]any{
		"palletName": "P-100",
		"coldRoomId": "coldroom1",
		"createdBy":  "ops",
		"groups":     []any{boxGroup(12)},
	}
	w, env := doRequest(t, router, http.MethodPost, "/api/cold-room?action=create-manual-pallet", palletBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created application.CreatePalletResult
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, 12, created.Pallet.TotalBoxes)
	assert.Equal(t, 1, created.SplitBoxes)
	assert.Equal(t, 0, created.ShortfallBoxes)

	// same composition is reported and refused
	w, env = doRequest(t, router, http.MethodPost, "/api/cold-room?action=check-existing-pallet", map[string]any{
		"coldRoomId": "coldroom1",
		"groups":     []any{boxGroup(12)},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var check application.ExistingPalletDTO
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.True(t, check.Exists)
	assert.Equal(t, created.Pallet.ID, check.PalletID)

	w, env = doRequest(t, router, http.MethodPost, "/api/cold-room?action=create-manual-pallet", palletBody)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, created.Pallet.ID, env.Details["existingPalletId"])

	w, env = doRequest(t, router, http.MethodGet, "/api/cold-room?action=pallet-boxes&palletId="+created.Pallet.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var palletBoxes []application.BoxDTO
	require.NoError(t, json.Unmarshal(env.Data, &palletBoxes))
	require.Len(t, palletBoxes, 1)
	assert.Equal(t, 12, palletBoxes[0].Quantity)

	w, env = doRequest(t, router, http.MethodPost, "/api/cold-room?action=dissolve-pallet", map[string]any{
		"palletId": created.Pallet.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dissolved application.DissolvePalletResult
	require.NoError(t, json.Unmarshal(env.Data, &dissolved))
	assert.EqualValues(t, 1, dissolved.BoxesReturned)
	assert.Empty(t, store.AllPallets())

	w, _ = doRequest(t, router, http.MethodPost, "/api/cold-room?action=dissolve-pallet", map[string]any{
		"palletId": created.Pallet.ID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordTemperature_FlagsExcursion(t *testing.T) {
	router, _ := setupRouter(t)

	w, env := doRequest(t, router, http.MethodPost, "/api/cold-room?action=record-temperature", map[string]any{
		"coldRoomId":  "coldroom1",
		"temperature": 12.5,
		"humidity":    "85",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reading application.TemperatureLogDTO
	require.NoError(t, json.Unmarshal(env.Data, &reading))
	assert.Equal(t, "12.50", reading.Temperature)
	assert.True(t, reading.OutOfRange)

	w, _ = doRequest(t, router, http.MethodPost, "/api/cold-room?action=record-temperature", map[string]any{
		"coldRoomId":  "coldroom1",
		"temperature": 400,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doRequest(t, router, http.MethodGet, "/api/cold-room?action=temperature-logs&coldRoomId=coldroom1&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []application.TemperatureLogDTO
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Len(t, logs, 1)
}

func TestRecordRepacking_OverHTTP(t *testing.T) {
	router, _ := setupRouter(t)

	w, _ := doRequest(t, router, http.MethodPost, "/api/cold-room?action=load-boxes", map[string]any{
		"boxes": []any{loadBox(10, "coldroom1")},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doRequest(t, router, http.MethodPost, "/api/cold-room?action=record-repacking", map[string]any{
		"coldRoomId":    "coldroom1",
		"removedBoxes":  []any{boxGroup(4)},
		"returnedBoxes": []any{boxGroup(3)},
		"rejectedBoxes": 1,
		"processedBy":   "qa",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result application.RepackingResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 4, result.RemovedQuantity)
	assert.Equal(t, 3, result.ReturnedQuantity)

	w, env = doRequest(t, router, http.MethodGet, "/api/cold-room?action=repacking-records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []application.RepackingRecordDTO
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].RejectedBoxes)
}

func TestQueries_RejectBadParameters(t *testing.T) {
	router, _ := setupRouter(t)

	for _, target := range []string{
		"/api/cold-room?action=pallet-boxes",
		"/api/cold-room?action=check-existing-boxes",
		"/api/cold-room?action=temperature-logs&limit=5000",
		"/api/cold-room?action=boxes&coldRoomId=nowhere",
	} {
		w, env := doRequest(t, router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.False(t, env.Success, target)
	}

	w, env := doRequest(t, router, http.MethodGet, "/api/cold-room?action=check-existing-boxes&countingRecordId=missing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var existing application.ExistingBoxesDTO
	require.NoError(t, json.Unmarshal(env.Data, &existing))
	assert.False(t, existing.Exists)
}

func TestStats_EmptyStore(t *testing.T) {
	router, _ := setupRouter(t)

	w, env := doRequest(t, router, http.MethodGet, "/api/cold-room?action=stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data)
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/coldroom-service/internal/application"
	"github.com/wms-platform/coldroom-service/internal/domain"
	"github.com/wms-platform/coldroom-service/pkg/api"
	"github.com/wms-platform/coldroom-service/pkg/errors"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/middleware"
)

// actionFunc handles one action and returns the status and data of a successful response
type actionFunc func(c *gin.Context) (int, any, error)

// ColdRoomHandler serves the action endpoint
type ColdRoomHandler struct {
	commands *application.ColdRoomService
	queries  *application.ColdRoomQueryService
	logger   *logging.Logger
	reads    map[string]actionFunc
	writes   map[string]actionFunc
}

// NewColdRoomHandler builds the action tables
func NewColdRoomHandler(commands *application.ColdRoomService, queries *application.ColdRoomQueryService, logger *logging.Logger) *ColdRoomHandler {
	h := &ColdRoomHandler{commands: commands, queries: queries, logger: logger}
	h.reads = map[string]actionFunc{
		"boxes":                h.listBoxes,
		"pallets":              h.listPallets,
		"stats":                h.stats,
		"remaining-boxes":      h.remainingBoxes,
		"pallet-boxes":         h.palletBoxes,
		"check-existing-boxes": h.checkExistingBoxes,
		"grouped-boxes":        h.groupedBoxes,
		"temperature-logs":     h.temperatureLogs,
		"repacking-records":    h.repackingRecords,
	}
	h.writes = map[string]actionFunc{
		"load-boxes":            h.loadBoxes,
		"create-manual-pallet":  h.createManualPallet,
		"check-existing-pallet": h.checkExistingPallet,
		"dissolve-pallet":       h.dissolvePallet,
		"record-temperature":    h.recordTemperature,
		"record-repacking":      h.recordRepacking,
	}
	return h
}

// RegisterEnums installs the validation tags used by the request payloads
func RegisterEnums(catalog *domain.Catalog) error {
	enums := map[string][]string{
		"variety":   domain.Varieties,
		"box_type":  domain.BoxTypes,
		"grade":     domain.Grades,
		"cold_room": catalog.IDs(),
	}
	for tag, allowed := range enums {
		if err := api.RegisterEnum(tag, allowed...); err != nil {
			return fmt.Errorf("register %s validation: %w", tag, err)
		}
	}
	return nil
}

// Register mounts the action endpoint on router
func (h *ColdRoomHandler) Register(router gin.IRouter) {
	router.GET("/api/cold-room", h.dispatch(h.reads, h.writes, http.MethodPost))
	router.POST("/api/cold-room", h.dispatch(h.writes, h.reads, http.MethodGet))
}

func (h *ColdRoomHandler) dispatch(actions, other map[string]actionFunc, otherMethod string) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, h.logger.Logger)

		action := c.Query("action")
		if action == "" {
			responder.RespondBadRequest("action query parameter is required")
			return
		}
		fn, ok := actions[action]
		if !ok {
			if _, wrongMethod := other[action]; wrongMethod {
				responder.RespondWithAppError(errors.NewAppError("METHOD_NOT_ALLOWED",
					fmt.Sprintf("action %q requires %s", action, otherMethod), http.StatusMethodNotAllowed))
				return
			}
			responder.RespondBadRequest(fmt.Sprintf("unknown action %q", action))
			return
		}

		status, data, err := fn(c)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		middleware.RespondOK(c, status, data)
	}
}

type boxGroupRequest struct {
	Variety string `json:"variety" binding:"required,variety"`
	BoxType string `json:"boxType" binding:"required,box_type"`
	Size    string `json:"size" binding:"required,max=32"`
	Grade   string `json:"grade" binding:"required,grade"`
}

func (g boxGroupRequest) input() application.BoxGroupInput {
	return application.BoxGroupInput{Variety: g.Variety, BoxType: g.BoxType, Size: g.Size, Grade: g.Grade}
}

type loadBoxRequest struct {
	boxGroupRequest
	Quantity         int    `json:"quantity" binding:"gt=0"`
	ColdRoomID       string `json:"coldRoomId" binding:"required,cold_room"`
	SupplierName     string `json:"supplierName"`
	Region           string `json:"region"`
	CountingRecordID string `json:"countingRecordId"`
}

type loadBoxesRequest struct {
	Boxes []loadBoxRequest `json:"boxes" binding:"required,min=1,dive"`
}

func (h *ColdRoomHandler) loadBoxes(c *gin.Context) (int, any, error) {
	var req loadBoxesRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		return 0, nil, appErr
	}
	cmd := application.LoadBoxesCommand{Boxes: make([]application.LoadBoxInput, len(req.Boxes))}
	for i, b := range req.Boxes {
		cmd.Boxes[i] = application.LoadBoxInput{
			BoxGroupInput:    b.input(),
			Quantity:         b.Quantity,
			ColdRoomID:       b.ColdRoomID,
			SupplierName:     b.SupplierName,
			Region:           b.Region,
			CountingRecordID: b.CountingRecordID,
		}
	}
	result, err := h.commands.LoadBoxes(c.Request.Context(), cmd)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, result, nil
}

type palletGroupRequest struct {
	boxGroupRequest
	Quantity         int    `json:"quantity" binding:"gte=0"`
	SupplierName     string `json:"supplierName"`
	Region           string `json:"region"`
	CountingRecordID string `json:"countingRecordId"`
}

func palletGroupInputs(groups []palletGroupRequest) []application.PalletGroupInput {
	out := make([]application.PalletGroupInput, len(groups))
	for i, g := range groups {
		out[i] = application.PalletGroupInput{
			BoxGroupInput:    g.input(),
			Quantity:         g.Quantity,
			SupplierName:     g.SupplierName,
			Region:           g.Region,
			CountingRecordID: g.CountingRecordID,
		}
	}
	return out
}

type createManualPalletRequest struct {
	PalletName     string               `json:"palletName" binding:"required,max=120"`
	ColdRoomID     string               `json:"coldRoomId" binding:"required,cold_room"`
	BoxesPerPallet int                  `json:"boxesPerPallet" binding:"gte=0"`
	CreatedBy      string               `json:"createdBy"`
	Groups         []palletGroupRequest `json:"groups" binding:"required,min=1,dive"`
}

func (h *ColdRoomHandler) createManualPallet(c *gin.Context) (int, any, error) {
	var req createManualPalletRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		return 0, nil, appErr
	}
	result, err := h.commands.CreateManualPallet(c.Request.Context(), application.CreateManualPalletCommand{
		PalletName:     req.PalletName,
		ColdRoomID:     req.ColdRoomID,
		BoxesPerPallet: req.BoxesPerPallet,
		CreatedBy:      req.CreatedBy,
		Groups:         palletGroupInputs(req.Groups),
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, result, nil
}

type checkExistingPalletRequest struct {
	ColdRoomID string               `json:"coldRoomId" binding:"required,cold_room"`
	Groups     []palletGroupRequest `json:"groups" binding:"required,min=1,dive"`
}

func (h *ColdRoomHandler) checkExistingPallet(c *gin.Context) (int, any, error) {
	var req checkExistingPalletRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		return 0, nil, appErr
	}
	result, err := h.commands.CheckExistingPallet(c.Request.Context(), application.CheckExistingPalletQuery{
		ColdRoomID: req.ColdRoomID,
		Groups:     palletGroupInputs(req.Groups),
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, result, nil
}

type dissolvePalletRequest struct {
	PalletID    string `json:"palletId" binding:"required"`
	DissolvedBy string `json:"dissolvedBy"`
}

func (h *ColdRoomHandler) dissolvePallet(c *gin.Context) (int, any, error) {
	var req dissolvePalletRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		return 0, nil, appErr
	}
	result, err := h.commands.DissolvePallet(c.Request.Context(), application.DissolvePalletCommand{
		PalletID:    req.PalletID,
		DissolvedBy: req.DissolvedBy,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, result, nil
}

// Readings arrive as JSON numbers or numeric strings
type recordTemperatureRequest struct {
	ColdRoomID  string      `json:"coldRoomId" binding:"required,cold_room"`
	Temperature json.Number `json:"temperature" binding:"required"`
	Humidity    json.Number `json:"humidity"`
	RecordedBy  string      `json:"recordedBy"`
}

func (h *ColdRoomHandler) recordTemperature(c *gin.Context) (int, any, error) {
	var req recordTemperatureRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		return 0, nil, appErr
	}
	result, err := h.commands.RecordTemperature(c.Request.Context(), application.RecordTemperatureCommand{
		ColdRoomID:  req.ColdRoomID,
		Temperature: req.Temperature.String(),
		Humidity:    req.Humidity.String(),
		RecordedBy:  req.RecordedBy,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, result, nil
}

type repackEntryRequest struct {
	boxGroupRequest
	Quantity int `json:"quantity" binding:"gt=0"`
}

func repackInputs(entries []repackEntryRequest) []application.RepackInput {
	out := make([]application.RepackInput, len(entries))
	for i, e := range entries {
		out[i] = application.RepackInput{BoxGroupInput: e.input(), Quantity: e.Quantity}
	}
	return out
}

type recordRepackingRequest struct {
	ColdRoomID    string               `json:"coldRoomId" binding:"required,cold_room"`
	RemovedBoxes  []repackEntryRequest `json:"removedBoxes" binding:"dive"`
	ReturnedBoxes []repackEntryRequest `json:"returnedBoxes" binding:"dive"`
	RejectedBoxes int                  `json:"rejectedBoxes" binding:"gte=0"`
	Notes         string               `json:"notes" binding:"max=2000"`
	ProcessedBy   string               `json:"processedBy"`
}

func (h *ColdRoomHandler) recordRepacking(c *gin.Context) (int, any, error) {
	var req recordRepackingRequest
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		return 0, nil, appErr
	}
	result, err := h.commands.RecordRepacking(c.Request.Context(), application.RecordRepackingCommand{
		ColdRoomID:    req.ColdRoomID,
		RemovedBoxes:  repackInputs(req.RemovedBoxes),
		ReturnedBoxes: repackInputs(req.ReturnedBoxes),
		RejectedBoxes: req.RejectedBoxes,
		Notes:         req.Notes,
		ProcessedBy:   req.ProcessedBy,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, result, nil
}

type roomQuery struct {
	ColdRoomID string `form:"coldRoomId" binding:"omitempty,cold_room"`
}

type boxesQuery struct {
	ColdRoomID string `form:"coldRoomId" binding:"omitempty,cold_room"`
	InPallet   *bool  `form:"inPallet"`
}

func (h *ColdRoomHandler) listBoxes(c *gin.Context) (int, any, error) {
	var q boxesQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	boxes, err := h.queries.ListBoxes(c.Request.Context(), application.ListBoxesQuery{ColdRoomID: q.ColdRoomID, InPallet: q.InPallet})
	return http.StatusOK, boxes, err
}

func (h *ColdRoomHandler) listPallets(c *gin.Context) (int, any, error) {
	var q roomQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	pallets, err := h.queries.ListPallets(c.Request.Context(), application.ListPalletsQuery{ColdRoomID: q.ColdRoomID})
	return http.StatusOK, pallets, err
}

func (h *ColdRoomHandler) stats(c *gin.Context) (int, any, error) {
	stats, err := h.queries.Stats(c.Request.Context())
	return http.StatusOK, stats, err
}

func (h *ColdRoomHandler) remainingBoxes(c *gin.Context) (int, any, error) {
	records, err := h.queries.RemainingBoxes(c.Request.Context())
	return http.StatusOK, records, err
}

type palletBoxesQuery struct {
	PalletID string `form:"palletId" binding:"required"`
}

func (h *ColdRoomHandler) palletBoxes(c *gin.Context) (int, any, error) {
	var q palletBoxesQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	boxes, err := h.queries.PalletBoxes(c.Request.Context(), application.PalletBoxesQuery{PalletID: q.PalletID})
	return http.StatusOK, boxes, err
}

type checkExistingBoxesQuery struct {
	CountingRecordID string `form:"countingRecordId" binding:"required"`
}

func (h *ColdRoomHandler) checkExistingBoxes(c *gin.Context) (int, any, error) {
	var q checkExistingBoxesQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	result, err := h.queries.CheckExistingBoxes(c.Request.Context(), application.CheckExistingBoxesQuery{CountingRecordID: q.CountingRecordID})
	return http.StatusOK, result, err
}

func (h *ColdRoomHandler) groupedBoxes(c *gin.Context) (int, any, error) {
	var q roomQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	groups, err := h.queries.GroupedBoxes(c.Request.Context(), application.GroupedBoxesQuery{ColdRoomID: q.ColdRoomID})
	return http.StatusOK, groups, err
}

type historyQuery struct {
	ColdRoomID string `form:"coldRoomId" binding:"omitempty,cold_room"`
	Limit      int    `form:"limit" binding:"gte=0,max=1000"`
}

func (h *ColdRoomHandler) temperatureLogs(c *gin.Context) (int, any, error) {
	var q historyQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	logs, err := h.queries.TemperatureLogs(c.Request.Context(), application.HistoryQuery{ColdRoomID: q.ColdRoomID, Limit: q.Limit})
	return http.StatusOK, logs, err
}

func (h *ColdRoomHandler) repackingRecords(c *gin.Context) (int, any, error) {
	var q historyQuery
	if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
		return 0, nil, appErr
	}
	records, err := h.queries.RepackingRecords(c.Request.Context(), application.HistoryQuery{ColdRoomID: q.ColdRoomID, Limit: q.Limit})
	return http.StatusOK, records, err
}

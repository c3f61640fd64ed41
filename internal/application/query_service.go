package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/coldroom-service/internal/domain"
	sharedErrors "github.com/wms-platform/coldroom-service/pkg/errors"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// ColdRoomQueryService handles the cold room's read-only use cases
type ColdRoomQueryService struct {
	store   domain.Store
	catalog *domain.Catalog
	metrics *metrics.Metrics
	logger  *logging.Logger
	runner  *runner
}

// NewColdRoomQueryService creates a new ColdRoomQueryService
func NewColdRoomQueryService(
	store domain.Store,
	catalog *domain.Catalog,
	m *metrics.Metrics,
	logger *logging.Logger,
	config Config,
	opts ...Option,
) *ColdRoomQueryService {
	o := buildOptions(opts)
	logger = logger.WithComponent("coldroom-query-service")
	return &ColdRoomQueryService{
		store:   store,
		catalog: catalog,
		metrics: m,
		logger:  logger,
		runner:  &runner{tracer: o.tracer, logger: logger, timeout: config.OperationTimeout},
	}
}

// optionalRoom validates a cold room filter when one is given
func (s *ColdRoomQueryService) optionalRoom(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	room, err := s.catalog.Require(id)
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

// ListBoxes lists boxes, optionally filtered by cold room and pallet membership
func (s *ColdRoomQueryService) ListBoxes(ctx context.Context, query ListBoxesQuery) ([]BoxDTO, error) {
	return run(ctx, s.runner, "boxes", query.ColdRoomID, func(ctx context.Context) ([]BoxDTO, error) {
		room, err := s.optionalRoom(query.ColdRoomID)
		if err != nil {
			return nil, err
		}
		boxes, err := s.store.Boxes().List(ctx, domain.BoxFilter{ColdRoomID: room, InPallet: query.InPallet})
		if err != nil {
			return nil, err
		}
		return ToBoxDTOs(boxes), nil
	})
}

// ListPallets lists pallets with their display fields and box-row counts
func (s *ColdRoomQueryService) ListPallets(ctx context.Context, query ListPalletsQuery) ([]PalletDTO, error) {
	return run(ctx, s.runner, "pallets", query.ColdRoomID, func(ctx context.Context) ([]PalletDTO, error) {
		room, err := s.optionalRoom(query.ColdRoomID)
		if err != nil {
			return nil, err
		}
		pallets, err := s.store.Pallets().List(ctx, room)
		if err != nil {
			return nil, err
		}
		out := make([]PalletDTO, 0, len(pallets))
		for _, p := range pallets {
			boxes, err := s.store.Boxes().FindByPallet(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, ToPalletDTO(p, len(boxes)))
		}
		return out, nil
	})
}

// PalletBoxes lists the boxes of one pallet
func (s *ColdRoomQueryService) PalletBoxes(ctx context.Context, query PalletBoxesQuery) ([]BoxDTO, error) {
	return run(ctx, s.runner, "pallet-boxes", "", func(ctx context.Context) ([]BoxDTO, error) {
		if strings.TrimSpace(query.PalletID) == "" {
			return nil, sharedErrors.ErrValidation("palletId is required")
		}
		if _, err := s.store.Pallets().FindByID(ctx, query.PalletID); err != nil {
			return nil, err
		}
		boxes, err := s.store.Boxes().FindByPallet(ctx, query.PalletID)
		if err != nil {
			return nil, err
		}
		return ToBoxDTOs(boxes), nil
	})
}

// CheckExistingBoxes reports whether boxes were already loaded from a counting record
func (s *ColdRoomQueryService) CheckExistingBoxes(ctx context.Context, query CheckExistingBoxesQuery) (*ExistingBoxesDTO, error) {
	return run(ctx, s.runner, "check-existing-boxes", "", func(ctx context.Context) (*ExistingBoxesDTO, error) {
		if strings.TrimSpace(query.CountingRecordID) == "" {
			return nil, sharedErrors.ErrValidation("countingRecordId is required")
		}
		boxes, err := s.store.Boxes().List(ctx, domain.BoxFilter{CountingRecordID: query.CountingRecordID})
		if err != nil {
			return nil, err
		}
		out := &ExistingBoxesDTO{BoxCount: len(boxes), Exists: len(boxes) > 0}
		for _, b := range boxes {
			out.TotalQuantity += b.Quantity
		}
		return out, nil
	})
}

// RemainingBoxes lists cold-room-bound counting records with what is left to
// load. A record whose stored documents fail to decode is listed with empty
// counts and its decode issues instead of failing the listing.
func (s *ColdRoomQueryService) RemainingBoxes(ctx context.Context) ([]RemainingRecordDTO, error) {
	return run(ctx, s.runner, "remaining-boxes", "", func(ctx context.Context) ([]RemainingRecordDTO, error) {
		records, err := s.store.CountingRecords().ListForColdroom(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]RemainingRecordDTO, 0, len(records))
		for _, r := range records {
			for _, field := range r.DecodeIssues {
				s.metrics.RecordDecodeFailure(field)
				s.logger.Warn("Counting record document could not be decoded",
					"countingRecordId", r.ID,
					"field", field,
				)
			}
			out = append(out, ToRemainingRecordDTO(r))
		}
		return out, nil
	})
}

// GroupedBoxes aggregates available loose stock by group
func (s *ColdRoomQueryService) GroupedBoxes(ctx context.Context, query GroupedBoxesQuery) ([]GroupedBoxDTO, error) {
	return run(ctx, s.runner, "grouped-boxes", query.ColdRoomID, func(ctx context.Context) ([]GroupedBoxDTO, error) {
		room, err := s.optionalRoom(query.ColdRoomID)
		if err != nil {
			return nil, err
		}
		boxes, err := s.store.Boxes().List(ctx, domain.BoxFilter{ColdRoomID: room, AvailableOnly: true})
		if err != nil {
			return nil, err
		}

		groups := make(map[domain.BoxGroupKey]*GroupedBoxDTO)
		for _, b := range boxes {
			key := b.GroupKey()
			g, ok := groups[key]
			if !ok {
				g = &GroupedBoxDTO{
					Variety:         string(b.Variety),
					BoxType:         string(b.BoxType),
					Size:            b.Size,
					Grade:           string(b.Grade),
					ColdRoomID:      b.ColdRoomID,
					OldestCreatedAt: b.CreatedAt,
				}
				groups[key] = g
			}
			g.TotalQuantity += b.Quantity
			g.BoxCount++
			g.WeightKg += b.WeightKg()
			if b.CreatedAt.Before(g.OldestCreatedAt) {
				g.OldestCreatedAt = b.CreatedAt
			}
		}

		keys := make([]domain.BoxGroupKey, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		out := make([]GroupedBoxDTO, 0, len(keys))
		for _, k := range keys {
			out = append(out, *groups[k])
		}
		return out, nil
	})
}

// Stats computes per cold room totals concurrently
func (s *ColdRoomQueryService) Stats(ctx context.Context) ([]ColdRoomStatsDTO, error) {
	return run(ctx, s.runner, "stats", "", func(ctx context.Context) ([]ColdRoomStatsDTO, error) {
		rooms := s.catalog.Rooms()
		out := make([]ColdRoomStatsDTO, len(rooms))
		var mu sync.Mutex

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, room := range rooms {
			g.Go(func() error {
				stats, err := s.roomStats(ctx, room)
				if err != nil {
					return err
				}
				mu.Lock()
				out[i] = *stats
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *ColdRoomQueryService) roomStats(ctx context.Context, room domain.ColdRoom) (*ColdRoomStatsDTO, error) {
	boxes, err := s.store.Boxes().List(ctx, domain.BoxFilter{ColdRoomID: room.ID})
	if err != nil {
		return nil, err
	}
	pallets, err := s.store.Pallets().List(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.TemperatureLogs().Latest(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	stats := &ColdRoomStatsDTO{
		ColdRoomID: room.ID,
		Name:       room.Name,
		BoxRows:    len(boxes),
		Pallets:    len(pallets),
		ByVariety:  make(map[string]int),
	}
	for _, b := range boxes {
		stats.TotalBoxes += b.Quantity
		stats.TotalWeightKg += b.WeightKg()
		stats.ByVariety[string(b.Variety)] += b.Quantity
		if b.IsInPallet {
			stats.PalletizedBoxes += b.Quantity
		} else {
			stats.LooseBoxes += b.Quantity
		}
	}
	if latest != nil {
		dto := ToTemperatureLogDTO(latest)
		stats.LatestTemperature = &dto
	}
	return stats, nil
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// TemperatureLogs lists the latest temperature readings, newest first
func (s *ColdRoomQueryService) TemperatureLogs(ctx context.Context, query HistoryQuery) ([]TemperatureLogDTO, error) {
	return run(ctx, s.runner, "temperature-logs", query.ColdRoomID, func(ctx context.Context) ([]TemperatureLogDTO, error) {
		room, err := s.optionalRoom(query.ColdRoomID)
		if err != nil {
			return nil, err
		}
		logs, err := s.store.TemperatureLogs().List(ctx, room, historyLimit(query.Limit))
		if err != nil {
			return nil, err
		}
		out := make([]TemperatureLogDTO, 0, len(logs))
		for _, l := range logs {
			out = append(out, ToTemperatureLogDTO(l))
		}
		return out, nil
	})
}

// RepackingRecords lists the latest repacking audit records, newest first
func (s *ColdRoomQueryService) RepackingRecords(ctx context.Context, query HistoryQuery) ([]RepackingRecordDTO, error) {
	return run(ctx, s.runner, "repacking-records", query.ColdRoomID, func(ctx context.Context) ([]RepackingRecordDTO, error) {
		room, err := s.optionalRoom(query.ColdRoomID)
		if err != nil {
			return nil, err
		}
		records, err := s.store.RepackingRecords().List(ctx, room, historyLimit(query.Limit))
		if err != nil {
			return nil, err
		}
		out := make([]RepackingRecordDTO, 0, len(records))
		for _, r := range records {
			out = append(out, ToRepackingRecordDTO(r))
		}
		return out, nil
	})
}

// Ping checks the store for readiness probes
func (s *ColdRoomQueryService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.store.Ping(ctx)
}

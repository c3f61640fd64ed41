package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wms-platform/coldroom-service/internal/domain"
	sharedErrors "github.com/wms-platform/coldroom-service/pkg/errors"
	"github.com/wms-platform/coldroom-service/pkg/logging"
	"github.com/wms-platform/coldroom-service/pkg/metrics"
	"github.com/wms-platform/coldroom-service/pkg/resilience"
	"github.com/wms-platform/coldroom-service/pkg/tracing"
)

// GroupLocker serializes commands touching the same box groups or counting records
type GroupLocker interface {
	Acquire(ctx context.Context, keys ...string) (func(), error)
}

// Config holds the service's timing and default settings
type Config struct {
	// OperationTimeout bounds every command and query
	OperationTimeout time.Duration
	// LockWait bounds a single lock acquisition attempt
	LockWait time.Duration
	// LockRetry controls how often a contended acquisition is retried
	LockRetry *resilience.RetryConfig
	// DefaultBoxesPerPallet applies when neither the request nor the room sets one
	DefaultBoxesPerPallet int
}

// DefaultConfig returns the service defaults
func DefaultConfig() Config {
	return Config{
		OperationTimeout: 30 * time.Second,
		LockWait:         2 * time.Second,
		LockRetry: &resilience.RetryConfig{
			MaxAttempts:     3,
			InitialDelay:    50 * time.Millisecond,
			MaxDelay:        500 * time.Millisecond,
			BackoffFactor:   2.0,
			RetryableErrors: isLockContention,
		},
		DefaultBoxesPerPallet: domain.DefaultBoxesPerPallet,
	}
}

// Option customizes a service
type Option func(*options)

type options struct {
	now    func() time.Time
	tracer trace.Tracer
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTracer sets the tracer used for command spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		tracer: noop.NewTracerProvider().Tracer("coldroom-service"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// runner applies the timeout, span and performance log shared by every operation
type runner struct {
	tracer  trace.Tracer
	logger  *logging.Logger
	timeout time.Duration
}

func run[T any](ctx context.Context, r *runner, action, coldRoomID string, fn func(context.Context) (T, error)) (T, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	result, err := tracing.TracedOperation(ctx, r.tracer, "coldroom."+action, tracing.ColdRoomAttributes(action, coldRoomID), fn)
	r.logger.Performance(ctx, action, time.Since(start), err == nil, map[string]any{"coldRoomId": coldRoomID})
	if err != nil {
		appErr := toAppError(err)
		if appErr.HTTPStatus >= 500 {
			r.logger.WithContext(ctx).WithOperation(action).WithError(err).Error("Cold room operation failed", "code", appErr.Code)
		}
		var zero T
		return zero, appErr
	}
	return result, nil
}

// ColdRoomService handles the cold room's mutating use cases
type ColdRoomService struct {
	store   domain.Store
	locker  GroupLocker
	catalog *domain.Catalog
	metrics *metrics.Metrics
	logger  *logging.Logger
	config  Config
	now     func() time.Time
	runner  *runner
}

// NewColdRoomService creates a new ColdRoomService
func NewColdRoomService(
	store domain.Store,
	locker GroupLocker,
	catalog *domain.Catalog,
	m *metrics.Metrics,
	logger *logging.Logger,
	config Config,
	opts ...Option,
) *ColdRoomService {
	o := buildOptions(opts)
	if config.LockRetry == nil {
		config.LockRetry = DefaultConfig().LockRetry
	}
	if config.DefaultBoxesPerPallet <= 0 {
		config.DefaultBoxesPerPallet = domain.DefaultBoxesPerPallet
	}
	logger = logger.WithComponent("coldroom-service")
	return &ColdRoomService{
		store:   store,
		locker:  locker,
		catalog: catalog,
		metrics: m,
		logger:  logger,
		config:  config,
		now:     o.now,
		runner:  &runner{tracer: o.tracer, logger: logger, timeout: config.OperationTimeout},
	}
}

// withLocks runs fn while holding the given keys. Contended acquisitions are
// retried with backoff, each attempt bounded by LockWait.
func (s *ColdRoomService) withLocks(ctx context.Context, operation string, keys []string, fn func(context.Context) error) error {
	start := time.Now()
	var unlock func()
	err := resilience.Retry(ctx, s.config.LockRetry, func(ctx context.Context) error {
		attemptCtx := ctx
		if s.config.LockWait > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.config.LockWait)
			defer cancel()
		}
		release, err := s.locker.Acquire(attemptCtx, keys...)
		if err != nil {
			return err
		}
		unlock = release
		return nil
	})
	s.metrics.RecordGroupLockWait(operation, err == nil, time.Since(start))
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// LoadBoxes places intake boxes into cold rooms and advances the counting
// records they came from. Boxes are created independently; the command fails
// only when validation fails or no box at all could be created.
func (s *ColdRoomService) LoadBoxes(ctx context.Context, cmd LoadBoxesCommand) (*LoadBoxesResult, error) {
	room := ""
	if len(cmd.Boxes) > 0 {
		room = cmd.Boxes[0].ColdRoomID
	}
	return run(ctx, s.runner, "load-boxes", room, func(ctx context.Context) (*LoadBoxesResult, error) {
		return s.loadBoxes(ctx, cmd)
	})
}

func (s *ColdRoomService) loadBoxes(ctx context.Context, cmd LoadBoxesCommand) (*LoadBoxesResult, error) {
	if len(cmd.Boxes) == 0 {
		return nil, sharedErrors.ErrValidation("at least one box is required")
	}
	now := s.now()

	boxes := make([]*domain.Box, 0, len(cmd.Boxes))
	for i, in := range cmd.Boxes {
		if _, err := s.catalog.Require(in.ColdRoomID); err != nil {
			return nil, fmt.Errorf("boxes[%d]: %w", i, err)
		}
		origin := domain.BoxOrigin{
			SupplierName:     in.SupplierName,
			Region:           in.Region,
			CountingRecordID: domain.StringPtr(in.CountingRecordID),
		}
		box, err := domain.NewBox(domain.NewBoxGroupKey(in.Spec(), in.ColdRoomID), in.Quantity, origin, now)
		if err != nil {
			return nil, fmt.Errorf("boxes[%d]: %w", i, err)
		}
		boxes = append(boxes, box)
	}

	result := &LoadBoxesResult{BoxIDs: []string{}}
	byRoom := make(map[string]*domain.BoxesLoadedEvent)
	byRecord := make(map[string]domain.Quantities)
	var lastErr error
	for _, box := range boxes {
		if err := s.store.Boxes().Create(ctx, box); err != nil {
			s.logger.WithError(err).Warn("Failed to load box", "coldRoomId", box.ColdRoomID, "group", box.BoxSpec.String(), "quantity", box.Quantity)
			result.FailedBoxes++
			lastErr = err
			continue
		}
		result.CreatedBoxes++
		result.TotalQuantity += box.Quantity
		result.BoxIDs = append(result.BoxIDs, box.ID)
		s.metrics.RecordBoxesLoaded(box.ColdRoomID, string(box.Variety), string(box.BoxType), box.Quantity)

		ev, ok := byRoom[box.ColdRoomID]
		if !ok {
			ev = &domain.BoxesLoadedEvent{ColdRoomID: box.ColdRoomID, ByGroup: domain.Quantities{}, LoadedAt: now}
			byRoom[box.ColdRoomID] = ev
		}
		ev.BoxIDs = append(ev.BoxIDs, box.ID)
		ev.TotalQuantity += box.Quantity
		ev.ByGroup.Add(box.BoxSpec, box.Quantity)

		if box.CountingRecordID != nil {
			q, ok := byRecord[*box.CountingRecordID]
			if !ok {
				q = domain.Quantities{}
				byRecord[*box.CountingRecordID] = q
			}
			q.Add(box.BoxSpec, box.Quantity)
		}
	}
	if result.CreatedBoxes == 0 {
		return nil, fmt.Errorf("no box could be loaded: %w", lastErr)
	}

	for _, room := range sortedKeys(byRoom) {
		if err := s.store.Events().Record(ctx, byRoom[room]); err != nil {
			s.logger.WithError(err).Warn("Failed to record boxes loaded event", "coldRoomId", room)
		}
	}

	loadedTo := cmd.Boxes[0].ColdRoomID
	for _, id := range sortedKeys(byRecord) {
		if err := s.applyLoadedBoxes(ctx, id, byRecord[id], loadedTo, now); err != nil {
			s.logger.WithError(err).Warn("Failed to update counting record", "countingRecordId", id)
			result.FailedRecords++
			continue
		}
		result.UpdatedRecords++
	}

	s.logger.Audit(ctx, "load-boxes", "box", loadedTo, "", map[string]any{
		"createdBoxes":  result.CreatedBoxes,
		"failedBoxes":   result.FailedBoxes,
		"totalQuantity": result.TotalQuantity,
	})
	return result, nil
}

// applyLoadedBoxes advances one counting record under its own lock
func (s *ColdRoomService) applyLoadedBoxes(ctx context.Context, recordID string, deltas domain.Quantities, coldRoomID string, now time.Time) error {
	return s.withLocks(ctx, "load-boxes", []string{domain.CountingRecordLockKey(recordID)}, func(ctx context.Context) error {
		return s.store.WithinTransaction(ctx, func(ctx context.Context, tx domain.Store) error {
			record, err := tx.CountingRecords().FindByID(ctx, recordID)
			if err != nil {
				return err
			}
			// rewriting a record whose counts failed to decode would replace them with ours
			for _, issue := range record.DecodeIssues {
				if issue == domain.DocCountingData || issue == domain.DocBoxesLoadedToColdroom {
					return fmt.Errorf("%w: %s", domain.ErrMalformedDocument, issue)
				}
			}

			if over := record.ApplyLoadedBoxes(deltas, coldRoomID, now); len(over) > 0 {
				specs := make([]string, 0, len(over))
				for _, spec := range over {
					specs = append(specs, spec.String())
				}
				s.logger.Warn("Counting record loaded beyond declared counts",
					"countingRecordId", recordID,
					"groups", strings.Join(specs, ","),
				)
			}
			if err := tx.CountingRecords().Update(ctx, record); err != nil {
				return err
			}
			return tx.Events().Record(ctx, &domain.CountingRecordLoadedEvent{
				CountingRecordID: record.ID,
				ColdRoomID:       coldRoomID,
				Loaded:           deltas,
				TotalBoxesLoaded: record.TotalBoxesLoaded,
				Progress:         record.LoadingProgressPercentage,
				Status:           record.Status,
				UpdatedAt:        now,
			})
		})
	})
}

// CreateManualPallet assembles a named pallet from loose stock, oldest boxes
// first, creating shortfall boxes for anything that could not be found.
func (s *ColdRoomService) CreateManualPallet(ctx context.Context, cmd CreateManualPalletCommand) (*CreatePalletResult, error) {
	return run(ctx, s.runner, "create-manual-pallet", cmd.ColdRoomID, func(ctx context.Context) (*CreatePalletResult, error) {
		return s.createManualPallet(ctx, cmd)
	})
}

func (s *ColdRoomService) createManualPallet(ctx context.Context, cmd CreateManualPalletCommand) (*CreatePalletResult, error) {
	room, err := s.catalog.Require(cmd.ColdRoomID)
	if err != nil {
		return nil, err
	}
	groups, err := toGroupRequests(cmd.Groups)
	if err != nil {
		return nil, err
	}
	boxesPerPallet := cmd.BoxesPerPallet
	if boxesPerPallet <= 0 {
		boxesPerPallet = room.BoxesPerPallet
	}
	if boxesPerPallet <= 0 {
		boxesPerPallet = s.config.DefaultBoxesPerPallet
	}
	now := s.now()
	pallet, err := domain.NewManualPallet(cmd.PalletName, room.ID, groups, boxesPerPallet, cmd.CreatedBy, now)
	if err != nil {
		return nil, err
	}

	var result *CreatePalletResult
	err = s.withLocks(ctx, "create-manual-pallet", groupLockKeys(room.ID, groups), func(ctx context.Context) error {
		return s.store.WithinTransaction(ctx, func(ctx context.Context, tx domain.Store) error {
			dup, err := findDuplicate(ctx, tx, room.ID, groups)
			if err != nil {
				return err
			}
			if dup != nil {
				return &domain.DuplicatePalletError{PalletID: dup.PalletID, PalletName: dup.PalletName}
			}

			res := &CreatePalletResult{BoxIDs: []string{}}
			var steps []domain.AssemblyStep
			for _, g := range groups {
				if g.Quantity <= 0 {
					continue
				}
				available, err := tx.Boxes().FindAvailable(ctx, domain.NewBoxGroupKey(g.BoxSpec, room.ID))
				if err != nil {
					return err
				}
				groupSteps, err := domain.AssembleGroup(pallet.ID, room.ID, g, available, now)
				if err != nil {
					return err
				}
				if err := applyAssemblySteps(ctx, tx, groupSteps, res); err != nil {
					return err
				}
				steps = append(steps, groupSteps...)
			}

			if err := tx.Pallets().Create(ctx, pallet); err != nil {
				return err
			}
			res.Pallet = ToPalletDTO(pallet, len(res.BoxIDs))
			res.ShortfallBoxes = domain.ShortfallQuantity(steps)
			result = res

			return tx.Events().Record(ctx, &domain.PalletAssembledEvent{
				PalletID:       pallet.ID,
				PalletName:     pallet.PalletName,
				ColdRoomID:     room.ID,
				TotalBoxes:     pallet.TotalBoxes,
				TotalWeightKg:  pallet.TotalWeightKg,
				Composition:    domain.RequestedComposition(groups),
				ShortfallBoxes: res.ShortfallBoxes,
				CreatedBy:      pallet.CreatedBy,
				AssembledAt:    now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPalletAssembled(room.ID)
	if result.ShortfallBoxes > 0 {
		s.logger.Warn("Pallet assembled with shortfall boxes",
			"palletId", pallet.ID,
			"coldRoomId", room.ID,
			"shortfallBoxes", result.ShortfallBoxes,
		)
	}
	s.logger.Audit(ctx, "create-manual-pallet", "pallet", pallet.ID, cmd.CreatedBy, map[string]any{
		"palletName": pallet.PalletName,
		"coldRoomId": room.ID,
		"totalBoxes": pallet.TotalBoxes,
	})
	return result, nil
}

func applyAssemblySteps(ctx context.Context, tx domain.Store, steps []domain.AssemblyStep, res *CreatePalletResult) error {
	for _, step := range steps {
		switch step.Kind {
		case domain.StepAssign:
			if err := tx.Boxes().Update(ctx, step.Source); err != nil {
				return err
			}
			res.AssignedBoxes++
			res.BoxIDs = append(res.BoxIDs, step.Source.ID)
		case domain.StepSplit:
			if err := tx.Boxes().Update(ctx, step.Source); err != nil {
				return err
			}
			if err := tx.Boxes().Create(ctx, step.Created); err != nil {
				return err
			}
			res.SplitBoxes++
			res.BoxIDs = append(res.BoxIDs, step.Created.ID)
		case domain.StepShortfall:
			if err := tx.Boxes().Create(ctx, step.Created); err != nil {
				return err
			}
			res.BoxIDs = append(res.BoxIDs, step.Created.ID)
		}
	}
	return nil
}

// CheckExistingPallet reports whether a manual pallet with the requested composition already exists
func (s *ColdRoomService) CheckExistingPallet(ctx context.Context, query CheckExistingPalletQuery) (*ExistingPalletDTO, error) {
	return run(ctx, s.runner, "check-existing-pallet", query.ColdRoomID, func(ctx context.Context) (*ExistingPalletDTO, error) {
		room, err := s.catalog.Require(query.ColdRoomID)
		if err != nil {
			return nil, err
		}
		groups, err := toGroupRequests(query.Groups)
		if err != nil {
			return nil, err
		}
		dup, err := findDuplicate(ctx, s.store, room.ID, groups)
		if err != nil {
			return nil, err
		}
		if dup == nil {
			return &ExistingPalletDTO{}, nil
		}
		return &ExistingPalletDTO{Exists: true, PalletID: dup.PalletID, PalletName: dup.PalletName}, nil
	})
}

func findDuplicate(ctx context.Context, st domain.Store, coldRoomID string, groups []domain.GroupRequest) (*domain.PalletComposition, error) {
	pallets, err := st.Pallets().FindManualByColdRoom(ctx, coldRoomID)
	if err != nil {
		return nil, err
	}
	candidates := make([]domain.PalletComposition, 0, len(pallets))
	for _, p := range pallets {
		boxes, err := st.Boxes().FindByPallet(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, domain.ComposePallet(p, boxes))
	}
	return domain.FindDuplicate(groups, candidates), nil
}

// DissolvePallet returns every box of a pallet to the loose pool and deletes the pallet
func (s *ColdRoomService) DissolvePallet(ctx context.Context, cmd DissolvePalletCommand) (*DissolvePalletResult, error) {
	return run(ctx, s.runner, "dissolve-pallet", "", func(ctx context.Context) (*DissolvePalletResult, error) {
		return s.dissolvePallet(ctx, cmd)
	})
}

func (s *ColdRoomService) dissolvePallet(ctx context.Context, cmd DissolvePalletCommand) (*DissolvePalletResult, error) {
	if strings.TrimSpace(cmd.PalletID) == "" {
		return nil, sharedErrors.ErrValidation("palletId is required")
	}
	pallet, err := s.store.Pallets().FindByID(ctx, cmd.PalletID)
	if err != nil {
		return nil, err
	}
	boxes, err := s.store.Boxes().FindByPallet(ctx, pallet.ID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(boxes))
	for _, b := range boxes {
		keys = append(keys, b.GroupKey().LockKey())
	}

	now := s.now()
	var released int64
	err = s.withLocks(ctx, "dissolve-pallet", keys, func(ctx context.Context) error {
		return s.store.WithinTransaction(ctx, func(ctx context.Context, tx domain.Store) error {
			if _, err := tx.Pallets().FindByID(ctx, pallet.ID); err != nil {
				return err
			}
			n, err := tx.Boxes().ReleasePallet(ctx, pallet.ID, now)
			if err != nil {
				return err
			}
			if err := tx.Pallets().Delete(ctx, pallet.ID); err != nil {
				return err
			}
			released = n
			return tx.Events().Record(ctx, &domain.PalletDissolvedEvent{
				PalletID:      pallet.ID,
				PalletName:    pallet.PalletName,
				ColdRoomID:    pallet.ColdRoomID,
				BoxesReturned: int(n),
				DissolvedAt:   now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPalletDissolved(pallet.ColdRoomID)
	s.logger.Audit(ctx, "dissolve-pallet", "pallet", pallet.ID, cmd.DissolvedBy, map[string]any{
		"palletName":    pallet.PalletName,
		"boxesReturned": released,
	})
	return &DissolvePalletResult{PalletID: pallet.ID, PalletName: pallet.PalletName, BoxesReturned: released}, nil
}

// RecordRepacking writes the repacking audit record, then removes and returns
// stock. A store failure stops the remaining adjustments; the audit record and
// any adjustment already made are kept.
func (s *ColdRoomService) RecordRepacking(ctx context.Context, cmd RecordRepackingCommand) (*RepackingResult, error) {
	return run(ctx, s.runner, "record-repacking", cmd.ColdRoomID, func(ctx context.Context) (*RepackingResult, error) {
		return s.recordRepacking(ctx, cmd)
	})
}

func (s *ColdRoomService) recordRepacking(ctx context.Context, cmd RecordRepackingCommand) (*RepackingResult, error) {
	room, err := s.catalog.Require(cmd.ColdRoomID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	record, err := domain.NewRepackingRecord(room.ID, toRepackEntries(cmd.RemovedBoxes), toRepackEntries(cmd.ReturnedBoxes),
		cmd.RejectedBoxes, cmd.Notes, cmd.ProcessedBy, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.RepackingRecords().Create(ctx, record); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(record.RemovedBoxes)+len(record.ReturnedBoxes))
	for _, e := range append(append([]domain.RepackEntry{}, record.RemovedBoxes...), record.ReturnedBoxes...) {
		keys = append(keys, domain.NewBoxGroupKey(e.BoxSpec, room.ID).LockKey())
	}

	result := &RepackingResult{Record: ToRepackingRecordDTO(record)}
	unremoved := domain.Quantities{}
	err = s.withLocks(ctx, "record-repacking", keys, func(ctx context.Context) error {
		for _, e := range record.RemovedBoxes {
			left, err := s.removeForRepacking(ctx, domain.NewBoxGroupKey(e.BoxSpec, room.ID), e.Quantity, now, result)
			if err != nil {
				return err
			}
			if left > 0 {
				unremoved.Add(e.BoxSpec, left)
			}
		}
		for _, e := range record.ReturnedBoxes {
			if err := s.returnFromRepacking(ctx, domain.NewBoxGroupKey(e.BoxSpec, room.ID), e.Quantity, now, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repacking %s: %w", record.ID, err)
	}

	for _, spec := range unremoved.Specs() {
		result.Unremoved = append(result.Unremoved, toRepackEntryDTO(spec, unremoved[spec]))
		s.logger.Warn("Not enough loose stock to remove for repacking",
			"repackingRecordId", record.ID,
			"coldRoomId", room.ID,
			"group", spec.String(),
			"unremoved", unremoved[spec],
		)
	}

	event := &domain.RepackingRecordedEvent{
		RecordID:   record.ID,
		ColdRoomID: room.ID,
		Removed:    entriesToQuantities(record.RemovedBoxes),
		Returned:   entriesToQuantities(record.ReturnedBoxes),
		Rejected:   record.RejectedBoxes,
		RecordedAt: now,
	}
	if len(unremoved) > 0 {
		event.Unremoved = unremoved
	}
	if err := s.store.Events().Record(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to record repacking event", "repackingRecordId", record.ID)
	}

	s.metrics.RecordRepackedBoxes(room.ID, "removed", result.RemovedQuantity)
	s.metrics.RecordRepackedBoxes(room.ID, "returned", result.ReturnedQuantity)
	s.logger.Audit(ctx, "record-repacking", "repacking-record", record.ID, cmd.ProcessedBy, map[string]any{
		"coldRoomId":       room.ID,
		"removedQuantity":  result.RemovedQuantity,
		"returnedQuantity": result.ReturnedQuantity,
		"rejectedBoxes":    record.RejectedBoxes,
	})
	return result, nil
}

func (s *ColdRoomService) removeForRepacking(ctx context.Context, key domain.BoxGroupKey, quantity int, now time.Time, result *RepackingResult) (int, error) {
	candidates, err := s.store.Boxes().FindRemovalCandidates(ctx, key, quantity)
	if err != nil {
		return 0, err
	}
	steps, unremoved, err := domain.PlanRemoval(candidates, quantity, now)
	if err != nil {
		return 0, err
	}
	for _, step := range steps {
		if step.Exhausted {
			if err := s.store.Boxes().Delete(ctx, step.Box.ID); err != nil {
				return 0, err
			}
			result.DeletedBoxes++
		} else if err := s.store.Boxes().Update(ctx, step.Box); err != nil {
			return 0, err
		}
		result.RemovedQuantity += step.Taken
	}
	return unremoved, nil
}

func (s *ColdRoomService) returnFromRepacking(ctx context.Context, key domain.BoxGroupKey, quantity int, now time.Time, result *RepackingResult) error {
	target, err := s.store.Boxes().FindMergeTarget(ctx, key)
	if err != nil {
		return err
	}
	if target != nil {
		if err := target.Merge(quantity, now); err != nil {
			return err
		}
		if err := s.store.Boxes().Update(ctx, target); err != nil {
			return err
		}
		result.MergedBoxes++
		result.ReturnedQuantity += quantity
		return nil
	}

	box, err := domain.NewBox(key, quantity, domain.BoxOrigin{SupplierName: domain.RepackingReturnSupplier}, now)
	if err != nil {
		return err
	}
	if err := s.store.Boxes().Create(ctx, box); err != nil {
		return err
	}
	result.CreatedBoxes++
	result.ReturnedQuantity += quantity
	return nil
}

// RecordTemperature logs a temperature reading and flags excursions from the room's bounds
func (s *ColdRoomService) RecordTemperature(ctx context.Context, cmd RecordTemperatureCommand) (*TemperatureLogDTO, error) {
	return run(ctx, s.runner, "record-temperature", cmd.ColdRoomID, func(ctx context.Context) (*TemperatureLogDTO, error) {
		return s.recordTemperature(ctx, cmd)
	})
}

func (s *ColdRoomService) recordTemperature(ctx context.Context, cmd RecordTemperatureCommand) (*TemperatureLogDTO, error) {
	room, err := s.catalog.Require(cmd.ColdRoomID)
	if err != nil {
		return nil, err
	}
	temperature, err := decimal.NewFromString(strings.TrimSpace(cmd.Temperature))
	if err != nil {
		return nil, fmt.Errorf("%w: temperature %q", domain.ErrInvalidReading, cmd.Temperature)
	}
	var humidity *decimal.Decimal
	if h := strings.TrimSpace(cmd.Humidity); h != "" {
		v, err := decimal.NewFromString(h)
		if err != nil {
			return nil, fmt.Errorf("%w: humidity %q", domain.ErrInvalidReading, cmd.Humidity)
		}
		humidity = &v
	}

	now := s.now()
	log, err := domain.NewTemperatureLog(room, temperature, humidity, cmd.RecordedBy, now)
	if err != nil {
		return nil, err
	}
	err = s.store.WithinTransaction(ctx, func(ctx context.Context, tx domain.Store) error {
		if err := tx.TemperatureLogs().Create(ctx, log); err != nil {
			return err
		}
		recorded := &domain.TemperatureRecordedEvent{
			LogID:       log.ID,
			ColdRoomID:  room.ID,
			Temperature: log.TemperatureC.String(),
			OutOfRange:  log.OutOfRange,
			RecordedAt:  now,
		}
		if humidity != nil {
			recorded.Humidity = humidity.String()
		}
		events := []domain.DomainEvent{recorded}
		if log.OutOfRange {
			excursion := &domain.TemperatureExcursionEvent{
				LogID:       log.ID,
				ColdRoomID:  room.ID,
				Temperature: log.TemperatureC.String(),
				RecordedAt:  now,
			}
			if room.MinTempC != nil {
				excursion.MinTempC = room.MinTempC.String()
			}
			if room.MaxTempC != nil {
				excursion.MaxTempC = room.MaxTempC.String()
			}
			events = append(events, excursion)
		}
		return tx.Events().Record(ctx, events...)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SetColdRoomTemperature(room.ID, log.TemperatureC.InexactFloat64())
	if log.OutOfRange {
		s.metrics.RecordTemperatureExcursion(room.ID)
		s.logger.WithColdRoom(room.ID).Warn("Temperature outside cold room bounds",
			"temperature", log.TemperatureC.String(),
			"logId", log.ID,
		)
	}
	dto := ToTemperatureLogDTO(log)
	return &dto, nil
}

func toGroupRequests(inputs []PalletGroupInput) ([]domain.GroupRequest, error) {
	groups := make([]domain.GroupRequest, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity < 0 {
			return nil, fmt.Errorf("groups[%d]: %w", i, domain.ErrInvalidQuantity)
		}
		spec := in.Spec()
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("groups[%d]: %w", i, err)
		}
		groups = append(groups, domain.GroupRequest{
			BoxSpec:  spec,
			Quantity: in.Quantity,
			Origin: domain.BoxOrigin{
				SupplierName:     in.SupplierName,
				Region:           in.Region,
				CountingRecordID: domain.StringPtr(in.CountingRecordID),
			},
		})
	}
	return groups, nil
}

func toRepackEntries(inputs []RepackInput) []domain.RepackEntry {
	entries := make([]domain.RepackEntry, 0, len(inputs))
	for _, in := range inputs {
		entries = append(entries, domain.RepackEntry{BoxSpec: in.Spec(), Quantity: in.Quantity})
	}
	return entries
}

func entriesToQuantities(entries []domain.RepackEntry) domain.Quantities {
	q := domain.Quantities{}
	for _, e := range entries {
		q.Add(e.BoxSpec, e.Quantity)
	}
	return q
}

func groupLockKeys(coldRoomID string, groups []domain.GroupRequest) []string {
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.Quantity > 0 {
			keys = append(keys, domain.NewBoxGroupKey(g.BoxSpec, coldRoomID).LockKey())
		}
	}
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

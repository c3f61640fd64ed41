package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

const fifoOrder = "created_at ASC, id ASC"

type boxRepository struct{ s *Store }

func (r boxRepository) group(ctx context.Context, key domain.BoxGroupKey) *gorm.DB {
	return r.s.conn(ctx).
		Where("cold_room_id = ? AND variety = ? AND box_type = ? AND size = ? AND grade = ?",
			key.ColdRoomID, string(key.Variety), string(key.BoxType), key.Size, string(key.Grade))
}

func rowsToBoxes(rows []boxRow) []*domain.Box {
	out := make([]*domain.Box, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

func (r boxRepository) Create(ctx context.Context, box *domain.Box) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "boxes", "create", start, err) }()

	if err = r.s.conn(ctx).Create(toBoxRow(box)).Error; err != nil {
		return fmt.Errorf("failed to insert box: %w", err)
	}
	return nil
}

func (r boxRepository) Update(ctx context.Context, box *domain.Box) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "boxes", "update", start, err) }()

	res := r.s.conn(ctx).Model(&boxRow{}).Where("id = ?", box.ID).Select("*").Omit("id").Updates(toBoxRow(box))
	if res.Error != nil {
		return fmt.Errorf("failed to update box: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrBoxNotFound
	}
	return nil
}

func (r boxRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "boxes", "delete", start, err) }()

	res := r.s.conn(ctx).Where("id = ?", id).Delete(&boxRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete box: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrBoxNotFound
	}
	return nil
}

func (r boxRepository) FindByID(ctx context.Context, id string) (*domain.Box, error) {
	var row boxRow
	err := r.s.conn(ctx).Where("id = ?", id).Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrBoxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find box: %w", err)
	}
	return row.toDomain(), nil
}

func (r boxRepository) FindAvailable(ctx context.Context, key domain.BoxGroupKey) (boxes []*domain.Box, err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "boxes", "find-available", start, err) }()

	q := r.group(ctx, key).
		Where("is_in_pallet = ? AND quantity > 0 AND loading_sheet_id IS NULL", false).
		Order(fifoOrder)
	if r.s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []boxRow
	if err = q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find available boxes: %w", err)
	}
	return rowsToBoxes(rows), nil
}

func (r boxRepository) FindRemovalCandidates(ctx context.Context, key domain.BoxGroupKey, minQuantity int) ([]*domain.Box, error) {
	q := r.group(ctx, key).
		Where("is_in_pallet = ? AND quantity > 0 AND quantity >= ?", false, minQuantity).
		Order(fifoOrder)
	if r.s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []boxRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find removal candidates: %w", err)
	}
	return rowsToBoxes(rows), nil
}

func (r boxRepository) FindMergeTarget(ctx context.Context, key domain.BoxGroupKey) (*domain.Box, error) {
	q := r.group(ctx, key).
		Where("is_in_pallet = ? AND loading_sheet_id IS NULL", false).
		Order(fifoOrder)
	if r.s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []boxRow
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find merge target: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

func (r boxRepository) FindByPallet(ctx context.Context, palletID string) ([]*domain.Box, error) {
	var rows []boxRow
	if err := r.s.conn(ctx).Where("pallet_id = ?", palletID).Order(fifoOrder).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find pallet boxes: %w", err)
	}
	return rowsToBoxes(rows), nil
}

func (r boxRepository) ReleasePallet(ctx context.Context, palletID string, now time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "boxes", "release-pallet", start, err) }()

	res := r.s.conn(ctx).Model(&boxRow{}).
		Where("pallet_id = ?", palletID).
		Updates(map[string]any{
			"pallet_id":              nil,
			"is_in_pallet":           false,
			"converted_to_pallet_at": nil,
			"updated_at":             now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to release pallet boxes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r boxRepository) List(ctx context.Context, f domain.BoxFilter) ([]*domain.Box, error) {
	q := r.s.conn(ctx).Model(&boxRow{})
	if f.ColdRoomID != "" {
		q = q.Where("cold_room_id = ?", f.ColdRoomID)
	}
	if f.PalletID != "" {
		q = q.Where("pallet_id = ?", f.PalletID)
	}
	if f.CountingRecordID != "" {
		q = q.Where("counting_record_id = ?", f.CountingRecordID)
	}
	if f.InPallet != nil {
		q = q.Where("is_in_pallet = ?", *f.InPallet)
	}
	if f.AvailableOnly {
		q = q.Where("is_in_pallet = ? AND quantity > 0 AND loading_sheet_id IS NULL", false)
	}
	var rows []boxRow
	if err := q.Order(fifoOrder).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list boxes: %w", err)
	}
	return rowsToBoxes(rows), nil
}

type palletRepository struct{ s *Store }

func (r palletRepository) Create(ctx context.Context, pallet *domain.Pallet) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "pallets", "create", start, err) }()

	if err = r.s.conn(ctx).Create(toPalletRow(pallet)).Error; err != nil {
		return fmt.Errorf("failed to insert pallet: %w", err)
	}
	return nil
}

func (r palletRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "pallets", "delete", start, err) }()

	res := r.s.conn(ctx).Where("id = ?", id).Delete(&palletRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete pallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrPalletNotFound
	}
	return nil
}

func (r palletRepository) FindByID(ctx context.Context, id string) (*domain.Pallet, error) {
	var row palletRow
	err := r.s.conn(ctx).Where("id = ?", id).Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrPalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pallet: %w", err)
	}
	return row.toDomain(), nil
}

func (r palletRepository) find(q *gorm.DB) ([]*domain.Pallet, error) {
	var rows []palletRow
	if err := q.Order(fifoOrder).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Pallet, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (r palletRepository) FindManualByColdRoom(ctx context.Context, coldRoomID string) ([]*domain.Pallet, error) {
	pallets, err := r.find(r.s.conn(ctx).Where("cold_room_id = ? AND is_manual = ?", coldRoomID, true))
	if err != nil {
		return nil, fmt.Errorf("failed to find manual pallets: %w", err)
	}
	return pallets, nil
}

func (r palletRepository) List(ctx context.Context, coldRoomID string) ([]*domain.Pallet, error) {
	q := r.s.conn(ctx)
	if coldRoomID != "" {
		q = q.Where("cold_room_id = ?", coldRoomID)
	}
	pallets, err := r.find(q)
	if err != nil {
		return nil, fmt.Errorf("failed to list pallets: %w", err)
	}
	return pallets, nil
}

type countingRecordRepository struct{ s *Store }

func (r countingRecordRepository) Create(ctx context.Context, record *domain.CountingRecord) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "counting_records", "create", start, err) }()

	row, err := toCountingRecordRow(record)
	if err != nil {
		return err
	}
	if err = r.s.conn(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert counting record: %w", err)
	}
	return nil
}

func (r countingRecordRepository) Update(ctx context.Context, record *domain.CountingRecord) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "counting_records", "update", start, err) }()

	row, err := toCountingRecordRow(record)
	if err != nil {
		return err
	}
	res := r.s.conn(ctx).Model(&countingRecordRow{}).Where("id = ?", record.ID).Select("*").Omit("id").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("failed to update counting record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrCountingRecordNotFound
	}
	return nil
}

func (r countingRecordRepository) FindByID(ctx context.Context, id string) (*domain.CountingRecord, error) {
	q := r.s.conn(ctx).Where("id = ?", id)
	if r.s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row countingRecordRow
	err := q.Take(&row).Error
	if isNotFound(err) {
		return nil, domain.ErrCountingRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find counting record: %w", err)
	}
	return row.toDomain(), nil
}

func (r countingRecordRepository) ListForColdroom(ctx context.Context) ([]*domain.CountingRecord, error) {
	var rows []countingRecordRow
	err := r.s.conn(ctx).Where("for_coldroom = ?", true).Order("submitted_at DESC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list counting records: %w", err)
	}
	out := make([]*domain.CountingRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

type temperatureLogRepository struct{ s *Store }

func (r temperatureLogRepository) Create(ctx context.Context, log *domain.TemperatureLog) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "temperature_logs", "create", start, err) }()

	if err = r.s.conn(ctx).Create(toTemperatureLogRow(log)).Error; err != nil {
		return fmt.Errorf("failed to insert temperature log: %w", err)
	}
	return nil
}

func (r temperatureLogRepository) List(ctx context.Context, coldRoomID string, limit int) ([]*domain.TemperatureLog, error) {
	q := r.s.conn(ctx).Order("recorded_at DESC, id DESC")
	if coldRoomID != "" {
		q = q.Where("cold_room_id = ?", coldRoomID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []temperatureLogRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list temperature logs: %w", err)
	}
	out := make([]*domain.TemperatureLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (r temperatureLogRepository) Latest(ctx context.Context, coldRoomID string) (*domain.TemperatureLog, error) {
	logs, err := r.List(ctx, coldRoomID, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

type repackingRecordRepository struct{ s *Store }

func (r repackingRecordRepository) Create(ctx context.Context, record *domain.RepackingRecord) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, "repacking_records", "create", start, err) }()

	removed, err := domain.EncodeEntries(record.RemovedBoxes)
	if err != nil {
		return err
	}
	returned, err := domain.EncodeEntries(record.ReturnedBoxes)
	if err != nil {
		return err
	}
	row := &repackingRecordRow{
		ID:            record.ID,
		ColdRoomID:    record.ColdRoomID,
		RemovedBoxes:  removed,
		ReturnedBoxes: returned,
		RejectedBoxes: record.RejectedBoxes,
		Notes:         record.Notes,
		ProcessedBy:   record.ProcessedBy,
		Timestamp:     record.Timestamp,
	}
	if err = r.s.conn(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert repacking record: %w", err)
	}
	return nil
}

func (r repackingRecordRepository) List(ctx context.Context, coldRoomID string, limit int) ([]*domain.RepackingRecord, error) {
	q := r.s.conn(ctx).Order("processed_at DESC, id DESC")
	if coldRoomID != "" {
		q = q.Where("cold_room_id = ?", coldRoomID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []repackingRecordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list repacking records: %w", err)
	}
	out := make([]*domain.RepackingRecord, 0, len(rows))
	for i := range rows {
		out = append(out, r.toDomain(ctx, &rows[i]))
	}
	return out, nil
}

func (r repackingRecordRepository) toDomain(ctx context.Context, row *repackingRecordRow) *domain.RepackingRecord {
	rec := &domain.RepackingRecord{
		ID:            row.ID,
		ColdRoomID:    row.ColdRoomID,
		RejectedBoxes: row.RejectedBoxes,
		Notes:         row.Notes,
		ProcessedBy:   row.ProcessedBy,
		Timestamp:     row.Timestamp,
	}
	var err error
	if rec.RemovedBoxes, err = domain.DecodeEntries(row.RemovedBoxes); err != nil {
		r.s.logger.WithContext(ctx).WithError(err).Warn("Undecodable removed boxes on repacking record", "recordId", row.ID)
	}
	if rec.ReturnedBoxes, err = domain.DecodeEntries(row.ReturnedBoxes); err != nil {
		r.s.logger.WithContext(ctx).WithError(err).Warn("Undecodable returned boxes on repacking record", "recordId", row.ID)
	}
	return rec
}

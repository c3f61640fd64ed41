package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

var fifoSort = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

type boxRepository struct{ s *Store }

func groupFilter(key domain.BoxGroupKey) bson.M {
	return bson.M{
		"coldRoomId": key.ColdRoomID,
		"variety":    key.Variety,
		"boxType":    key.BoxType,
		"size":       key.Size,
		"grade":      key.Grade,
	}
}

func (r boxRepository) Create(ctx context.Context, box *domain.Box) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, BoxesCollection, "create", start, err) }()

	if _, err = r.s.boxes.InsertOne(ctx, box); err != nil {
		return fmt.Errorf("failed to insert box: %w", err)
	}
	return nil
}

func (r boxRepository) Update(ctx context.Context, box *domain.Box) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, BoxesCollection, "update", start, err) }()

	res, err := r.s.boxes.ReplaceOne(ctx, bson.M{"_id": box.ID}, box)
	if err != nil {
		return fmt.Errorf("failed to update box: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBoxNotFound
	}
	return nil
}

func (r boxRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, BoxesCollection, "delete", start, err) }()

	res, err := r.s.boxes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete box: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrBoxNotFound
	}
	return nil
}

func (r boxRepository) FindByID(ctx context.Context, id string) (*domain.Box, error) {
	var box domain.Box
	err := r.s.boxes.FindOne(ctx, bson.M{"_id": id}).Decode(&box)
	if isNoDocuments(err) {
		return nil, domain.ErrBoxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find box: %w", err)
	}
	return &box, nil
}

// FindAvailable relies on the caller's group lock for exclusivity; inside a
// transaction a concurrent writer on the same rows aborts with a write conflict.
func (r boxRepository) FindAvailable(ctx context.Context, key domain.BoxGroupKey) (boxes []*domain.Box, err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, BoxesCollection, "find-available", start, err) }()

	filter := groupFilter(key)
	filter["isInPallet"] = false
	filter["quantity"] = bson.M{"$gt": 0}
	filter["loadingSheetId"] = nil

	boxes, err = findAll[domain.Box](ctx, r.s.boxes, filter, options.Find().SetSort(fifoSort))
	if err != nil {
		return nil, fmt.Errorf("failed to find available boxes: %w", err)
	}
	return boxes, nil
}

func (r boxRepository) FindRemovalCandidates(ctx context.Context, key domain.BoxGroupKey, minQuantity int) ([]*domain.Box, error) {
	filter := groupFilter(key)
	filter["isInPallet"] = false
	filter["quantity"] = bson.M{"$gt": 0, "$gte": minQuantity}

	boxes, err := findAll[domain.Box](ctx, r.s.boxes, filter, options.Find().SetSort(fifoSort))
	if err != nil {
		return nil, fmt.Errorf("failed to find removal candidates: %w", err)
	}
	return boxes, nil
}

func (r boxRepository) FindMergeTarget(ctx context.Context, key domain.BoxGroupKey) (*domain.Box, error) {
	filter := groupFilter(key)
	filter["isInPallet"] = false
	filter["loadingSheetId"] = nil

	var box domain.Box
	err := r.s.boxes.FindOne(ctx, filter, options.FindOne().SetSort(fifoSort)).Decode(&box)
	if isNoDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find merge target: %w", err)
	}
	return &box, nil
}

func (r boxRepository) FindByPallet(ctx context.Context, palletID string) ([]*domain.Box, error) {
	boxes, err := findAll[domain.Box](ctx, r.s.boxes, bson.M{"palletId": palletID}, options.Find().SetSort(fifoSort))
	if err != nil {
		return nil, fmt.Errorf("failed to find pallet boxes: %w", err)
	}
	return boxes, nil
}

func (r boxRepository) ReleasePallet(ctx context.Context, palletID string, now time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, BoxesCollection, "release-pallet", start, err) }()

	res, err := r.s.boxes.UpdateMany(ctx,
		bson.M{"palletId": palletID},
		bson.M{
			"$set":   bson.M{"isInPallet": false, "updatedAt": now},
			"$unset": bson.M{"palletId": "", "convertedToPalletAt": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release pallet boxes: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r boxRepository) List(ctx context.Context, f domain.BoxFilter) ([]*domain.Box, error) {
	filter := bson.M{}
	if f.ColdRoomID != "" {
		filter["coldRoomId"] = f.ColdRoomID
	}
	if f.PalletID != "" {
		filter["palletId"] = f.PalletID
	}
	if f.CountingRecordID != "" {
		filter["countingRecordId"] = f.CountingRecordID
	}
	if f.InPallet != nil {
		filter["isInPallet"] = *f.InPallet
	}
	if f.AvailableOnly {
		if f.InPallet != nil && *f.InPallet {
			return nil, nil
		}
		filter["isInPallet"] = false
		filter["quantity"] = bson.M{"$gt": 0}
		filter["loadingSheetId"] = nil
	}

	boxes, err := findAll[domain.Box](ctx, r.s.boxes, filter, options.Find().SetSort(fifoSort))
	if err != nil {
		return nil, fmt.Errorf("failed to list boxes: %w", err)
	}
	return boxes, nil
}

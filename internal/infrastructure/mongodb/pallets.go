package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

var creationOrder = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

type palletRepository struct{ s *Store }

func (r palletRepository) Create(ctx context.Context, pallet *domain.Pallet) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, PalletsCollection, "create", start, err) }()

	if _, err = r.s.pallets.InsertOne(ctx, pallet); err != nil {
		return fmt.Errorf("failed to insert pallet: %w", err)
	}
	return nil
}

func (r palletRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, PalletsCollection, "delete", start, err) }()

	res, err := r.s.pallets.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete pallet: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPalletNotFound
	}
	return nil
}

func (r palletRepository) FindByID(ctx context.Context, id string) (*domain.Pallet, error) {
	var pallet domain.Pallet
	err := r.s.pallets.FindOne(ctx, bson.M{"_id": id}).Decode(&pallet)
	if isNoDocuments(err) {
		return nil, domain.ErrPalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pallet: %w", err)
	}
	return &pallet, nil
}

func (r palletRepository) FindManualByColdRoom(ctx context.Context, coldRoomID string) ([]*domain.Pallet, error) {
	pallets, err := findAll[domain.Pallet](ctx, r.s.pallets,
		bson.M{"coldRoomId": coldRoomID, "isManual": true},
		options.Find().SetSort(creationOrder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find manual pallets: %w", err)
	}
	return pallets, nil
}

func (r palletRepository) List(ctx context.Context, coldRoomID string) ([]*domain.Pallet, error) {
	filter := bson.M{}
	if coldRoomID != "" {
		filter["coldRoomId"] = coldRoomID
	}
	pallets, err := findAll[domain.Pallet](ctx, r.s.pallets, filter,
		options.Find().SetSort(creationOrder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pallets: %w", err)
	}
	return pallets, nil
}

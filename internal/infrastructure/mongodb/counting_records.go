package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

// countingRecordDocument keeps the quantity maps as JSON text, the way intake
// writes them, so a malformed map never breaks decoding of the whole record
type countingRecordDocument struct {
	ID                        string     `bson:"_id"`
	SupplierName              string     `bson:"supplierName,omitempty"`
	Region                    string     `bson:"region,omitempty"`
	CountingData              string     `bson:"countingData"`
	Totals                    string     `bson:"totals"`
	BoxesLoadedToColdroom     string     `bson:"boxesLoadedToColdroom"`
	TotalBoxesLoaded          int        `bson:"totalBoxesLoaded"`
	LoadingProgressPercentage int        `bson:"loadingProgressPercentage"`
	Status                    string     `bson:"status"`
	ForColdroom               bool       `bson:"forColdroom"`
	SubmittedAt               time.Time  `bson:"submittedAt"`
	ColdRoomLoadedTo          *string    `bson:"coldRoomLoadedTo,omitempty"`
	LoadedToColdroomAt        *time.Time `bson:"loadedToColdroomAt,omitempty"`
	UpdatedAt                 time.Time  `bson:"updatedAt"`
}

func toCountingRecordDocument(r *domain.CountingRecord) (*countingRecordDocument, error) {
	docs, err := r.EncodeDocuments()
	if err != nil {
		return nil, err
	}
	return &countingRecordDocument{
		ID:                        r.ID,
		SupplierName:              r.SupplierName,
		Region:                    r.Region,
		CountingData:              docs.CountingData,
		Totals:                    docs.Totals,
		BoxesLoadedToColdroom:     docs.BoxesLoadedToColdroom,
		TotalBoxesLoaded:          r.TotalBoxesLoaded,
		LoadingProgressPercentage: r.LoadingProgressPercentage,
		Status:                    string(r.Status),
		ForColdroom:               r.ForColdroom,
		SubmittedAt:               r.SubmittedAt,
		ColdRoomLoadedTo:          r.ColdRoomLoadedTo,
		LoadedToColdroomAt:        r.LoadedToColdroomAt,
		UpdatedAt:                 r.UpdatedAt,
	}, nil
}

func (d *countingRecordDocument) toDomain() *domain.CountingRecord {
	r := &domain.CountingRecord{
		ID:                        d.ID,
		SupplierName:              d.SupplierName,
		Region:                    d.Region,
		TotalBoxesLoaded:          d.TotalBoxesLoaded,
		LoadingProgressPercentage: d.LoadingProgressPercentage,
		Status:                    domain.CountingStatus(d.Status),
		ForColdroom:               d.ForColdroom,
		SubmittedAt:               d.SubmittedAt,
		ColdRoomLoadedTo:          d.ColdRoomLoadedTo,
		LoadedToColdroomAt:        d.LoadedToColdroomAt,
		UpdatedAt:                 d.UpdatedAt,
	}
	r.DecodeDocuments(domain.StoredCountingDocuments{
		CountingData:          d.CountingData,
		Totals:                d.Totals,
		BoxesLoadedToColdroom: d.BoxesLoadedToColdroom,
	})
	return r
}

type countingRecordRepository struct{ s *Store }

func (r countingRecordRepository) Create(ctx context.Context, record *domain.CountingRecord) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, CountingRecordsCollection, "create", start, err) }()

	doc, err := toCountingRecordDocument(record)
	if err != nil {
		return err
	}
	if _, err = r.s.records.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert counting record: %w", err)
	}
	return nil
}

func (r countingRecordRepository) Update(ctx context.Context, record *domain.CountingRecord) (err error) {
	start := time.Now()
	defer func() { r.s.observe(ctx, CountingRecordsCollection, "update", start, err) }()

	doc, err := toCountingRecordDocument(record)
	if err != nil {
		return err
	}
	res, err := r.s.records.ReplaceOne(ctx, bson.M{"_id": record.ID}, doc)
	if err != nil {
		return fmt.Errorf("failed to update counting record: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrCountingRecordNotFound
	}
	return nil
}

func (r countingRecordRepository) FindByID(ctx context.Context, id string) (*domain.CountingRecord, error) {
	var doc countingRecordDocument
	err := r.s.records.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if isNoDocuments(err) {
		return nil, domain.ErrCountingRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find counting record: %w", err)
	}
	return doc.toDomain(), nil
}

func (r countingRecordRepository) ListForColdroom(ctx context.Context) ([]*domain.CountingRecord, error) {
	docs, err := findAll[countingRecordDocument](ctx, r.s.records,
		bson.M{"forColdroom": true},
		options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list counting records: %w", err)
	}
	out := make([]*domain.CountingRecord, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

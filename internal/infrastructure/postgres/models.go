package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

// Timestamps are set by the domain clock, never by GORM.

type boxRow struct {
	ID                  string  `gorm:"primaryKey;type:text"`
	Variety             string  `gorm:"not null;index:idx_boxes_group,priority:2"`
	BoxType             string  `gorm:"not null;index:idx_boxes_group,priority:3"`
	Size                string  `gorm:"not null;index:idx_boxes_group,priority:4"`
	Grade               string  `gorm:"not null;index:idx_boxes_group,priority:5"`
	ColdRoomID          string  `gorm:"not null;index:idx_boxes_group,priority:1"`
	Quantity            int     `gorm:"not null"`
	SupplierName        string  `gorm:"not null;default:''"`
	Region              string  `gorm:"not null;default:''"`
	CountingRecordID    *string `gorm:"index"`
	PalletID            *string `gorm:"index"`
	IsInPallet          bool    `gorm:"not null;default:false;index:idx_boxes_group,priority:6"`
	LoadingSheetID      *string
	CreatedAt           time.Time `gorm:"not null;autoCreateTime:false;index:idx_boxes_group,priority:7"`
	UpdatedAt           time.Time `gorm:"not null;autoUpdateTime:false"`
	ConvertedToPalletAt *time.Time
}

func (boxRow) TableName() string { return "boxes" }

func toBoxRow(b *domain.Box) *boxRow {
	return &boxRow{
		ID:                  b.ID,
		Variety:             string(b.Variety),
		BoxType:             string(b.BoxType),
		Size:                b.Size,
		Grade:               string(b.Grade),
		ColdRoomID:          b.ColdRoomID,
		Quantity:            b.Quantity,
		SupplierName:        b.SupplierName,
		Region:              b.Region,
		CountingRecordID:    b.CountingRecordID,
		PalletID:            b.PalletID,
		IsInPallet:          b.IsInPallet,
		LoadingSheetID:      b.LoadingSheetID,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
		ConvertedToPalletAt: b.ConvertedToPalletAt,
	}
}

func (r *boxRow) toDomain() *domain.Box {
	return &domain.Box{
		ID: r.ID,
		BoxSpec: domain.BoxSpec{
			Variety: domain.Variety(r.Variety),
			BoxType: domain.BoxType(r.BoxType),
			Size:    r.Size,
			Grade:   domain.Grade(r.Grade),
		},
		Quantity:            r.Quantity,
		ColdRoomID:          r.ColdRoomID,
		SupplierName:        r.SupplierName,
		Region:              r.Region,
		CountingRecordID:    r.CountingRecordID,
		PalletID:            r.PalletID,
		IsInPallet:          r.IsInPallet,
		LoadingSheetID:      r.LoadingSheetID,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		ConvertedToPalletAt: r.ConvertedToPalletAt,
	}
}

type palletRow struct {
	ID             string    `gorm:"primaryKey;type:text"`
	PalletName     string    `gorm:"not null"`
	ColdRoomID     string    `gorm:"not null;index:idx_pallets_room,priority:1"`
	PalletCount    int       `gorm:"not null;default:1"`
	IsManual       bool      `gorm:"not null;default:false;index:idx_pallets_room,priority:2"`
	TotalBoxes     int       `gorm:"not null"`
	TotalWeightKg  int       `gorm:"not null"`
	BoxesPerPallet int       `gorm:"not null"`
	CreatedBy      string    `gorm:"not null;default:''"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime:false"`
}

func (palletRow) TableName() string { return "pallets" }

func toPalletRow(p *domain.Pallet) *palletRow {
	return &palletRow{
		ID:             p.ID,
		PalletName:     p.PalletName,
		ColdRoomID:     p.ColdRoomID,
		PalletCount:    p.PalletCount,
		IsManual:       p.IsManual,
		TotalBoxes:     p.TotalBoxes,
		TotalWeightKg:  p.TotalWeightKg,
		BoxesPerPallet: p.BoxesPerPallet,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
	}
}

func (r *palletRow) toDomain() *domain.Pallet {
	return &domain.Pallet{
		ID:             r.ID,
		PalletName:     r.PalletName,
		ColdRoomID:     r.ColdRoomID,
		PalletCount:    r.PalletCount,
		IsManual:       r.IsManual,
		TotalBoxes:     r.TotalBoxes,
		TotalWeightKg:  r.TotalWeightKg,
		BoxesPerPallet: r.BoxesPerPallet,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
	}
}

// countingRecordRow keeps the quantity maps as text so a malformed map written
// by intake still loads
type countingRecordRow struct {
	ID                        string    `gorm:"primaryKey;type:text"`
	SupplierName              string    `gorm:"not null;default:''"`
	Region                    string    `gorm:"not null;default:''"`
	CountingData              string    `gorm:"type:text;not null;default:'{}'"`
	Totals                    string    `gorm:"type:text;not null;default:'{}'"`
	BoxesLoadedToColdroom     string    `gorm:"column:boxes_loaded_to_coldroom;type:text;not null;default:'{}'"`
	TotalBoxesLoaded          int       `gorm:"not null;default:0"`
	LoadingProgressPercentage int       `gorm:"not null;default:0"`
	Status                    string    `gorm:"not null"`
	ForColdroom               bool      `gorm:"not null;default:false;index:idx_counting_for_coldroom,priority:1"`
	SubmittedAt               time.Time `gorm:"not null;index:idx_counting_for_coldroom,priority:2,sort:desc"`
	ColdRoomLoadedTo          *string
	LoadedToColdroomAt        *time.Time
	UpdatedAt                 time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (countingRecordRow) TableName() string { return "counting_records" }

func toCountingRecordRow(r *domain.CountingRecord) (*countingRecordRow, error) {
	docs, err := r.EncodeDocuments()
	if err != nil {
		return nil, err
	}
	return &countingRecordRow{
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

func (row *countingRecordRow) toDomain() *domain.CountingRecord {
	r := &domain.CountingRecord{
		ID:                        row.ID,
		SupplierName:              row.SupplierName,
		Region:                    row.Region,
		TotalBoxesLoaded:          row.TotalBoxesLoaded,
		LoadingProgressPercentage: row.LoadingProgressPercentage,
		Status:                    domain.CountingStatus(row.Status),
		ForColdroom:               row.ForColdroom,
		SubmittedAt:               row.SubmittedAt,
		ColdRoomLoadedTo:          row.ColdRoomLoadedTo,
		LoadedToColdroomAt:        row.LoadedToColdroomAt,
		UpdatedAt:                 row.UpdatedAt,
	}
	r.DecodeDocuments(domain.StoredCountingDocuments{
		CountingData:          row.CountingData,
		Totals:                row.Totals,
		BoxesLoadedToColdroom: row.BoxesLoadedToColdroom,
	})
	return r
}

type temperatureLogRow struct {
	ID          string              `gorm:"primaryKey;type:text"`
	ColdRoomID  string              `gorm:"not null;index:idx_temperature_room,priority:1"`
	Temperature decimal.Decimal     `gorm:"type:numeric(6,2);not null"`
	Humidity    decimal.NullDecimal `gorm:"type:numeric(5,2)"`
	OutOfRange  bool                `gorm:"not null;default:false"`
	RecordedBy  string              `gorm:"not null;default:''"`
	RecordedAt  time.Time           `gorm:"not null;index:idx_temperature_room,priority:2,sort:desc"`
}

func (temperatureLogRow) TableName() string { return "temperature_logs" }

func toTemperatureLogRow(l *domain.TemperatureLog) *temperatureLogRow {
	row := &temperatureLogRow{
		ID:          l.ID,
		ColdRoomID:  l.ColdRoomID,
		Temperature: l.TemperatureC,
		OutOfRange:  l.OutOfRange,
		RecordedBy:  l.RecordedBy,
		RecordedAt:  l.RecordedAt,
	}
	if l.HumidityPct != nil {
		row.Humidity = decimal.NullDecimal{Decimal: *l.HumidityPct, Valid: true}
	}
	return row
}

func (r *temperatureLogRow) toDomain() *domain.TemperatureLog {
	l := &domain.TemperatureLog{
		ID:           r.ID,
		ColdRoomID:   r.ColdRoomID,
		TemperatureC: r.Temperature,
		OutOfRange:   r.OutOfRange,
		RecordedBy:   r.RecordedBy,
		RecordedAt:   r.RecordedAt,
	}
	if r.Humidity.Valid {
		h := r.Humidity.Decimal
		l.HumidityPct = &h
	}
	return l
}

type repackingRecordRow struct {
	ID            string    `gorm:"primaryKey;type:text"`
	ColdRoomID    string    `gorm:"not null;index:idx_repacking_room,priority:1"`
	RemovedBoxes  string    `gorm:"type:text;not null;default:'[]'"`
	ReturnedBoxes string    `gorm:"type:text;not null;default:'[]'"`
	RejectedBoxes int       `gorm:"not null;default:0"`
	Notes         string    `gorm:"not null;default:''"`
	ProcessedBy   string    `gorm:"not null;default:''"`
	Timestamp     time.Time `gorm:"column:processed_at;not null;index:idx_repacking_room,priority:2,sort:desc"`
}

func (repackingRecordRow) TableName() string { return "repacking_records" }

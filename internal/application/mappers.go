package application

import (
	"github.com/wms-platform/coldroom-service/internal/domain"
)

// ToBoxDTO converts a domain box to a DTO
func ToBoxDTO(b *domain.Box) BoxDTO {
	return BoxDTO{
		ID:                  b.ID,
		Variety:             string(b.Variety),
		BoxType:             string(b.BoxType),
		Size:                b.Size,
		Grade:               string(b.Grade),
		Quantity:            b.Quantity,
		WeightKg:            b.WeightKg(),
		ColdRoomID:          b.ColdRoomID,
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

// ToBoxDTOs converts a slice of boxes, never returning nil
func ToBoxDTOs(boxes []*domain.Box) []BoxDTO {
	out := make([]BoxDTO, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, ToBoxDTO(b))
	}
	return out
}

// ToPalletDTO converts a pallet and the number of box rows on it
func ToPalletDTO(p *domain.Pallet, boxCount int) PalletDTO {
	return PalletDTO{
		ID:             p.ID,
		PalletName:     p.PalletName,
		ColdRoomID:     p.ColdRoomID,
		PalletCount:    p.PalletCount,
		IsManual:       p.IsManual,
		TotalBoxes:     p.TotalBoxes,
		TotalWeightKg:  p.TotalWeightKg,
		BoxesPerPallet: p.BoxesPerPallet,
		FullPallets:    p.FullPallets(),
		RemainingBoxes: p.RemainingBoxes(),
		BoxCount:       boxCount,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
	}
}

func toRepackEntryDTO(spec domain.BoxSpec, quantity int) RepackEntryDTO {
	return RepackEntryDTO{
		Variety:  string(spec.Variety),
		BoxType:  string(spec.BoxType),
		Size:     spec.Size,
		Grade:    string(spec.Grade),
		Quantity: quantity,
	}
}

func toRepackEntryDTOs(entries []domain.RepackEntry) []RepackEntryDTO {
	out := make([]RepackEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRepackEntryDTO(e.BoxSpec, e.Quantity))
	}
	return out
}

// ToRepackingRecordDTO converts a repacking audit record
func ToRepackingRecordDTO(r *domain.RepackingRecord) RepackingRecordDTO {
	return RepackingRecordDTO{
		ID:            r.ID,
		ColdRoomID:    r.ColdRoomID,
		RemovedBoxes:  toRepackEntryDTOs(r.RemovedBoxes),
		ReturnedBoxes: toRepackEntryDTOs(r.ReturnedBoxes),
		RejectedBoxes: r.RejectedBoxes,
		Notes:         r.Notes,
		ProcessedBy:   r.ProcessedBy,
		Timestamp:     r.Timestamp,
	}
}

// ToTemperatureLogDTO converts a temperature reading
func ToTemperatureLogDTO(l *domain.TemperatureLog) TemperatureLogDTO {
	dto := TemperatureLogDTO{
		ID:          l.ID,
		ColdRoomID:  l.ColdRoomID,
		Temperature: l.TemperatureC.StringFixed(2),
		OutOfRange:  l.OutOfRange,
		RecordedBy:  l.RecordedBy,
		RecordedAt:  l.RecordedAt,
	}
	if l.HumidityPct != nil {
		h := l.HumidityPct.String()
		dto.Humidity = &h
	}
	return dto
}

// ToRemainingRecordDTO converts a counting record and its remaining summary
func ToRemainingRecordDTO(r *domain.CountingRecord) RemainingRecordDTO {
	summary := r.RemainingBoxes()
	countingData := r.CountingData
	if countingData == nil {
		countingData = domain.Quantities{}
	}
	loaded := r.BoxesLoadedToColdroom
	if loaded == nil {
		loaded = domain.Quantities{}
	}
	return RemainingRecordDTO{
		ID:                        r.ID,
		SupplierName:              r.SupplierName,
		Region:                    r.Region,
		CountingData:              countingData,
		BoxesLoadedToColdroom:     loaded,
		RemainingBoxes:            summary.PerGroup,
		TotalRemaining:            summary.Total,
		TotalBoxesLoaded:          loaded.Total(),
		LoadingProgressPercentage: summary.LoadingProgressPercentage,
		HasRemainingBoxes:         summary.HasRemainingBoxes,
		Status:                    summary.Status,
		ColdRoomLoadedTo:          r.ColdRoomLoadedTo,
		SubmittedAt:               r.SubmittedAt,
		DecodeIssues:              r.DecodeIssues,
	}
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	minPlausibleTempC = decimal.NewFromInt(-40)
	maxPlausibleTempC = decimal.NewFromInt(60)
	hundred           = decimal.NewFromInt(100)
)

// ColdRoom is a configured storage room
type ColdRoom struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	MinTempC       *decimal.Decimal `json:"minTempC,omitempty"`
	MaxTempC       *decimal.Decimal `json:"maxTempC,omitempty"`
	BoxesPerPallet int              `json:"boxesPerPallet"`
}

// InRange reports whether t lies within the room's bounds; a missing bound is open
func (c ColdRoom) InRange(t decimal.Decimal) bool {
	if c.MinTempC != nil && t.LessThan(*c.MinTempC) {
		return false
	}
	if c.MaxTempC != nil && t.GreaterThan(*c.MaxTempC) {
		return false
	}
	return true
}

// TemperatureLog is one temperature reading of a cold room
type TemperatureLog struct {
	ID           string           `json:"id"`
	ColdRoomID   string           `json:"coldRoomId"`
	TemperatureC decimal.Decimal  `json:"temperature"`
	HumidityPct  *decimal.Decimal `json:"humidity,omitempty"`
	OutOfRange   bool             `json:"outOfRange"`
	RecordedBy   string           `json:"recordedBy,omitempty"`
	RecordedAt   time.Time        `json:"recordedAt"`
}

// NewTemperatureLog validates a reading, rounds it to 2 places and flags the
// rounded value against the room's bounds
func NewTemperatureLog(room ColdRoom, temperature decimal.Decimal, humidity *decimal.Decimal, recordedBy string, now time.Time) (*TemperatureLog, error) {
	if room.ID == "" {
		return nil, ErrColdRoomRequired
	}
	if temperature.LessThan(minPlausibleTempC) || temperature.GreaterThan(maxPlausibleTempC) {
		return nil, fmt.Errorf("%w: temperature %s°C", ErrInvalidReading, temperature.String())
	}
	if humidity != nil && (humidity.IsNegative() || humidity.GreaterThan(hundred)) {
		return nil, fmt.Errorf("%w: humidity %s%%", ErrInvalidReading, humidity.String())
	}
	temperature = temperature.Round(2)
	if humidity != nil {
		h := humidity.Round(2)
		humidity = &h
	}
	return &TemperatureLog{
		ID:           uuid.New().String(),
		ColdRoomID:   room.ID,
		TemperatureC: temperature,
		HumidityPct:  humidity,
		OutOfRange:   !room.InRange(temperature),
		RecordedBy:   recordedBy,
		RecordedAt:   now,
	}, nil
}

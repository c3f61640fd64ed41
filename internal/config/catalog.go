package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/coldroom-service/internal/domain"
)

type catalogFile struct {
	ColdRooms []coldRoomEntry `yaml:"coldRooms"`
}

type coldRoomEntry struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	MinTempC       string `yaml:"minTempC"`
	MaxTempC       string `yaml:"maxTempC"`
	BoxesPerPallet int    `yaml:"boxesPerPallet"`
}

// LoadCatalog reads the cold room catalog from a YAML file
func LoadCatalog(path string, defaultBoxesPerPallet int) (*domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cold room catalog: %w", err)
	}
	return ParseCatalog(data, defaultBoxesPerPallet)
}

// ParseCatalog decodes a YAML cold room catalog:
//
//	coldRooms:
//	  - id: coldroom1
//	    name: Cold Room 1
//	    minTempC: "2"
//	    maxTempC: "8"
//	    boxesPerPallet: 288
func ParseCatalog(data []byte, defaultBoxesPerPallet int) (*domain.Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cold room catalog: %w", err)
	}

	rooms := make([]domain.ColdRoom, 0, len(file.ColdRooms))
	seen := make(map[string]bool, len(file.ColdRooms))
	for i, entry := range file.ColdRooms {
		if entry.ID == "" {
			return nil, fmt.Errorf("coldRooms[%d]: id is required", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("coldRooms[%d]: duplicate id %q", i, entry.ID)
		}
		seen[entry.ID] = true

		room := domain.ColdRoom{ID: entry.ID, Name: entry.Name, BoxesPerPallet: entry.BoxesPerPallet}
		if room.BoxesPerPallet <= 0 {
			room.BoxesPerPallet = defaultBoxesPerPallet
		}
		var err error
		if room.MinTempC, err = parseBound(entry.MinTempC); err != nil {
			return nil, fmt.Errorf("coldRooms[%d].minTempC: %w", i, err)
		}
		if room.MaxTempC, err = parseBound(entry.MaxTempC); err != nil {
			return nil, fmt.Errorf("coldRooms[%d].maxTempC: %w", i, err)
		}
		if room.MinTempC != nil && room.MaxTempC != nil && room.MinTempC.GreaterThan(*room.MaxTempC) {
			return nil, fmt.Errorf("coldRooms[%d]: minTempC is above maxTempC", i)
		}
		rooms = append(rooms, room)
	}
	return domain.NewCatalog(rooms...), nil
}

// CatalogFromIDs builds an unbounded catalog from plain room ids
func CatalogFromIDs(ids []string, boxesPerPallet int) *domain.Catalog {
	rooms := make([]domain.ColdRoom, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, domain.ColdRoom{ID: id, BoxesPerPallet: boxesPerPallet})
	}
	return domain.NewCatalog(rooms...)
}

func parseBound(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

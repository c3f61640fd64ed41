package cloudevents

import (
	"time"
)

// Event types emitted by the cold-room service
const (
	BoxesLoaded          = "wms.coldroom.boxes-loaded"
	CountingRecordLoaded = "wms.coldroom.counting-record-loaded"
	PalletAssembled      = "wms.coldroom.pallet-assembled"
	PalletDissolved      = "wms.coldroom.pallet-dissolved"
	RepackingRecorded    = "wms.coldroom.repacking-recorded"
	TemperatureRecorded  = "wms.coldroom.temperature-recorded"
	TemperatureExcursion = "wms.coldroom.temperature-excursion"
)

// SourceColdRoom is the CloudEvents source of this service
const SourceColdRoom = "/wms/coldroom-service"

// WMSCloudEvent represents a CloudEvents v1.0 compliant event
type WMSCloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data"`

	// WMS extensions
	CorrelationID string `json:"wmscorrelationid,omitempty"`
	ColdRoomID    string `json:"wmscoldroomid,omitempty"`
}

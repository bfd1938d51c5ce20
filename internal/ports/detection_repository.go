package ports

import (
	"context"
	"time"
)

// Detection is one stored sighting of a device's radio signal.
type Detection struct {
	DetectionID       uint64
	UserID            string
	EventID           string
	MACAddress        string
	SignalType        string
	RSSI              int64
	EstimatedDistance *float64
	Latitude          *float64
	Longitude         *float64
	DetectedAt        time.Time
	BlustickID        string
}

// DetectionCreate carries one record of a batch into the store. The submitter
// identity comes from the verified token, never from the payload.
type DetectionCreate struct {
	UserID            string
	EventID           string
	MACAddress        string
	SignalType        string
	RSSI              int64
	EstimatedDistance *float64
	Latitude          *float64
	Longitude         *float64
	DetectedAt        time.Time
	BlustickID        string
}

// DeviceSummary is one grouped row of a device summary query.
// FirstSeen/LastSeen are MIN/MAX of the client-asserted detected_at.
type DeviceSummary struct {
	MACAddress     string
	DetectionCount int64
	FirstSeen      time.Time
	LastSeen       time.Time
}

// DetectionWriteRepository is the append-only write capability. Rows are
// immutable once committed; there is no update or delete path.
type DetectionWriteRepository interface {
	Insert(ctx context.Context, record DetectionCreate) error
}

// DetectionReadRepository covers the grouped and filtered read queries.
type DetectionReadRepository interface {
	// SummarizeDevicesForEvent groups detections by mac within one event,
	// ordered by detection count desc, then last seen desc.
	SummarizeDevicesForEvent(ctx context.Context, eventID string) ([]DeviceSummary, error)

	// ListDetections returns detections for one (event, mac) pair, newest
	// first, capped at limit rows (0 means unbounded).
	ListDetections(ctx context.Context, eventID string, mac string, limit int) ([]Detection, error)

	// SummarizeAllDevices groups across all events, skipping rows with an
	// empty mac, ordered by last seen desc.
	SummarizeAllDevices(ctx context.Context) ([]DeviceSummary, error)

	// ListDetectionsForMac returns all detections for a mac across every
	// event, newest first, unbounded.
	ListDetectionsForMac(ctx context.Context, mac string) ([]Detection, error)
}

type DetectionRepository interface {
	DetectionWriteRepository
	DetectionReadRepository
}

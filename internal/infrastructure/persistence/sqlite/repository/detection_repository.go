package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"blustick/internal/errs"
	"blustick/internal/infrastructure/persistence/sqlite/model"
	"blustick/internal/ports"
)

type DetectionRepository struct {
	db *gorm.DB
}

var _ ports.DetectionRepository = (*DetectionRepository)(nil)

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *DetectionRepository) Insert(ctx context.Context, record ports.DetectionCreate) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	// detected_at is stored as text, so ordering and min()/max() compare
	// lexicographically. Normalizing to UTC keeps a single offset across
	// rows and makes those comparisons chronological.
	row := model.Detection{
		UserID:            record.UserID,
		EventID:           record.EventID,
		MACAddress:        record.MACAddress,
		SignalType:        record.SignalType,
		RSSI:              record.RSSI,
		EstimatedDistance: record.EstimatedDistance,
		Latitude:          record.Latitude,
		Longitude:         record.Longitude,
		DetectedAt:        record.DetectedAt.UTC(),
		BlustickID:        record.BlustickID,
	}

	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert detection")
	}
	return nil
}

// summaryRow is the raw grouped projection before mapping to ports.
type summaryRow struct {
	MACAddress     string `gorm:"column:mac_address"`
	DetectionCount int64  `gorm:"column:detection_count"`
	FirstSeen      string `gorm:"column:first_seen"`
	LastSeen       string `gorm:"column:last_seen"`
}

func (r *DetectionRepository) SummarizeDevicesForEvent(ctx context.Context, eventID string) ([]ports.DeviceSummary, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []summaryRow
	if err := db.Model(&model.Detection{}).
		Select("mac_address, count(*) as detection_count, min(detected_at) as first_seen, max(detected_at) as last_seen").
		Where("event_id = ?", eventID).
		Group("mac_address").
		Order("detection_count desc, last_seen desc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "summarize devices for event")
	}

	return mapSummaries(rows)
}

func (r *DetectionRepository) ListDetections(ctx context.Context, eventID string, mac string, limit int) ([]ports.Detection, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.
		Where("event_id = ? AND mac_address = ?", eventID, mac).
		Order("detected_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.Detection
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query detections for event and mac")
	}

	return mapDetections(rows), nil
}

func (r *DetectionRepository) SummarizeAllDevices(ctx context.Context) ([]ports.DeviceSummary, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []summaryRow
	if err := db.Model(&model.Detection{}).
		Select("mac_address, count(*) as detection_count, min(detected_at) as first_seen, max(detected_at) as last_seen").
		Where("mac_address IS NOT NULL AND mac_address <> ''").
		Group("mac_address").
		Order("last_seen desc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "summarize all devices")
	}

	return mapSummaries(rows)
}

func (r *DetectionRepository) ListDetectionsForMac(ctx context.Context, mac string) ([]ports.Detection, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	// Unbounded on purpose: the per-event history endpoint caps rows, the
	// cross-event one does not. See ListDetections.
	var rows []model.Detection
	if err := db.
		Where("mac_address = ?", mac).
		Order("detected_at desc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query detections for mac")
	}

	return mapDetections(rows), nil
}

func mapDetections(rows []model.Detection) []ports.Detection {
	items := make([]ports.Detection, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.Detection{
			DetectionID:       row.DetectionID,
			UserID:            row.UserID,
			EventID:           row.EventID,
			MACAddress:        row.MACAddress,
			SignalType:        row.SignalType,
			RSSI:              row.RSSI,
			EstimatedDistance: row.EstimatedDistance,
			Latitude:          row.Latitude,
			Longitude:         row.Longitude,
			DetectedAt:        row.DetectedAt,
			BlustickID:        row.BlustickID,
		})
	}
	return items
}

func mapSummaries(rows []summaryRow) ([]ports.DeviceSummary, error) {
	items := make([]ports.DeviceSummary, 0, len(rows))
	for _, row := range rows {
		firstSeen, err := parseStoredTime(row.FirstSeen)
		if err != nil {
			return nil, errs.Wrapf(err, "parse first_seen for mac %q", row.MACAddress)
		}
		lastSeen, err := parseStoredTime(row.LastSeen)
		if err != nil {
			return nil, errs.Wrapf(err, "parse last_seen for mac %q", row.MACAddress)
		}

		items = append(items, ports.DeviceSummary{
			MACAddress:     row.MACAddress,
			DetectionCount: row.DetectionCount,
			FirstSeen:      firstSeen,
			LastSeen:       lastSeen,
		})
	}
	return items, nil
}

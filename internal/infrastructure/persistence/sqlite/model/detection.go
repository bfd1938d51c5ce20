package model

import "time"

type Detection struct {
	DetectionID       uint64    `gorm:"column:detection_id;primaryKey;autoIncrement"`
	UserID            string    `gorm:"column:user_id;type:text;not null;index"`
	EventID           string    `gorm:"column:event_id;type:text;not null;index:idx_detections_event_mac,priority:1"`
	MACAddress        string    `gorm:"column:mac_address;type:text;index:idx_detections_event_mac,priority:2"`
	SignalType        string    `gorm:"column:signal_type;type:text"`
	RSSI              int64     `gorm:"column:rssi;not null"`
	EstimatedDistance *float64  `gorm:"column:estimated_distance"`
	Latitude          *float64  `gorm:"column:latitude"`
	Longitude         *float64  `gorm:"column:longitude"`
	DetectedAt        time.Time `gorm:"column:detected_at;not null;index"`
	BlustickID        string    `gorm:"column:blustick_id;type:text"`
}

func (Detection) TableName() string {
	return "detections"
}

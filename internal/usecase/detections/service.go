package detections

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"blustick/internal/bootstrap/logging"
	"blustick/internal/errs"
	"blustick/internal/metrics"
	"blustick/internal/ports"
)

var (
	// ErrEmptyBatch rejects a batch with no records before any transaction
	// is opened.
	ErrEmptyBatch = errors.New("batch must contain at least one detection")

	errOwnerRequired = errors.New("owner id is required")
)

// historyLimit caps the per-event detection history query. The cross-event
// history query is deliberately unbounded; keep the asymmetry explicit and
// tested rather than accidental.
const historyLimit = 500

// allDevicesCacheKey indexes the cached global device summary. Invalidated
// on every committed batch.
const allDevicesCacheKey = "summary:all-devices"

type Service struct {
	repo            ports.DetectionRepository
	uow             ports.UnitOfWork
	cache           ports.Cache
	summaryCacheTTL time.Duration
}

// NewService wires detection usecases with repository, transaction boundary
// and the summary cache.
func NewService(repo ports.DetectionRepository, uow ports.UnitOfWork, cache ports.Cache, summaryCacheTTL time.Duration) *Service {
	return &Service{
		repo:            repo,
		uow:             uow,
		cache:           cache,
		summaryCacheTTL: summaryCacheTTL,
	}
}

// RecordInput is one client-submitted detection. The submitter identity is
// never taken from the payload; it comes from the verified token. BlustickID
// is optional on ingest but always projected on read paths.
type RecordInput struct {
	EventID           string    `json:"event_id"`
	MACAddress        string    `json:"mac_address"`
	SignalType        string    `json:"signal_type"`
	RSSI              int64     `json:"rssi"`
	EstimatedDistance *float64  `json:"estimated_distance"`
	Latitude          *float64  `json:"latitude"`
	Longitude         *float64  `json:"longitude"`
	DetectedAt        time.Time `json:"detected_at"`
	BlustickID        string    `json:"blustick_id,omitempty"`
}

type IngestBatchInput struct {
	OwnerID string
	Records []RecordInput
}

type IngestBatchResult struct {
	Inserted int
}

// IngestBatch appends every record of the batch inside one transaction, in
// input order. The first failing insert aborts the whole batch; no partial
// state survives a rollback. Duplicate submissions become distinct rows.
func (s *Service) IngestBatch(ctx context.Context, input IngestBatchInput) (IngestBatchResult, error) {
	if ctx == nil {
		return IngestBatchResult{}, errors.New("context is required")
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return IngestBatchResult{}, errOwnerRequired
	}
	if len(input.Records) == 0 {
		return IngestBatchResult{}, ErrEmptyBatch
	}

	batchID := uuid.NewString()
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.detections"),
		slog.String("batch_id", batchID),
		slog.String("owner_id", input.OwnerID),
		slog.Int("batch_size", len(input.Records)),
	)

	started := time.Now()
	metrics.BatchSize.Observe(float64(len(input.Records)))

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		for i, record := range input.Records {
			create := ports.DetectionCreate{
				UserID:            input.OwnerID,
				EventID:           record.EventID,
				MACAddress:        record.MACAddress,
				SignalType:        record.SignalType,
				RSSI:              record.RSSI,
				EstimatedDistance: record.EstimatedDistance,
				Latitude:          record.Latitude,
				Longitude:         record.Longitude,
				DetectedAt:        record.DetectedAt,
				BlustickID:        record.BlustickID,
			}
			if err := s.repo.Insert(txCtx, create); err != nil {
				return errs.Wrapf(err, "insert record %d of %d", i+1, len(input.Records))
			}
		}
		return nil
	})
	if err != nil {
		metrics.BatchesFailed.Inc()
		logging.Error(logCtx, "batch ingestion rolled back", slog.Any("err", errs.Loggable(err)))
		return IngestBatchResult{}, errs.Wrap(err, "ingest batch")
	}

	metrics.BatchesIngested.Inc()
	metrics.DetectionsInserted.Add(float64(len(input.Records)))
	metrics.BatchIngestDuration.Observe(float64(time.Since(started).Milliseconds()))

	s.invalidateAllDevicesSummary(logCtx)

	logging.Info(logCtx, "batch ingested", slog.Int("inserted", len(input.Records)))
	return IngestBatchResult{Inserted: len(input.Records)}, nil
}

// SummarizeDevicesForEvent groups the event's detections by mac, ordered by
// detection count desc with last-seen desc as tie-break.
func (s *Service) SummarizeDevicesForEvent(ctx context.Context, eventID string) ([]ports.DeviceSummary, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, errors.New("event id is required")
	}

	metrics.QueriesServed.WithLabelValues("event_devices").Inc()

	summaries, err := s.repo.SummarizeDevicesForEvent(ctx, eventID)
	if err != nil {
		return nil, errs.Wrap(err, "summarize devices for event")
	}
	return summaries, nil
}

// ListDetections returns the most recent detections for one (event, mac)
// pair, newest first, capped at historyLimit rows. Callers needing more page
// externally; there is no pagination token.
func (s *Service) ListDetections(ctx context.Context, eventID string, mac string) ([]ports.Detection, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, errors.New("event id is required")
	}
	if strings.TrimSpace(mac) == "" {
		return nil, errors.New("mac address is required")
	}

	metrics.QueriesServed.WithLabelValues("event_mac_detections").Inc()

	items, err := s.repo.ListDetections(ctx, eventID, mac, historyLimit)
	if err != nil {
		return nil, errs.Wrap(err, "list detections")
	}
	return items, nil
}

// SummarizeAllDevices groups detections by mac across every event, skipping
// rows without a mac, ordered by last-seen desc. The result is served from
// the TTL cache when a fresh entry exists; every committed batch invalidates
// the entry, so reads with no intervening writes stay identical.
func (s *Service) SummarizeAllDevices(ctx context.Context) ([]ports.DeviceSummary, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	metrics.QueriesServed.WithLabelValues("all_devices").Inc()

	if cached, ok := s.cachedAllDevicesSummary(ctx); ok {
		return cached, nil
	}

	summaries, err := s.repo.SummarizeAllDevices(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "summarize all devices")
	}

	s.storeAllDevicesSummary(ctx, summaries)
	return summaries, nil
}

// ListDetectionsForMac returns every detection of a mac across all events,
// newest first, unbounded.
func (s *Service) ListDetectionsForMac(ctx context.Context, mac string) ([]ports.Detection, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(mac) == "" {
		return nil, errors.New("mac address is required")
	}

	metrics.QueriesServed.WithLabelValues("mac_detections").Inc()

	items, err := s.repo.ListDetectionsForMac(ctx, mac)
	if err != nil {
		return nil, errs.Wrap(err, "list detections for mac")
	}
	return items, nil
}

func (s *Service) cachedAllDevicesSummary(ctx context.Context) ([]ports.DeviceSummary, bool) {
	if s.cache == nil || s.summaryCacheTTL <= 0 {
		return nil, false
	}

	value, found, err := s.cache.Get(ctx, allDevicesCacheKey)
	if err != nil {
		logging.Warn(ctx, "summary cache read failed", slog.Any("err", errs.Loggable(err)))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var summaries []ports.DeviceSummary
	if err := json.Unmarshal([]byte(value), &summaries); err != nil {
		logging.Warn(ctx, "summary cache entry corrupt", slog.Any("err", errs.Loggable(err)))
		return nil, false
	}
	return summaries, true
}

func (s *Service) storeAllDevicesSummary(ctx context.Context, summaries []ports.DeviceSummary) {
	if s.cache == nil || s.summaryCacheTTL <= 0 {
		return
	}

	encoded, err := json.Marshal(summaries)
	if err != nil {
		logging.Warn(ctx, "summary cache encode failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	if err := s.cache.Set(ctx, allDevicesCacheKey, string(encoded), s.summaryCacheTTL); err != nil {
		logging.Warn(ctx, "summary cache write failed", slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) invalidateAllDevicesSummary(ctx context.Context) {
	if s.cache == nil || s.summaryCacheTTL <= 0 {
		return
	}
	if err := s.cache.Delete(ctx, allDevicesCacheKey); err != nil {
		logging.Warn(ctx, "summary cache invalidation failed", slog.Any("err", errs.Loggable(err)))
	}
}

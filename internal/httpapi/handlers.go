package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"blustick/internal/auth"
	"blustick/internal/bootstrap/logging"
	"blustick/internal/errs"
	"blustick/internal/ports"
	"blustick/internal/usecase/detections"
)

// DetectionService is the slice of the usecase surface the handlers need.
type DetectionService interface {
	IngestBatch(ctx context.Context, input detections.IngestBatchInput) (detections.IngestBatchResult, error)
	SummarizeDevicesForEvent(ctx context.Context, eventID string) ([]ports.DeviceSummary, error)
	ListDetections(ctx context.Context, eventID string, mac string) ([]ports.Detection, error)
	SummarizeAllDevices(ctx context.Context) ([]ports.DeviceSummary, error)
	ListDetectionsForMac(ctx context.Context, mac string) ([]ports.Detection, error)
}

type batchRequest struct {
	Detections []detections.RecordInput `json:"detections"`
}

type batchResponse struct {
	Inserted int `json:"inserted"`
}

func (b *batchResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// DeviceSummaryView is the external projection of one grouped summary row.
type DeviceSummaryView struct {
	MACAddress     string    `json:"mac_address"`
	DetectionCount int64     `json:"detection_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

func (v *DeviceSummaryView) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// DetectionView is the external projection of one stored detection,
// blustick_id included.
type DetectionView struct {
	DetectionID       uint64    `json:"detection_id"`
	UserID            string    `json:"user_id"`
	EventID           string    `json:"event_id"`
	MACAddress        string    `json:"mac_address"`
	SignalType        string    `json:"signal_type"`
	RSSI              int64     `json:"rssi"`
	EstimatedDistance *float64  `json:"estimated_distance"`
	Latitude          *float64  `json:"latitude"`
	Longitude         *float64  `json:"longitude"`
	DetectedAt        time.Time `json:"detected_at"`
	BlustickID        string    `json:"blustick_id"`
}

func (v *DetectionView) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAttrs(r.Context(), slog.String("operation", "ingest_batch"))

	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		_ = render.Render(w, r, errMissingCredential())
		return
	}

	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = render.Render(w, r, errInvalidRequest("detections must be a non-empty array"))
		return
	}
	if len(body.Detections) == 0 {
		_ = render.Render(w, r, errInvalidRequest("detections must be a non-empty array"))
		return
	}

	result, err := s.svc.IngestBatch(ctx, detections.IngestBatchInput{
		OwnerID: claims.UserID,
		Records: body.Detections,
	})
	if err != nil {
		if errors.Is(err, detections.ErrEmptyBatch) {
			_ = render.Render(w, r, errInvalidRequest("detections must be a non-empty array"))
			return
		}
		logging.Error(ctx, "batch ingestion failed", slog.Any("err", errs.Loggable(err)))
		_ = render.Render(w, r, errUnexpected(err))
		return
	}

	_ = render.Render(w, r, &batchResponse{Inserted: result.Inserted})
}

func (s *Server) handleEventDevices(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAttrs(r.Context(), slog.String("operation", "event_devices"))
	eventID := chi.URLParam(r, "eventID")

	summaries, err := s.svc.SummarizeDevicesForEvent(ctx, eventID)
	if err != nil {
		logging.Error(ctx, "event device summary failed", slog.Any("err", errs.Loggable(err)))
		_ = render.Render(w, r, errUnexpected(err))
		return
	}

	_ = render.RenderList(w, r, summaryViews(summaries))
}

func (s *Server) handleEventMacDetections(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAttrs(r.Context(), slog.String("operation", "event_mac_detections"))
	eventID := chi.URLParam(r, "eventID")
	mac := decodedURLParam(r, "mac")

	items, err := s.svc.ListDetections(ctx, eventID, mac)
	if err != nil {
		logging.Error(ctx, "detection history failed", slog.Any("err", errs.Loggable(err)))
		_ = render.Render(w, r, errUnexpected(err))
		return
	}

	_ = render.RenderList(w, r, detectionViews(items))
}

func (s *Server) handleAllDevices(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAttrs(r.Context(), slog.String("operation", "all_devices"))

	summaries, err := s.svc.SummarizeAllDevices(ctx)
	if err != nil {
		logging.Error(ctx, "global device summary failed", slog.Any("err", errs.Loggable(err)))
		_ = render.Render(w, r, errUnexpected(err))
		return
	}

	_ = render.RenderList(w, r, summaryViews(summaries))
}

func (s *Server) handleMacDetections(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAttrs(r.Context(), slog.String("operation", "mac_detections"))
	mac := decodedURLParam(r, "mac")

	items, err := s.svc.ListDetectionsForMac(ctx, mac)
	if err != nil {
		logging.Error(ctx, "cross-event detection list failed", slog.Any("err", errs.Loggable(err)))
		_ = render.Render(w, r, errUnexpected(err))
		return
	}

	_ = render.RenderList(w, r, detectionViews(items))
}

// decodedURLParam unescapes a path parameter; MAC addresses arrive
// percent-encoded when they contain colons.
func decodedURLParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func summaryViews(summaries []ports.DeviceSummary) []render.Renderer {
	outs := make([]render.Renderer, 0, len(summaries))
	for _, s := range summaries {
		outs = append(outs, &DeviceSummaryView{
			MACAddress:     s.MACAddress,
			DetectionCount: s.DetectionCount,
			FirstSeen:      s.FirstSeen,
			LastSeen:       s.LastSeen,
		})
	}
	return outs
}

func detectionViews(items []ports.Detection) []render.Renderer {
	outs := make([]render.Renderer, 0, len(items))
	for _, d := range items {
		outs = append(outs, &DetectionView{
			DetectionID:       d.DetectionID,
			UserID:            d.UserID,
			EventID:           d.EventID,
			MACAddress:        d.MACAddress,
			SignalType:        d.SignalType,
			RSSI:              d.RSSI,
			EstimatedDistance: d.EstimatedDistance,
			Latitude:          d.Latitude,
			Longitude:         d.Longitude,
			DetectedAt:        d.DetectedAt,
			BlustickID:        d.BlustickID,
		})
	}
	return outs
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"blustick/internal/auth"
	"blustick/internal/bootstrap/config"
	"blustick/internal/ports"
	"blustick/internal/usecase/detections"
)

const testSecret = "local-dev-secret"

type stubService struct {
	ingestCalls  int
	ingestInput  detections.IngestBatchInput
	ingestResult detections.IngestBatchResult
	ingestErr    error

	summaryCalls int
	summaryEvent string
	summaries    []ports.DeviceSummary
	summaryErr   error

	listCalls int
	listEvent string
	listMac   string
	items     []ports.Detection
	listErr   error
}

func (s *stubService) IngestBatch(_ context.Context, input detections.IngestBatchInput) (detections.IngestBatchResult, error) {
	s.ingestCalls++
	s.ingestInput = input
	if s.ingestErr != nil {
		return detections.IngestBatchResult{}, s.ingestErr
	}
	if s.ingestResult.Inserted == 0 {
		return detections.IngestBatchResult{Inserted: len(input.Records)}, nil
	}
	return s.ingestResult, nil
}

func (s *stubService) SummarizeDevicesForEvent(_ context.Context, eventID string) ([]ports.DeviceSummary, error) {
	s.summaryCalls++
	s.summaryEvent = eventID
	return s.summaries, s.summaryErr
}

func (s *stubService) ListDetections(_ context.Context, eventID string, mac string) ([]ports.Detection, error) {
	s.listCalls++
	s.listEvent = eventID
	s.listMac = mac
	return s.items, s.listErr
}

func (s *stubService) SummarizeAllDevices(_ context.Context) ([]ports.DeviceSummary, error) {
	s.summaryCalls++
	return s.summaries, s.summaryErr
}

func (s *stubService) ListDetectionsForMac(_ context.Context, mac string) ([]ports.Detection, error) {
	s.listCalls++
	s.listMac = mac
	return s.items, s.listErr
}

func testServer(t *testing.T, svc DetectionService) http.Handler {
	t.Helper()

	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	server := NewServer(config.HTTPConfig{Addr: ":0", JWTSecret: testSecret}, svc, verifier)
	return server.Handler()
}

func bearerToken(t *testing.T) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func decodeError(t *testing.T, body string) string {
	t.Helper()

	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return out.Error
}

func TestBatchIngestSuccess(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	handler := testServer(t, svc)

	body := `{"detections":[
		{"event_id":"evt-1","mac_address":"AA:AA","signal_type":"BLE","rssi":-50,"detected_at":"2026-08-01T12:00:01Z"},
		{"event_id":"evt-1","mac_address":"BB:BB","signal_type":"WiFi","rssi":-70,"detected_at":"2026-08-01T12:00:02Z"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/detections/batch", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Inserted int `json:"inserted"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Inserted != 2 {
		t.Fatalf("inserted = %d, want 2", out.Inserted)
	}
	if svc.ingestInput.OwnerID != "user-1" {
		t.Fatalf("owner = %q, want user-1 (from token subject)", svc.ingestInput.OwnerID)
	}
	if len(svc.ingestInput.Records) != 2 {
		t.Fatalf("records = %d", len(svc.ingestInput.Records))
	}
}

func TestBatchIngestEmptyBodyIsBadRequest(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"detections":[]}`, `{}`, `{"detections":"nope"}`, `not json`} {
		svc := &stubService{}
		handler := testServer(t, svc)

		req := httptest.NewRequest(http.MethodPost, "/detections/batch", strings.NewReader(body))
		req.Header.Set("Authorization", bearerToken(t))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, resp.Code)
		}
		if svc.ingestCalls != 0 {
			t.Fatalf("body %q: service called", body)
		}
	}
}

func TestBatchIngestStorageFaultIsServerError(t *testing.T) {
	t.Parallel()

	svc := &stubService{ingestErr: errors.New("insert record 2 of 3: constraint violation")}
	handler := testServer(t, svc)

	body := `{"detections":[{"event_id":"evt-1","mac_address":"AA:AA","signal_type":"BLE","rssi":-50,"detected_at":"2026-08-01T12:00:01Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/detections/batch", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	// The storage cause stays hidden from the caller.
	if msg := decodeError(t, resp.Body.String()); strings.Contains(msg, "constraint") {
		t.Fatalf("error body leaks cause: %q", msg)
	}
}

func TestAuthGateOnEveryDetectionRoute(t *testing.T) {
	t.Parallel()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/detections/batch"},
		{http.MethodGet, "/events/evt-1/devices"},
		{http.MethodGet, "/events/evt-1/devices/AA:AA/detections"},
		{http.MethodGet, "/devices"},
		{http.MethodGet, "/devices/AA:AA/detections"},
	}

	for _, route := range routes {
		svc := &stubService{}
		handler := testServer(t, svc)

		// No header at all.
		req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{"detections":[{}]}`))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s no header: status = %d", route.method, route.path, resp.Code)
		}
		if msg := decodeError(t, resp.Body.String()); msg != "Missing or invalid Authorization header" {
			t.Fatalf("%s %s error = %q", route.method, route.path, msg)
		}

		// Wrong scheme.
		req = httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s wrong scheme: status = %d", route.method, route.path, resp.Code)
		}

		// Garbage token.
		req = httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("Authorization", "Bearer garbage")
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s bad token: status = %d", route.method, route.path, resp.Code)
		}
		if msg := decodeError(t, resp.Body.String()); msg != "Invalid token" {
			t.Fatalf("%s %s bad token error = %q", route.method, route.path, msg)
		}

		if svc.ingestCalls != 0 || svc.summaryCalls != 0 || svc.listCalls != 0 {
			t.Fatalf("%s %s: service reached without auth", route.method, route.path)
		}
	}
}

func TestEventDevicesSummaryShape(t *testing.T) {
	t.Parallel()

	firstSeen := time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC)
	lastSeen := time.Date(2026, 8, 1, 12, 0, 3, 0, time.UTC)
	svc := &stubService{
		summaries: []ports.DeviceSummary{{
			MACAddress:     "AA:AA",
			DetectionCount: 2,
			FirstSeen:      firstSeen,
			LastSeen:       lastSeen,
		}},
	}
	handler := testServer(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/events/evt-9/devices", nil)
	req.Header.Set("Authorization", bearerToken(t))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	if svc.summaryEvent != "evt-9" {
		t.Fatalf("event id = %q", svc.summaryEvent)
	}

	var out []DeviceSummaryView
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].MACAddress != "AA:AA" || out[0].DetectionCount != 2 {
		t.Fatalf("summary = %+v", out[0])
	}
	if !out[0].FirstSeen.Equal(firstSeen) || !out[0].LastSeen.Equal(lastSeen) {
		t.Fatalf("seen range = %v..%v", out[0].FirstSeen, out[0].LastSeen)
	}
}

func TestEventMacDetectionsDecodesMacParam(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	handler := testServer(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/events/evt-1/devices/AA%3ABB%3ACC/detections", nil)
	req.Header.Set("Authorization", bearerToken(t))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	if svc.listEvent != "evt-1" {
		t.Fatalf("event = %q", svc.listEvent)
	}
	if svc.listMac != "AA:BB:CC" {
		t.Fatalf("mac = %q, want AA:BB:CC (percent-decoded)", svc.listMac)
	}
}

func TestMacDetectionsFullProjection(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		items: []ports.Detection{{
			DetectionID: 7,
			UserID:      "user-1",
			EventID:     "evt-1",
			MACAddress:  "AA:AA",
			SignalType:  "BLE",
			RSSI:        -48,
			DetectedAt:  time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC),
			BlustickID:  "stick-3",
		}},
	}
	handler := testServer(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/devices/AA:AA/detections", nil)
	req.Header.Set("Authorization", bearerToken(t))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}

	var out []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0]["blustick_id"] != "stick-3" {
		t.Fatalf("blustick_id = %v, want stick-3", out[0]["blustick_id"])
	}
	if out[0]["estimated_distance"] != nil {
		t.Fatalf("estimated_distance = %v, want null", out[0]["estimated_distance"])
	}
}

func TestReadFaultIsServerErrorWithoutPartialResult(t *testing.T) {
	t.Parallel()

	svc := &stubService{summaryErr: errors.New("disk gone")}
	handler := testServer(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	req.Header.Set("Authorization", bearerToken(t))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	if msg := decodeError(t, resp.Body.String()); strings.Contains(msg, "disk") {
		t.Fatalf("error body leaks cause: %q", msg)
	}
}

func TestHealthzAndMetricsSkipAuth(t *testing.T) {
	t.Parallel()

	handler := testServer(t, &stubService{})

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.Code)
		}
	}
}

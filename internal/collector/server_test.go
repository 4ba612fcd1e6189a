// internal/collector/server_test.go
package collector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(t.TempDir(), nil)
}

func postDetection(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/detections", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestDetections_Accepted(t *testing.T) {
	s := createTestServer(t)

	rr := postDetection(t, s, `{"frequency": 18022, "magnitude": 22500, "timestamp": 123456}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}

	var resp struct {
		Success   bool            `json:"success"`
		Message   string          `json:"message"`
		Detection detectionRecord `json:"detection"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.Detection.Frequency != 18022 {
		t.Errorf("echoed frequency = %v, want 18022", resp.Detection.Frequency)
	}
	if resp.Detection.Magnitude != 22500 {
		t.Errorf("echoed magnitude = %v, want 22500", resp.Detection.Magnitude)
	}
	if resp.Detection.Timestamp != 123456 {
		t.Errorf("echoed timestamp = %d, want 123456", resp.Detection.Timestamp)
	}
	if resp.Detection.ReceivedAt == "" {
		t.Error("receivedAt not assigned")
	}
	if resp.Detection.ClientIP == "" {
		t.Error("clientIp not assigned")
	}
}

// A detection without a timestamp gets the server clock, not a zero.
func TestDetections_MissingTimestampDefaultsToServerTime(t *testing.T) {
	s := createTestServer(t)

	before := time.Now().UnixMilli()
	rr := postDetection(t, s, `{"frequency": 18022, "magnitude": 22500}`)
	after := time.Now().UnixMilli()

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}

	var resp struct {
		Detection detectionRecord `json:"detection"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got := resp.Detection.Timestamp; got < before || got > after {
		t.Errorf("defaulted timestamp = %d, want within [%d, %d]", got, before, after)
	}
}

func TestDetections_MissingFieldsRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"missing magnitude", `{"frequency": 18022}`},
		{"missing frequency", `{"magnitude": 22500}`},
		{"zero frequency is falsy", `{"frequency": 0, "magnitude": 22500}`},
		{"zero magnitude is falsy", `{"frequency": 18022, "magnitude": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestServer(t)

			rr := postDetection(t, s, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}

			var resp struct {
				Error    string   `json:"error"`
				Required []string `json:"required"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if len(resp.Required) != 2 || resp.Required[0] != "frequency" || resp.Required[1] != "magnitude" {
				t.Errorf("required = %v, want [frequency magnitude]", resp.Required)
			}
		})
	}
}

func TestDetections_MalformedBody(t *testing.T) {
	s := createTestServer(t)

	rr := postDetection(t, s, `{not json`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}

	var resp struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == "" || resp.Details == "" {
		t.Errorf("error body = %+v, want error and details populated", resp)
	}
}

func TestHealth(t *testing.T) {
	s := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if _, ok := resp["timestamp"]; !ok {
		t.Error("health body missing timestamp")
	}
	if _, ok := resp["uptime"]; !ok {
		t.Error("health body missing uptime")
	}
	if _, ok := resp["memory"]; !ok {
		t.Error("health body missing memory stats")
	}
}

func TestDetections_LoggedToFile(t *testing.T) {
	dir := t.TempDir()
	s := NewServer(dir, nil)

	rr := postDetection(t, s, `{"frequency": 18022, "magnitude": 22500, "timestamp": 1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}

	data, err := os.ReadFile(filepath.Join(dir, "detections.log"))
	if err != nil {
		t.Fatalf("read detections.log: %v", err)
	}
	if !strings.Contains(string(data), "18022") {
		t.Errorf("detections.log missing detection, got %q", string(data))
	}
}

func TestServer_UnwritableLogDirDegrades(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail.
	base := t.TempDir()
	blocker := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("seed blocker file: %v", err)
	}

	s := NewServer(filepath.Join(blocker, "logs"), nil)

	// API still serves despite disabled file logging.
	rr := postDetection(t, s, `{"frequency": 18022, "magnitude": 22500}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 with file logging disabled", rr.Code)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quakewatch/quakewatch/internal/models"
	"github.com/quakewatch/quakewatch/internal/services"
	"github.com/quakewatch/quakewatch/internal/utils"
)

type catalogFunc func(ctx context.Context, filter models.Filter) ([]byte, error)

func (f catalogFunc) Query(ctx context.Context, filter models.Filter) ([]byte, error) {
	return f(ctx, filter)
}

func collectionPayload(t *testing.T, magnitudes []float64, at time.Time) []byte {
	t.Helper()
	features := make([]map[string]any, 0, len(magnitudes))
	for i, mag := range magnitudes {
		features = append(features, map[string]any{
			"id": fmt.Sprintf("ev%d", i),
			"properties": map[string]any{
				"mag":    mag,
				"place":  "10km N of Somewhere",
				"time":   at.UnixMilli(),
				"status": "reviewed",
				"net":    "us",
			},
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{-120.5, 36.2, 8.1},
			},
		})
	}
	payload, err := json.Marshal(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func newTestRouter(t *testing.T, client catalogFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service := services.NewQuakeService(nil, client, nil, services.Config{})
	router := gin.New()
	newHandlers(service, nil).register(router)
	return router
}

func TestListEarthquakes(t *testing.T) {
	at := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return collectionPayload(t, []float64{2.5, 6.1, 4.0}, at), nil
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/earthquakes?start=2025-02-01&end=2025-02-28&min_magnitude=2.0", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Records []models.EarthquakeRecord `json:"records"`
		Summary models.Summary            `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(body.Records))
	}
	if body.Summary.Count != 3 {
		t.Fatalf("summary count = %d, want 3", body.Summary.Count)
	}
	if body.Summary.Strongest == nil || body.Summary.Strongest.Magnitude != 6.1 {
		t.Fatalf("strongest = %+v, want magnitude 6.1", body.Summary.Strongest)
	}
}

func TestListEarthquakesValidation(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		t.Fatal("catalog must not be called for invalid filters")
		return nil, nil
	})

	cases := []struct {
		name  string
		query string
	}{
		{"missing dates", ""},
		{"bad start", "start=February&end=2025-02-28"},
		{"end before start", "start=2025-02-28&end=2025-02-01"},
		{"limit too large", "start=2025-02-01&end=2025-02-28&limit=9999"},
		{"negative offset", "start=2025-02-01&end=2025-02-28&offset=-1"},
		{"partial bounds", "start=2025-02-01&end=2025-02-28&min_latitude=30"},
		{"bad magnitude", "start=2025-02-01&end=2025-02-28&min_magnitude=big"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/earthquakes?"+tc.query, nil)
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListEarthquakesTimeout(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return nil, utils.NewAppError("usgs.query", utils.KindTimeout, "request timed out", context.DeadlineExceeded)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/earthquakes?start=2025-02-01&end=2025-02-28", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["kind"] != utils.KindTimeout {
		t.Fatalf("kind = %q, want %q", body["kind"], utils.KindTimeout)
	}
}

func TestListEarthquakesUpstreamError(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return nil, utils.NewAppError("usgs.query", utils.KindUpstream, "status 503", nil)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/earthquakes?start=2025-02-01&end=2025-02-28", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestStartFetchAccepted(t *testing.T) {
	at := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return collectionPayload(t, []float64{3.3}, at), nil
	})

	body, _ := json.Marshal(map[string]any{
		"start":         "2025-02-01",
		"end":           "2025-02-28",
		"min_magnitude": 2.0,
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["run_id"] == "" {
		t.Fatalf("run_id missing from response")
	}
}

func TestStartFetchRejectsBadBody(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return nil, nil
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", strings.NewReader(`{"start":"2025-02-01"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCancelFetch(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cancel", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestChartsRenderPNG(t *testing.T) {
	at := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return collectionPayload(t, []float64{2.5, 6.1, 4.0}, at), nil
	})

	for _, path := range []string{
		"/api/v1/charts/daily.png",
		"/api/v1/charts/magnitude.png",
	} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, path+"?start=2025-02-01&end=2025-02-28", nil)
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Fatalf("content type = %q", ct)
			}
			if !bytes.HasPrefix(rec.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}) {
				t.Fatalf("body is not a PNG")
			}
		})
	}
}

// closeNotifyRecorder adds the CloseNotify method the streaming handler
// requires from its response writer.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestStreamReplaysSnapshot(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	rec := newCloseNotifyRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil).WithContext(ctx)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "event:snapshot") {
		t.Fatalf("expected a replayed snapshot event, got %q", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, filter models.Filter) ([]byte, error) {
		return nil, nil
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

package openweather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebk/weather-bot/internal/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	c, err := NewClient(Options{
		APIKey:         "test-api-key-12345",
		BaseURL:        srv.URL,
		Lang:           "en",
		Timeout:        time.Second,
		Retries:        retries,
		RetryDelay:     time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		BreakerTimeout: time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "https://api.test.com"}, nil); err == nil {
		t.Error("NewClient() without API key error = nil, want error")
	}
	if _, err := NewClient(Options{APIKey: "test-api-key-12345"}, nil); err == nil {
		t.Error("NewClient() without base URL error = nil, want error")
	}
}

func TestClient_CurrentByCoordinate_BuildsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/weather" {
			t.Errorf("path = %s, want /data/2.5/weather", r.URL.Path)
		}
		q := r.URL.Query()
		for key, want := range map[string]string{
			"lat":   "55.7558",
			"lon":   "37.6173",
			"units": "metric",
			"lang":  "en",
			"appid": "test-api-key-12345",
		} {
			if got := q.Get(key); got != want {
				t.Errorf("query %s = %q, want %q", key, got, want)
			}
		}
		w.Write([]byte(`{"name":"Moscow"}`))
	}))
	defer srv.Close()

	body, err := newTestClient(t, srv, 1).CurrentByCoordinate(context.Background(), domain.Coordinate{Lat: 55.7558, Lon: 37.6173})
	if err != nil {
		t.Fatalf("CurrentByCoordinate() error = %v", err)
	}
	if string(body) != `{"name":"Moscow"}` {
		t.Errorf("CurrentByCoordinate() body = %s", body)
	}
}

func TestClient_Hourly_UsesProHost(t *testing.T) {
	var baseHits atomic.Int32
	base := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		baseHits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer base.Close()
	pro := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/forecast/hourly" {
			t.Errorf("path = %s, want /data/2.5/forecast/hourly", r.URL.Path)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("units = %q, want metric", got)
		}
		w.Write([]byte(`{"list":[]}`))
	}))
	defer pro.Close()

	c, err := NewClient(Options{APIKey: "test-api-key-12345", BaseURL: base.URL, ProBaseURL: pro.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Hourly(context.Background(), domain.Coordinate{Lat: 55.7558, Lon: 37.6173}); err != nil {
		t.Fatalf("Hourly() error = %v", err)
	}
	if baseHits.Load() != 0 {
		t.Error("hourly request went to the base host")
	}
}

func TestClient_AirPollution_OmitsUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/air_pollution" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Has("units") {
			t.Error("air pollution request should not carry units")
		}
		w.Write([]byte(`{"list":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, 1).AirPollution(context.Background(), domain.Coordinate{Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("AirPollution() error = %v", err)
	}
}

func TestClient_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geo/1.0/direct" {
			t.Errorf("path = %s, want /geo/1.0/direct", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Paris" {
			t.Errorf("q = %q, want Paris", got)
		}
		w.Write([]byte(`[{"name":"Paris","lat":48.8566,"lon":2.3522}]`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, 1).Geocode(context.Background(), "Paris"); err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"cod":"404"}`, domain.ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, `{"cod":401}`, domain.ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ErrUpstreamUnavailable},
		{"server error", http.StatusBadGateway, ``, domain.ErrUpstreamUnavailable},
		{"not json", http.StatusOK, `<html>`, domain.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv, 1).Forecast(context.Background(), domain.Coordinate{Lat: 1, Lon: 2})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Forecast() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, 3).CurrentByCoordinate(context.Background(), domain.Coordinate{}); err != nil {
		t.Fatalf("CurrentByCoordinate() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestClient_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).CurrentByCoordinate(context.Background(), domain.Coordinate{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	c.opts.Timeout = 20 * time.Millisecond

	_, err := c.CurrentByCoordinate(context.Background(), domain.Coordinate{})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	for i := 0; i < 5; i++ {
		c.CurrentByCoordinate(context.Background(), domain.Coordinate{})
	}
	before := calls.Load()

	_, err := c.CurrentByCoordinate(context.Background(), domain.Coordinate{})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if calls.Load() != before {
		t.Error("open breaker still let the request through")
	}
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	for i := 0; i < 10; i++ {
		_, err := c.CurrentByCoordinate(context.Background(), domain.Coordinate{})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("call %d error = %v, want ErrNotFound", i, err)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{404, "not_found"},
		{429, "rate_limited"},
		{401, "client_error"},
		{503, "server_error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

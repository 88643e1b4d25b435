package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping() error { return f.err }

func TestOpsRouter_Health(t *testing.T) {
	tests := []struct {
		name     string
		db       fakeDB
		wantCode int
		wantBody string
	}{
		{"healthy", fakeDB{}, http.StatusOK, `"ok"`},
		{"database down", fakeDB{err: errors.New("database is closed")}, http.StatusServiceUnavailable, `"unhealthy"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newOpsRouter(tt.db).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOpsRouter_Metrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newOpsRouter(fakeDB{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

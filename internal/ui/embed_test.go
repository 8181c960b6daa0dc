package ui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	h := Handler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /: status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "puppy-station") {
		t.Fatal("GET /: dashboard page not served")
	}
}

func TestHandler_assets(t *testing.T) {
	h := Handler()
	for _, path := range []string{"/app.js", "/fleet.js", "/style.css"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
			t.Fatalf("GET %s: status=%d len=%d", path, rec.Code, rec.Body.Len())
		}
	}
}

func TestHandler_fallback(t *testing.T) {
	h := Handler()
	req := httptest.NewRequest(http.MethodGet, "/agents/buppy/view", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "puppy-station") {
		t.Fatalf("fallback: status=%d", rec.Code)
	}
}

func TestHandler_indexNotCached(t *testing.T) {
	h := Handler()
	for _, path := range []string{"/", "/index.html", "/missing"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if got := rec.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("GET %s: Cache-Control=%q", path, got)
		}
	}
}

package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeReady struct {
	ready bool
	mode  string
}

func (f fakeReady) Readiness() (bool, string) { return f.ready, f.mode }

func TestReadiness_Handler(t *testing.T) {
	cases := []struct {
		r    fakeReady
		code int
		body string
	}{
		{fakeReady{true, "proxy"}, http.StatusOK, `"status":"ready"`},
		{fakeReady{false, "oauth"}, http.StatusServiceUnavailable, `"status":"not_ready"`},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		Readiness(tc.r)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != tc.code {
			t.Fatalf("status=%d want %d", rr.Code, tc.code)
		}
		if !strings.Contains(rr.Body.String(), tc.body) || !strings.Contains(rr.Body.String(), tc.r.mode) {
			t.Fatalf("body=%s", rr.Body.String())
		}
	}
}

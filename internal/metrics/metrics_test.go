package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersWithoutPanic(t *testing.T) {
	m := New()
	if m.Registry == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestHandler_ServesExposition(t *testing.T) {
	m := New()
	m.ConnectionsTotal.Inc()
	m.DatasetsRegistered.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !contains(body, "livegrapher_connections_total 1") {
		t.Fatalf("expected connections_total in body, got: %s", body)
	}
	if !contains(body, "livegrapher_datasets_registered 3") {
		t.Fatalf("expected datasets_registered in body, got: %s", body)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestTwoInstances_DoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.ConnectionsTotal.Inc()
	if got := testutil.ToFloat64(b.ConnectionsTotal); got != 0 {
		t.Fatalf("expected independent registries to have independent counter state, got %v", got)
	}
	if got := testutil.ToFloat64(a.ConnectionsTotal); got != 1 {
		t.Fatalf("expected a's counter to be 1, got %v", got)
	}
}

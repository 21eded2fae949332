package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestMetrics_RunLifecycle(t *testing.T) {
	m := New()

	m.RunStarted()
	m.RunCompleted(120*time.Millisecond, 50, 321.5, 4.2e9, 1.31)

	body := scrape(t, m)
	for _, want := range []string{
		"gcrsim_runs_started_total 1",
		"gcrsim_runs_completed_total 1",
		"gcrsim_ticks_total 50",
		"gcrsim_last_run_final_co2_ppm 321.5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_AbortedRuns(t *testing.T) {
	m := New()

	m.RunStarted()
	m.RunAborted(10*time.Millisecond, 12)

	body := scrape(t, m)
	if !strings.Contains(body, "gcrsim_runs_aborted_total 1") {
		t.Error("aborted counter not recorded")
	}
	if !strings.Contains(body, "gcrsim_ticks_total 12") {
		t.Error("completed ticks before abort not recorded")
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RunStarted()

	if strings.Contains(scrape(t, b), "gcrsim_runs_started_total 1") {
		t.Error("registries shared state across instances")
	}
}

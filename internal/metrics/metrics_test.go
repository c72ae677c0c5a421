package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから名前とラベルが一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}

func TestRecordAuthAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthAttempt("login", OutcomeSuccess, 20*time.Millisecond)
	c.RecordAuthAttempt("login", OutcomeSuccess, 30*time.Millisecond)
	c.RecordAuthAttempt("login", OutcomeFailure, 10*time.Millisecond)

	m := findMetric(t, reg, "travelmate_auth_attempts_total", map[string]string{"flow": "login", "outcome": OutcomeSuccess})
	if m == nil {
		t.Fatal("auth attempts metric not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("login success = %v, want 2", got)
	}

	h := findMetric(t, reg, "travelmate_auth_duration_seconds", map[string]string{"flow": "login"})
	if h == nil {
		t.Fatal("auth duration metric not found")
	}
	if got := h.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("sample count = %d, want 3", got)
	}
}

func TestRecordGuardDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGuardDecision(GuardLocal)
	c.RecordGuardDecision(GuardProvider)
	c.RecordGuardDecision(GuardLocal)

	m := findMetric(t, reg, "travelmate_auth_guard_total", map[string]string{"decision": GuardLocal})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("guard local = %v, want 2", m)
	}
}

func TestRecordCleanupAndActiveSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCleanup("sessions", 3)
	c.RecordCleanup("sessions", 2)
	c.SetActiveSessions(7)

	m := findMetric(t, reg, "travelmate_cleanup_removed_total", map[string]string{"kind": "sessions"})
	if m == nil || m.GetCounter().GetValue() != 5 {
		t.Errorf("cleanup removed = %v, want 5", m)
	}
	g := findMetric(t, reg, "travelmate_active_sessions", nil)
	if g == nil || g.GetGauge().GetValue() != 7 {
		t.Errorf("active sessions = %v, want 7", g)
	}
}

func TestRecordHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(401)
	c.RecordHTTPStatus(401)
	c.RecordHTTPStatus(200)

	m := findMetric(t, reg, "travelmate_http_status_total", map[string]string{"status_code": "401"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("status 401 = %v, want 2", m)
	}
}

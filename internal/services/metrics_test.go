package services

import (
	"testing"
	"time"

	"nurse-handover/backend/internal/models"
)

func TestMetricsJobLifecycle(t *testing.T) {
	m := NewMetrics()

	m.JobStarted()
	m.JobStarted()
	if m.GetInFlight() != 2 {
		t.Fatalf("in flight = %d", m.GetInFlight())
	}
	m.JobFinished(models.StatusComplete)
	m.JobFinished(models.StatusError)

	if m.GetInFlight() != 0 || m.GetCompleted() != 1 || m.GetFailed() != 1 {
		t.Errorf("inFlight=%d completed=%d failed=%d", m.GetInFlight(), m.GetCompleted(), m.GetFailed())
	}
}

func TestMetricsAverages(t *testing.T) {
	m := NewMetrics()
	if m.GetAvgTranscribeLatency() != 0 {
		t.Error("empty average must be zero")
	}
	m.RecordTranscribeLatency(100 * time.Millisecond)
	m.RecordTranscribeLatency(300 * time.Millisecond)
	if got := m.GetAvgTranscribeLatency(); got != 200 {
		t.Errorf("avg transcribe latency = %v", got)
	}

	snap := m.Snapshot()
	if _, ok := snap["pipeline"]; !ok {
		t.Error("snapshot missing pipeline section")
	}
}

func TestGetMetricsSingleton(t *testing.T) {
	if GetMetrics() != GetMetrics() {
		t.Error("GetMetrics must return one instance")
	}
}

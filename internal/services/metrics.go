package services

import (
	"sync"
	"sync/atomic"
	"time"

	"nurse-handover/backend/internal/models"
)

// Metrics counts pipeline and websocket activity. All methods are safe for
// concurrent use.
type Metrics struct {
	uploads       atomic.Int64
	rejected      atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64
	inFlight      atomic.Int32
	lastCompleted atomic.Int64

	transcribeCount   atomic.Int64
	transcribeLatency atomic.Int64
	reportCount       atomic.Int64
	reportLatency     atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func NewMetrics() *Metrics {
	return &Metrics{}
}

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

func (m *Metrics) IncrementUploads() {
	m.uploads.Add(1)
}

// IncrementRejected counts uploads refused because the pipeline was full or
// stopped.
func (m *Metrics) IncrementRejected() {
	m.rejected.Add(1)
}

func (m *Metrics) JobStarted() {
	m.inFlight.Add(1)
}

// JobFinished records the terminal status a job reached.
func (m *Metrics) JobFinished(status models.HandoverStatus) {
	m.inFlight.Add(-1)
	switch status {
	case models.StatusComplete:
		m.completed.Add(1)
		m.lastCompleted.Store(time.Now().Unix())
	case models.StatusError:
		m.failed.Add(1)
	}
}

func (m *Metrics) RecordTranscribeLatency(d time.Duration) {
	m.transcribeCount.Add(1)
	m.transcribeLatency.Add(d.Milliseconds())
}

func (m *Metrics) RecordReportLatency(d time.Duration) {
	m.reportCount.Add(1)
	m.reportLatency.Add(d.Milliseconds())
}

func (m *Metrics) GetCompleted() int64 {
	return m.completed.Load()
}

func (m *Metrics) GetFailed() int64 {
	return m.failed.Load()
}

func (m *Metrics) GetInFlight() int {
	return int(m.inFlight.Load())
}

func avg(total, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func (m *Metrics) GetAvgTranscribeLatency() float64 {
	return avg(m.transcribeLatency.Load(), m.transcribeCount.Load())
}

func (m *Metrics) GetAvgReportLatency() float64 {
	return avg(m.reportLatency.Load(), m.reportCount.Load())
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

// Snapshot returns every counter for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"pipeline": map[string]interface{}{
			"uploads":                   m.uploads.Load(),
			"rejected":                  m.rejected.Load(),
			"completed":                 m.completed.Load(),
			"failed":                    m.failed.Load(),
			"in_flight":                 m.inFlight.Load(),
			"last_completed":            m.lastCompleted.Load(),
			"avg_transcribe_latency_ms": m.GetAvgTranscribeLatency(),
			"avg_report_latency_ms":     m.GetAvgReportLatency(),
		},
		"websocket": map[string]interface{}{
			"connections": m.wsConnections.Load(),
			"messages":    m.wsMessages.Load(),
			"errors":      m.wsErrors.Load(),
		},
	}
}

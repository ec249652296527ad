package pipeline

import (
	"context"
	"sync"

	"nurse-handover/backend/internal/models"
	"nurse-handover/backend/internal/services"
)

type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, handle string) (string, error)
}

func (m *MockTranscriber) Transcribe(ctx context.Context, handle string) (string, error) {
	return m.TranscribeFunc(ctx, handle)
}

type MockReporter struct {
	GenerateReportFunc func(ctx context.Context, transcript string, pc services.PatientContext) (*models.ISBARReport, error)
}

func (m *MockReporter) GenerateReport(ctx context.Context, transcript string, pc services.PatientContext) (*models.ISBARReport, error) {
	return m.GenerateReportFunc(ctx, transcript, pc)
}

// recorder keeps every published status per handover.
type recorder struct {
	mu     sync.Mutex
	events map[int64][]models.HandoverStatus
}

func newRecorder() *recorder {
	return &recorder{events: map[int64][]models.HandoverStatus{}}
}

func (r *recorder) Publish(_ context.Context, ev models.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.HandoverID] = append(r.events[ev.HandoverID], ev.Status)
	return nil
}

func (r *recorder) sequence(id int64) []models.HandoverStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.HandoverStatus(nil), r.events[id]...)
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
	"nurse-handover/backend/internal/services"
)

type fixture struct {
	handovers *database.HandoverStore
	patients  *database.PatientStore
	patient   *models.Patient
	nurse     *models.User
	events    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.SQLite, filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		handovers: database.NewHandoverStore(db),
		patients:  database.NewPatientStore(db),
		events:    newRecorder(),
	}
	f.nurse, err = database.NewUserStore(db).WithCost(bcrypt.MinCost).CreateUser(ctx, models.NewUser{
		EmployeeID: "N001", Name: "Ada", Password: "secret123", Department: "ICU",
	})
	if err != nil {
		t.Fatal(err)
	}
	room := "12B"
	f.patient, err = f.patients.CreatePatient(ctx, models.NewPatient{PatientID: "P042", Name: "John Smith", Room: &room})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) newHandover(t *testing.T, patientID int64) *models.Handover {
	t.Helper()
	h, err := f.handovers.CreateHandover(context.Background(), models.NewHandover{
		PatientID: patientID, NurseID: f.nurse.ID, AudioPath: "uploads/handover-1-abc.webm",
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (f *fixture) pipeline(cfg Config, tr Transcriber, rep Reporter) *Pipeline {
	return New(cfg, Deps{
		Handovers:   f.handovers,
		Patients:    f.patients,
		Transcriber: tr,
		Reporter:    rep,
		Publisher:   f.events,
	}, zerolog.Nop())
}

func okTranscriber(text string) *MockTranscriber {
	return &MockTranscriber{TranscribeFunc: func(context.Context, string) (string, error) { return text, nil }}
}

func okReporter() *MockReporter {
	return &MockReporter{GenerateReportFunc: func(_ context.Context, transcript string, pc services.PatientContext) (*models.ISBARReport, error) {
		return &models.ISBARReport{
			Identify:       pc.Name + " " + pc.PatientID,
			Situation:      transcript,
			Background:     "b",
			Assessment:     "a",
			Recommendation: "r",
			Summary:        "s",
			Priority:       models.PriorityHigh,
			KeyPoints:      []string{"k"},
			ActionItems:    []string{"act"},
		}, nil
	}}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t)
	h := f.newHandover(t, f.patient.ID)

	var gotContext services.PatientContext
	rep := okReporter()
	inner := rep.GenerateReportFunc
	rep.GenerateReportFunc = func(ctx context.Context, tr string, pc services.PatientContext) (*models.ISBARReport, error) {
		gotContext = pc
		return inner(ctx, tr, pc)
	}

	p := f.pipeline(Config{}, okTranscriber("Stable overnight."), rep)
	if status := p.Process(context.Background(), JobFor(h)); status != models.StatusComplete {
		t.Fatalf("final status = %s", status)
	}

	got, err := f.handovers.GetHandover(context.Background(), h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusComplete || got.Transcription == nil || *got.Transcription != "Stable overnight." {
		t.Errorf("handover = %+v", got)
	}
	if got.Report == nil || got.Report.Identify != "John Smith P042" || got.Report.Situation != "Stable overnight." {
		t.Errorf("report = %+v", got.Report)
	}
	if gotContext.Room != "12B" {
		t.Errorf("patient context = %+v", gotContext)
	}

	want := []models.HandoverStatus{models.StatusTranscribed, models.StatusComplete}
	if seq := f.events.sequence(h.ID); !reflect.DeepEqual(seq, want) {
		t.Errorf("events = %v, want %v", seq, want)
	}
}

func TestProcessTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	h := f.newHandover(t, f.patient.ID)

	reportCalled := false
	rep := &MockReporter{GenerateReportFunc: func(context.Context, string, services.PatientContext) (*models.ISBARReport, error) {
		reportCalled = true
		return nil, nil
	}}
	tr := &MockTranscriber{TranscribeFunc: func(context.Context, string) (string, error) {
		return "", errs.Transcription(errors.New("unsupported format"))
	}}

	p := f.pipeline(Config{}, tr, rep)
	if status := p.Process(context.Background(), JobFor(h)); status != models.StatusError {
		t.Fatalf("final status = %s", status)
	}
	if reportCalled {
		t.Error("report step must not run after a transcription failure")
	}

	got, _ := f.handovers.GetHandover(context.Background(), h.ID)
	if got.Status != models.StatusError || got.Transcription != nil {
		t.Errorf("handover = %+v", got)
	}
	if seq := f.events.sequence(h.ID); !reflect.DeepEqual(seq, []models.HandoverStatus{models.StatusError}) {
		t.Errorf("events = %v", seq)
	}
}

func TestProcessUnknownPatientKeepsTranscription(t *testing.T) {
	f := newFixture(t)
	h := f.newHandover(t, 9999)

	p := f.pipeline(Config{}, okTranscriber("Transcript survives."), okReporter())
	if status := p.Process(context.Background(), JobFor(h)); status != models.StatusError {
		t.Fatalf("final status = %s", status)
	}

	got, _ := f.handovers.GetHandover(context.Background(), h.ID)
	if got.Status != models.StatusError {
		t.Errorf("status = %s", got.Status)
	}
	if got.Transcription == nil || *got.Transcription != "Transcript survives." {
		t.Errorf("transcription lost: %v", got.Transcription)
	}
	if got.Report != nil {
		t.Error("no report expected")
	}

	want := []models.HandoverStatus{models.StatusTranscribed, models.StatusError}
	if seq := f.events.sequence(h.ID); !reflect.DeepEqual(seq, want) {
		t.Errorf("events = %v, want %v", seq, want)
	}
}

func TestProcessReportFailure(t *testing.T) {
	f := newFixture(t)
	h := f.newHandover(t, f.patient.ID)

	rep := &MockReporter{GenerateReportFunc: func(context.Context, string, services.PatientContext) (*models.ISBARReport, error) {
		return nil, errs.ReportGeneration(errors.New("invalid json"))
	}}
	p := f.pipeline(Config{}, okTranscriber("text"), rep)
	if status := p.Process(context.Background(), JobFor(h)); status != models.StatusError {
		t.Fatalf("final status = %s", status)
	}
	got, _ := f.handovers.GetHandover(context.Background(), h.ID)
	if got.Transcription == nil || got.Report != nil {
		t.Errorf("handover = %+v", got)
	}
}

func TestProcessRecoversPanics(t *testing.T) {
	f := newFixture(t)
	h := f.newHandover(t, f.patient.ID)

	tr := &MockTranscriber{TranscribeFunc: func(context.Context, string) (string, error) { panic("boom") }}
	p := f.pipeline(Config{}, tr, okReporter())
	if status := p.Process(context.Background(), JobFor(h)); status != models.StatusError {
		t.Fatalf("final status = %s", status)
	}
	got, _ := f.handovers.GetHandover(context.Background(), h.ID)
	if got.Status != models.StatusError {
		t.Errorf("status = %s", got.Status)
	}
}

func TestProcessTimesOutHungTranscription(t *testing.T) {
	f := newFixture(t)
	h := f.newHandover(t, f.patient.ID)

	tr := &MockTranscriber{TranscribeFunc: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", errs.Transcription(ctx.Err())
	}}
	p := f.pipeline(Config{TranscribeTimeout: 20 * time.Millisecond}, tr, okReporter())
	if status := p.Process(context.Background(), JobFor(h)); status != models.StatusError {
		t.Fatalf("final status = %s", status)
	}
}

func TestWorkersDrainQueueOnStop(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(Config{Workers: 2, QueueSize: 8}, okTranscriber("t"), okReporter())
	p.Start()
	if !p.Running() {
		t.Fatal("pipeline not running after Start")
	}

	var ids []int64
	for i := 0; i < 5; i++ {
		h := f.newHandover(t, f.patient.ID)
		ids = append(ids, h.ID)
		if err := p.Submit(JobFor(h)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, id := range ids {
		h, _ := f.handovers.GetHandover(context.Background(), id)
		if h.Status != models.StatusComplete {
			t.Errorf("handover %d status = %s", id, h.Status)
		}
	}
	if err := p.Submit(Job{HandoverID: 1}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Stop = %v", err)
	}
}

func TestSubmitOrFailWhenQueueFull(t *testing.T) {
	f := newFixture(t)
	// not started: nothing drains the queue
	p := f.pipeline(Config{Workers: 1, QueueSize: 1}, okTranscriber("t"), okReporter())

	first := f.newHandover(t, f.patient.ID)
	if err := p.SubmitOrFail(context.Background(), JobFor(first)); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := f.newHandover(t, f.patient.ID)
	err := p.SubmitOrFail(context.Background(), JobFor(second))
	if errs.KindOf(err) != errs.KindUnavailable || !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected unavailable queue-full error, got %v", err)
	}

	got, _ := f.handovers.GetHandover(context.Background(), second.ID)
	if got.Status != models.StatusError {
		t.Errorf("rejected handover status = %s", got.Status)
	}
	if p.QueueDepth() != 1 {
		t.Errorf("queue depth = %d", p.QueueDepth())
	}
}

func TestObservedSequencesAreLegal(t *testing.T) {
	f := newFixture(t)
	legal := [][]models.HandoverStatus{
		{models.StatusTranscribed, models.StatusComplete},
		{models.StatusError},
		{models.StatusTranscribed, models.StatusError},
	}

	failTranscribe := &MockTranscriber{TranscribeFunc: func(context.Context, string) (string, error) {
		return "", errors.New("x")
	}}
	failReport := &MockReporter{GenerateReportFunc: func(context.Context, string, services.PatientContext) (*models.ISBARReport, error) {
		return nil, errors.New("x")
	}}
	cases := []*Pipeline{
		f.pipeline(Config{}, okTranscriber("t"), okReporter()),
		f.pipeline(Config{}, failTranscribe, okReporter()),
		f.pipeline(Config{}, okTranscriber("t"), failReport),
	}

	for i, p := range cases {
		h := f.newHandover(t, f.patient.ID)
		p.Process(context.Background(), JobFor(h))
		seq := f.events.sequence(h.ID)
		if !reflect.DeepEqual(seq, legal[i]) {
			t.Errorf("case %d: sequence %v, want %v", i, seq, legal[i])
		}
	}
}

// Package pipeline turns accepted handover recordings into transcripts and
// ISBAR reports on a bounded pool of background workers.
//
// A handover moves processing -> transcribed -> complete, or to error from
// either of the first two. The pipeline is the only writer of those
// transitions and never writes one that models.CanTransition rejects.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
	"nurse-handover/backend/internal/services"
)

var (
	ErrQueueFull = errors.New("pipeline queue is full")
	ErrStopped   = errors.New("pipeline is stopped")
)

type HandoverUpdater interface {
	UpdateHandover(ctx context.Context, id int64, upd models.HandoverUpdate) (*models.Handover, error)
}

type PatientGetter interface {
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, handle string) (string, error)
}

type Reporter interface {
	GenerateReport(ctx context.Context, transcript string, pc services.PatientContext) (*models.ISBARReport, error)
}

// Job identifies one accepted handover.
type Job struct {
	HandoverID int64
	PatientID  int64
	NurseID    int64
	AudioPath  string
}

func JobFor(h *models.Handover) Job {
	return Job{HandoverID: h.ID, PatientID: h.PatientID, NurseID: h.NurseID, AudioPath: h.AudioPath}
}

type Config struct {
	Workers           int
	QueueSize         int
	TranscribeTimeout time.Duration
	ReportTimeout     time.Duration
}

type Deps struct {
	Handovers   HandoverUpdater
	Patients    PatientGetter
	Transcriber Transcriber
	Reporter    Reporter
	Publisher   services.Publisher
	Metrics     *services.Metrics
}

type Pipeline struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	jobs chan Job

	mu      sync.RWMutex
	started bool
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, deps Deps, log zerolog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 2 * time.Minute
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = time.Minute
	}
	if deps.Metrics == nil {
		deps.Metrics = services.NewMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		log:    log.With().Str("component", "pipeline").Logger(),
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. It is a no-op after the first call.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.cfg.Workers).Int("queue", p.cfg.QueueSize).Msg("pipeline started")
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		status := p.Process(p.ctx, job)
		p.log.Debug().Int("worker", id).Int64("handover_id", job.HandoverID).Str("status", string(status)).Msg("job finished")
	}
}

// Submit queues job without blocking.
func (p *Pipeline) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitOrFail queues job. When the pipeline cannot take it, the handover is
// moved to error and an Unavailable error is returned.
func (p *Pipeline) SubmitOrFail(ctx context.Context, job Job) error {
	err := p.Submit(job)
	if err == nil {
		return nil
	}
	p.deps.Metrics.IncrementRejected()
	p.fail(ctx, job, models.StatusProcessing, err)
	return errs.Unavailable("handover pipeline is busy, please retry", err)
}

// Stop refuses new jobs and waits for queued ones to finish. If ctx ends
// first, in-flight calls are cancelled and ctx's error is returned.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info().Msg("pipeline drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.log.Warn().Int("abandoned", len(p.jobs)).Msg("pipeline stop timed out")
		return ctx.Err()
	}
}

func (p *Pipeline) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started && !p.stopped
}

func (p *Pipeline) QueueDepth() int {
	return len(p.jobs)
}

func (p *Pipeline) Workers() int {
	return p.cfg.Workers
}

// Process runs one job to a terminal status and returns the status the
// handover was left in. Panics are recovered and treated as failures.
func (p *Pipeline) Process(ctx context.Context, job Job) (final models.HandoverStatus) {
	log := p.log.With().Int64("handover_id", job.HandoverID).Int64("patient_id", job.PatientID).Logger()
	status := models.StatusProcessing

	p.deps.Metrics.JobStarted()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline job panicked")
			status = p.fail(ctx, job, status, fmt.Errorf("panic: %v", r))
		}
		p.deps.Metrics.JobFinished(status)
		final = status
	}()

	tctx, cancel := context.WithTimeout(ctx, p.cfg.TranscribeTimeout)
	start := time.Now()
	text, err := p.deps.Transcriber.Transcribe(tctx, job.AudioPath)
	cancel()
	p.deps.Metrics.RecordTranscribeLatency(time.Since(start))
	if err != nil {
		status = p.fail(ctx, job, status, err)
		return
	}

	status, err = p.advance(ctx, status, job, models.HandoverUpdate{
		Transcription: &text,
		Status:        models.StatusPtr(models.StatusTranscribed),
	})
	if err != nil {
		status = p.fail(ctx, job, status, err)
		return
	}

	patient, err := p.deps.Patients.GetPatient(ctx, job.PatientID)
	if err != nil {
		status = p.fail(ctx, job, status, fmt.Errorf("load patient: %w", err))
		return
	}

	rctx, cancel := context.WithTimeout(ctx, p.cfg.ReportTimeout)
	start = time.Now()
	report, err := p.deps.Reporter.GenerateReport(rctx, text, services.PatientContextOf(patient))
	cancel()
	p.deps.Metrics.RecordReportLatency(time.Since(start))
	if err != nil {
		status = p.fail(ctx, job, status, err)
		return
	}

	status, err = p.advance(ctx, status, job, models.HandoverUpdate{
		Report: report,
		Status: models.StatusPtr(models.StatusComplete),
	})
	if err != nil {
		status = p.fail(ctx, job, status, err)
		return
	}

	log.Info().Str("priority", string(report.Priority)).Msg("handover complete")
	return
}

// advance writes upd and publishes the new status. It returns the status
// the handover is in afterwards.
func (p *Pipeline) advance(ctx context.Context, from models.HandoverStatus, job Job, upd models.HandoverUpdate) (models.HandoverStatus, error) {
	to := *upd.Status
	if !models.CanTransition(from, to) {
		return from, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	h, err := p.deps.Handovers.UpdateHandover(ctx, job.HandoverID, upd)
	if err != nil {
		return from, fmt.Errorf("update handover to %s: %w", to, err)
	}
	p.publish(ctx, h)
	return to, nil
}

// fail moves the handover to error, leaving every other field as it is.
// The cause is logged only. It uses a context detached from ctx so a
// cancelled job still records its failure.
func (p *Pipeline) fail(ctx context.Context, job Job, from models.HandoverStatus, cause error) models.HandoverStatus {
	p.log.Error().Err(cause).Int64("handover_id", job.HandoverID).Str("from", string(from)).Msg("handover failed")

	if !models.CanTransition(from, models.StatusError) {
		return from
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	h, err := p.deps.Handovers.UpdateHandover(wctx, job.HandoverID, models.HandoverUpdate{
		Status: models.StatusPtr(models.StatusError),
	})
	if err != nil {
		p.log.Error().Err(err).Int64("handover_id", job.HandoverID).Msg("failed to record handover error")
		return from
	}
	p.publish(wctx, h)
	return models.StatusError
}

func (p *Pipeline) publish(ctx context.Context, h *models.Handover) {
	if p.deps.Publisher == nil {
		return
	}
	if err := p.deps.Publisher.Publish(ctx, models.NewStatusEvent(h)); err != nil {
		p.log.Warn().Err(err).Int64("handover_id", h.ID).Msg("status event not delivered")
	}
}

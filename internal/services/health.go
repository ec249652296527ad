package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	DatabaseService = "handover.database"
	PipelineService = "handover.pipeline"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type RunningChecker interface {
	Running() bool
}

// HealthReporter keeps the gRPC health service in step with the database
// and the pipeline. The overall ("") service is SERVING only when both are.
type HealthReporter struct {
	srv      *health.Server
	db       Pinger
	pipeline RunningChecker
	interval time.Duration
	log      zerolog.Logger
}

func NewHealthReporter(srv *health.Server, db Pinger, pipeline RunningChecker, interval time.Duration, log zerolog.Logger) *HealthReporter {
	return &HealthReporter{
		srv:      srv,
		db:       db,
		pipeline: pipeline,
		interval: interval,
		log:      log.With().Str("component", "health").Logger(),
	}
}

// Check runs one probe and updates every service status.
func (h *HealthReporter) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	dbOK := h.db.PingContext(pingCtx) == nil
	pipelineOK := h.pipeline.Running()

	h.srv.SetServingStatus(DatabaseService, servingStatus(dbOK))
	h.srv.SetServingStatus(PipelineService, servingStatus(pipelineOK))
	h.srv.SetServingStatus("", servingStatus(dbOK && pipelineOK))

	if !dbOK || !pipelineOK {
		h.log.Warn().Bool("database", dbOK).Bool("pipeline", pipelineOK).Msg("health degraded")
	}
	return dbOK && pipelineOK
}

// Run probes every interval until ctx is done, then marks everything
// NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

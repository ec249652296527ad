package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"nurse-handover/backend/internal/models"
)

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	dbOK := s.DB == nil || s.DB.PingContext(ctx) == nil
	status := models.HealthStatus{
		Status:        "healthy",
		Database:      dbOK,
		QueueDepth:    s.Pipeline.QueueDepth(),
		Workers:       s.Pipeline.Workers(),
		ActiveClients: s.Hub.Count(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Version:       s.Version,
	}

	code := http.StatusOK
	if !dbOK || !s.Pipeline.Running() {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (s *Server) handleMetrics(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	snapshot["active_clients"] = s.Hub.Count()
	snapshot["queue_depth"] = s.Pipeline.QueueDepth()
	snapshot["system_uptime_sec"] = int(time.Since(s.started).Seconds())
	snapshot["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return c.JSON(http.StatusOK, snapshot)
}

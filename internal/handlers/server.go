package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"nurse-handover/backend/internal/auth"
	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
	"nurse-handover/backend/internal/pipeline"
	"nurse-handover/backend/internal/services"
)

// Pipeline is what the handlers need from *pipeline.Pipeline.
type Pipeline interface {
	SubmitOrFail(ctx context.Context, job pipeline.Job) error
	QueueDepth() int
	Workers() int
	Running() bool
}

type Deps struct {
	DB        services.Pinger
	Users     *database.UserStore
	Patients  *database.PatientStore
	Handovers *database.HandoverStore
	Audio     *services.AudioIngest
	Pipeline  Pipeline
	Tokens    *auth.TokenManager
	Hub       *Hub
	Events    services.Publisher
	Metrics   *services.Metrics
	Version   string
}

type Server struct {
	Deps
	log     zerolog.Logger
	started time.Time
}

func New(deps Deps, log zerolog.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = services.GetMetrics()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Metrics, log)
	}
	if deps.Events == nil {
		deps.Events = deps.Hub
	}
	return &Server{Deps: deps, log: log.With().Str("component", "http").Logger(), started: time.Now()}
}

// Router builds the echo instance with every route and middleware.
func (s *Server) Router(corsOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	e.GET("/ws", s.handleWebSocket)

	api := e.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/metrics", s.handleMetrics)
	api.POST("/auth/login", s.Login)
	api.POST("/auth/register", s.Register)
	api.POST("/forgot-password", s.ForgotPassword)

	protected := api.Group("", auth.Middleware(s.Tokens))
	protected.POST("/auth/logout", s.Logout)

	protected.GET("/user/profile", s.GetProfile)
	protected.PUT("/user/profile", s.UpdateProfile)
	protected.POST("/user/change-password", s.ChangePassword)
	protected.GET("/user/reports", s.GetReports)

	protected.GET("/patients/search", s.SearchPatients)
	protected.GET("/patients/external/:patientId", s.GetPatientByExternalID)
	protected.GET("/patients/:id", s.GetPatient)
	protected.POST("/patients", s.CreatePatient)
	protected.PATCH("/patients/:id/status", s.UpdatePatientStatus)

	uploadLimit := fmt.Sprintf("%dK", (s.Audio.MaxBytes()+1<<20)>>10)
	protected.POST("/handovers", s.CreateHandover, middleware.BodyLimit(uploadLimit))
	protected.GET("/handovers/my", s.MyHandovers)
	protected.GET("/handovers/all", s.AllHandovers)
	protected.GET("/handovers/recent", s.RecentHandovers)
	protected.GET("/handovers/export", s.ExportHandovers)
	protected.GET("/handovers/patient/:patientId", s.PatientHandovers)
	protected.GET("/handovers/:id", s.GetHandover)

	protected.GET("/dashboard/stats", s.DashboardStats)

	return e
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = s.log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

// handleError is the single place errors become HTTP responses.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, models.ErrorResponse{Message: msg, Code: code, Timestamp: time.Now().UnixMilli()})
}

func statusFor(err error) (int, string, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message), ""
	}

	var e *errs.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "Internal server error", errs.KindInternal.String()
	}

	switch e.Kind {
	case errs.KindValidation, errs.KindConflict:
		return http.StatusBadRequest, e.Msg, e.Kind.String()
	case errs.KindAuth:
		return http.StatusUnauthorized, e.Msg, e.Kind.String()
	case errs.KindForbidden:
		return http.StatusForbidden, e.Msg, e.Kind.String()
	case errs.KindNotFound:
		return http.StatusNotFound, e.Msg, e.Kind.String()
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable, e.Msg, e.Kind.String()
	default:
		return http.StatusInternalServerError, "Internal server error", errs.KindInternal.String()
	}
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errs.Validation("invalid request body")
	}
	return nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validation("invalid %s", name)
	}
	return id, nil
}

// queryLimit reads ?limit=, falling back to def and capping at max.
func queryLimit(c echo.Context, def, max int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errs.Validation("limit must be a positive integer")
	}
	return min(n, max), nil
}

func identity(c echo.Context) (*auth.Identity, error) {
	id := auth.FromContext(c)
	if id == nil {
		return nil, errs.Auth("Access token required")
	}
	return id, nil
}

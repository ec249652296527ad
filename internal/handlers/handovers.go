package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/labstack/echo/v4"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
	"nurse-handover/backend/internal/pipeline"
	"nurse-handover/backend/internal/services"
)

const (
	defaultAllLimit    = 50
	defaultRecentLimit = 10
)

// CreateHandover accepts a multipart upload with an "audio" file and a
// "patientId" field, records a processing handover and queues it.
func (s *Server) CreateHandover(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	fh, err := c.FormFile("audio")
	if err != nil {
		return errs.Validation("Audio file is required")
	}
	patientID, err := strconv.ParseInt(strings.TrimSpace(c.FormValue("patientId")), 10, 64)
	if err != nil || patientID <= 0 {
		return errs.Validation("patientId is required")
	}

	upload := services.AudioUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
	}
	if err := s.Audio.Validate(upload); err != nil {
		return err
	}
	if _, err := s.Patients.GetPatient(ctx, patientID); err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return errs.Validation("could not read audio file")
	}
	defer f.Close()
	upload.Body = f

	handle, err := s.Audio.Save(ctx, upload)
	if err != nil {
		return err
	}

	h, err := s.Handovers.CreateHandover(ctx, models.NewHandover{
		PatientID: patientID,
		NurseID:   id.UserID,
		AudioPath: handle,
	})
	if err != nil {
		s.Audio.Discard(ctx, handle)
		return err
	}
	s.Metrics.IncrementUploads()
	s.log.Info().Int64("handover_id", h.ID).Int64("patient_id", patientID).Int64("nurse_id", id.UserID).Msg("handover uploaded")

	if err := s.Events.Publish(ctx, models.NewStatusEvent(h)); err != nil {
		s.log.Warn().Err(err).Int64("handover_id", h.ID).Msg("publish upload event")
	}
	if err := s.Pipeline.SubmitOrFail(ctx, pipeline.JobFor(h)); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, h)
}

func (s *Server) GetHandover(c echo.Context) error {
	hid, err := pathID(c, "id")
	if err != nil {
		return err
	}
	h, err := s.Handovers.GetHandover(c.Request().Context(), hid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h)
}

func (s *Server) MyHandovers(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	list, err := s.Handovers.ListByNurse(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) AllHandovers(c echo.Context) error {
	limit, err := queryLimit(c, defaultAllLimit, maxListLimit)
	if err != nil {
		return err
	}
	list, err := s.Handovers.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) RecentHandovers(c echo.Context) error {
	limit, err := queryLimit(c, defaultRecentLimit, maxListLimit)
	if err != nil {
		return err
	}
	list, err := s.Handovers.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) PatientHandovers(c echo.Context) error {
	pid, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	list, err := s.Handovers.ListByPatient(c.Request().Context(), pid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) ExportHandovers(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	data, err := s.Handovers.ExportCSV(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}

	name := slug.Make(id.EmployeeID)
	if name == "" {
		name = strconv.FormatInt(id.UserID, 10)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "handovers-"+name+".csv"))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}

// DashboardStats counts the caller's own handovers.
func (s *Server) DashboardStats(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var stats models.DashboardStats
	if stats.TodayHandovers, err = s.Handovers.CountSince(ctx, id.UserID, midnight); err != nil {
		return err
	}
	if stats.TotalHandovers, err = s.Handovers.CountByNurse(ctx, id.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

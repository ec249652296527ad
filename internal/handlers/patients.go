package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

const (
	defaultPatientLimit = 100
	maxListLimit        = 500
)

func (s *Server) SearchPatients(c echo.Context) error {
	limit, err := queryLimit(c, defaultPatientLimit, maxListLimit)
	if err != nil {
		return err
	}
	status := models.PatientStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return errs.Validation("unknown patient status %q", status)
	}

	patients, err := s.Patients.SearchPatients(c.Request().Context(), database.PatientFilter{
		Query:  c.QueryParam("query"),
		Ward:   c.QueryParam("ward"),
		Status: status,
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patients)
}

func (s *Server) GetPatient(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := s.Patients.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) GetPatientByExternalID(c echo.Context) error {
	p, err := s.Patients.GetPatientByExternalID(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) CreatePatient(c echo.Context) error {
	var np models.NewPatient
	if err := bind(c, &np); err != nil {
		return err
	}
	p, err := s.Patients.CreatePatient(c.Request().Context(), np)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) UpdatePatientStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req models.PatientStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := s.Patients.UpdatePatientStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

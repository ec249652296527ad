package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

func (s *Server) GetProfile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	user, err := s.Users.GetUser(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) UpdateProfile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var upd models.ProfileUpdate
	if err := bind(c, &upd); err != nil {
		return err
	}

	user, err := s.Users.UpdateProfile(c.Request().Context(), id.UserID, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) ChangePassword(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req models.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return errs.Validation("Current and new password are required")
	}

	ctx := c.Request().Context()
	user, err := s.Users.ValidateUser(ctx, id.EmployeeID, req.CurrentPassword)
	if err != nil {
		return err
	}
	if user == nil || user.ID != id.UserID {
		return errs.Validation("Current password is incorrect")
	}
	if err := s.Users.ChangePassword(ctx, id.UserID, req.NewPassword); err != nil {
		return err
	}

	s.log.Info().Int64("user", id.UserID).Msg("password changed")
	return c.JSON(http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (s *Server) GetReports(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var report models.UserReport
	if report.MyHandoversCount, err = s.Handovers.CountByNurse(ctx, id.UserID); err != nil {
		return err
	}
	if report.TotalHandoversCount, err = s.Handovers.CountAll(ctx); err != nil {
		return err
	}
	if report.TotalPatients, err = s.Patients.CountPatients(ctx); err != nil {
		return err
	}
	if report.ByStatus, err = s.Handovers.CountByStatus(ctx); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

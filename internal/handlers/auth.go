package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

func (s *Server) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.EmployeeID == "" || req.Password == "" {
		return errs.Validation("Employee ID and password are required")
	}

	user, err := s.Users.ValidateUser(c.Request().Context(), req.EmployeeID, req.Password)
	if err != nil {
		return err
	}
	if user == nil {
		s.log.Info().Str("employee_id", req.EmployeeID).Msg("login failed")
		return errs.Auth("Invalid credentials")
	}

	return s.respondWithToken(c, http.StatusOK, user)
}

func (s *Server) Register(c echo.Context) error {
	var nu models.NewUser
	if err := bind(c, &nu); err != nil {
		return err
	}

	user, err := s.Users.CreateUser(c.Request().Context(), nu)
	if err != nil {
		return err
	}
	s.log.Info().Int64("user", user.ID).Str("employee_id", user.EmployeeID).Msg("user registered")

	return s.respondWithToken(c, http.StatusCreated, user)
}

func (s *Server) respondWithToken(c echo.Context, status int, user *models.User) error {
	token, err := s.Tokens.Issue(user)
	if err != nil {
		return err
	}
	return c.JSON(status, models.AuthResponse{Token: token, User: user})
}

func (s *Server) Logout(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	if err := s.Tokens.Revoke(c.Request().Context(), id); err != nil {
		return errs.Unavailable("logout failed", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}

// ForgotPassword only records the request. The answer is the same whether
// or not an account matches.
func (s *Server) ForgotPassword(c echo.Context) error {
	var req models.ForgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" {
		return errs.Validation("Email is required")
	}

	s.log.Info().Str("email", req.Email).Msg("password reset requested")
	return c.JSON(http.StatusOK, map[string]string{
		"message": "If an account exists, password reset instructions have been sent",
	})
}

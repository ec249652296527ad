package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

const userColumns = "id, employee_id, name, password, role, department, license_number, shift, created_at, updated_at"

// UserStore holds staff credentials. Passwords are only ever stored as
// bcrypt hashes.
type UserStore struct {
	db   *DB
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *UserStore) WithCost(cost int) *UserStore {
	s.cost = cost
	return s
}

type userRow struct {
	u       models.User
	role    string
	license sql.NullString
	shift   sql.NullString
}

func (r *userRow) dest() []any {
	return []any{&r.u.ID, &r.u.EmployeeID, &r.u.Name, &r.u.PasswordHash, &r.role,
		&r.u.Department, &r.license, &r.shift, &r.u.CreatedAt, &r.u.UpdatedAt}
}

func (r *userRow) user() *models.User {
	u := r.u
	u.Role = models.Role(r.role)
	u.LicenseNumber = stringPtr(r.license)
	u.Shift = stringPtr(r.shift)
	return &u
}

func (s *UserStore) CreateUser(ctx context.Context, nu models.NewUser) (*models.User, error) {
	nu.Normalize()
	if err := nu.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.GetUserByEmployeeID(ctx, nu.EmployeeID); err == nil {
		return nil, errs.Conflict("Employee ID already exists")
	} else if !errs.IsNotFound(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ts := now()
	var id int64
	err = s.db.queryRow(ctx,
		`INSERT INTO users (employee_id, name, password, role, department, license_number, shift, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		nu.EmployeeID, nu.Name, string(hash), string(nu.Role), nu.Department,
		nullString(nu.LicenseNumber), nullString(nu.Shift), ts, ts,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Conflict("Employee ID already exists")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUser(ctx, id)
}

// ValidateUser returns the user when password matches, and nil, nil
// otherwise. Unknown employee ids are compared against a dummy hash so both
// failures take the same time.
func (s *UserStore) ValidateUser(ctx context.Context, employeeID, password string) (*models.User, error) {
	user, err := s.GetUserByEmployeeID(ctx, strings.TrimSpace(employeeID))
	if errs.IsNotFound(err) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return user, nil
}

func (s *UserStore) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password-0"), s.cost)
	})
	return s.dummy
}

func (s *UserStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getOne(ctx, "id = ?", id)
}

func (s *UserStore) GetUserByEmployeeID(ctx context.Context, employeeID string) (*models.User, error) {
	return s.getOne(ctx, "employee_id = ?", employeeID)
}

func (s *UserStore) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var r userRow
	err := s.db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return r.user(), nil
}

// UpdateProfile persists the non-empty fields of upd.
func (s *UserStore) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.User, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{now()}
	if name := strings.TrimSpace(upd.Name); name != "" {
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if dept := strings.TrimSpace(upd.Department); dept != "" {
		sets = append(sets, "department = ?")
		args = append(args, dept)
	}
	if upd.Shift != nil {
		sets = append(sets, "shift = ?")
		args = append(args, nullIfEmpty(*upd.Shift))
	}
	if upd.LicenseNumber != nil {
		sets = append(sets, "license_number = ?")
		args = append(args, nullIfEmpty(*upd.LicenseNumber))
	}
	args = append(args, id)

	var r userRow
	err := s.db.queryRow(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ? RETURNING "+userColumns,
		args...,
	).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return r.user(), nil
}

func (s *UserStore) ChangePassword(ctx context.Context, id int64, newPassword string) error {
	if err := models.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.exec(ctx, "UPDATE users SET password = ?, updated_at = ? WHERE id = ?", string(hash), now(), id)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("user")
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

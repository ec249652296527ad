package models

import (
	"regexp"
	"strings"
	"unicode"

	"nurse-handover/backend/internal/errs"
)

var employeeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{2,32}$`)

// ValidatePassword enforces 8-72 characters (bcrypt's input limit) with at
// least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errs.Validation("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return errs.Validation("password must be at most 72 characters")
	}

	var hasLetter, hasDigit bool
	for _, c := range password {
		if unicode.IsLetter(c) {
			hasLetter = true
		}
		if unicode.IsDigit(c) {
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return errs.Validation("password must contain at least one letter and one digit")
	}
	return nil
}

// Normalize trims the free-text fields and fills in the default role.
func (u *NewUser) Normalize() {
	u.EmployeeID = strings.TrimSpace(u.EmployeeID)
	u.Name = strings.TrimSpace(u.Name)
	u.Department = strings.TrimSpace(u.Department)
	if u.Role == "" {
		u.Role = RoleNurse
	}
}

func (u NewUser) Validate() error {
	switch {
	case u.EmployeeID == "":
		return errs.Validation("employeeId is required")
	case !employeeIDPattern.MatchString(u.EmployeeID):
		return errs.Validation("employeeId must be 2-32 letters, digits, '-' or '_'")
	case u.Name == "":
		return errs.Validation("name is required")
	case u.Department == "":
		return errs.Validation("department is required")
	}
	if !u.Role.Valid() {
		return errs.Validation("unknown role %q", u.Role)
	}
	return ValidatePassword(u.Password)
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

func (s PatientStatus) Valid() bool {
	for _, known := range PatientStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

func (p *NewPatient) Normalize() {
	p.PatientID = strings.TrimSpace(p.PatientID)
	p.Name = strings.TrimSpace(p.Name)
	if p.Status == "" {
		p.Status = PatientActive
	}
}

func (p NewPatient) Validate() error {
	if p.PatientID == "" {
		return errs.Validation("patientId is required")
	}
	if p.Name == "" {
		return errs.Validation("name is required")
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return errs.Validation("age out of range")
	}
	if !p.Status.Valid() {
		return errs.Validation("unknown patient status %q", p.Status)
	}
	return nil
}

func (u ProfileUpdate) Validate() error {
	if strings.TrimSpace(u.Name) == "" && strings.TrimSpace(u.Department) == "" &&
		u.Shift == nil && u.LicenseNumber == nil {
		return errs.Validation("nothing to update")
	}
	return nil
}

func (u HandoverUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return errs.Validation("unknown handover status %q", *u.Status)
	}
	if u.Report != nil && !u.Report.Priority.Valid() {
		return errs.Validation("unknown priority %q", u.Report.Priority)
	}
	return nil
}

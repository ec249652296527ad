package models

import (
	"strings"
	"testing"

	"nurse-handover/backend/internal/errs"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"short1", false},
		{"allletters", false},
		{"12345678", false},
		{"secret123", true},
		{strings.Repeat("a", 72) + "1", false},
		{strings.Repeat("a", 71) + "1", true},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err == nil) != tt.ok {
			t.Errorf("ValidatePassword(%q) = %v, want ok=%v", tt.password, err, tt.ok)
		}
		if err != nil && !errs.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	}
}

func TestNewUserValidate(t *testing.T) {
	u := NewUser{EmployeeID: " N001 ", Name: "Ada", Password: "secret123", Department: "ICU"}
	u.Normalize()
	if err := u.Validate(); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}
	if u.Role != RoleNurse || u.EmployeeID != "N001" {
		t.Errorf("normalize: role=%q employeeId=%q", u.Role, u.EmployeeID)
	}

	missing := []NewUser{
		{Name: "Ada", Password: "secret123", Department: "ICU", Role: RoleNurse},
		{EmployeeID: "N001", Password: "secret123", Department: "ICU", Role: RoleNurse},
		{EmployeeID: "N001", Name: "Ada", Password: "secret123", Role: RoleNurse},
		{EmployeeID: "N 001", Name: "Ada", Password: "secret123", Department: "ICU", Role: RoleNurse},
		{EmployeeID: "N001", Name: "Ada", Password: "secret123", Department: "ICU", Role: "surgeon"},
	}
	for i, m := range missing {
		if err := m.Validate(); !errs.IsValidation(err) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestNewPatientValidate(t *testing.T) {
	p := NewPatient{PatientID: "P001", Name: "John"}
	p.Normalize()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid patient rejected: %v", err)
	}
	if p.Status != PatientActive {
		t.Errorf("default status = %q", p.Status)
	}

	bad := NewPatient{PatientID: "P002", Name: "Jane", Status: "deceased"}
	if err := bad.Validate(); !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandoverUpdateValidate(t *testing.T) {
	if err := (HandoverUpdate{Status: StatusPtr("archived")}).Validate(); err == nil {
		t.Error("unknown status accepted")
	}
	if err := (HandoverUpdate{Report: &ISBARReport{Priority: "urgent"}}).Validate(); err == nil {
		t.Error("unknown priority accepted")
	}
	if err := (HandoverUpdate{Status: StatusPtr(StatusError)}).Validate(); err != nil {
		t.Errorf("valid update rejected: %v", err)
	}
}

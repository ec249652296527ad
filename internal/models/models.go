package models

import "time"

type Role string

const (
	RoleNurse       Role = "nurse"
	RoleChargeNurse Role = "charge_nurse"
	RolePhysician   Role = "physician"
	RoleAdmin       Role = "admin"
)

var Roles = []Role{RoleNurse, RoleChargeNurse, RolePhysician, RoleAdmin}

type PatientStatus string

const (
	PatientActive      PatientStatus = "active"
	PatientDischarged  PatientStatus = "discharged"
	PatientTransferred PatientStatus = "transferred"
)

var PatientStatuses = []PatientStatus{PatientActive, PatientDischarged, PatientTransferred}

type User struct {
	ID            int64     `json:"id"`
	EmployeeID    string    `json:"employeeId"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	Department    string    `json:"department"`
	LicenseNumber *string   `json:"licenseNumber"`
	Shift         *string   `json:"shift"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Patient struct {
	ID                 int64         `json:"id"`
	PatientID          string        `json:"patientId"`
	Name               string        `json:"name"`
	Age                *int          `json:"age"`
	Gender             *string       `json:"gender"`
	Room               *string       `json:"room"`
	AdmissionDate      *time.Time    `json:"admissionDate"`
	AttendingPhysician *string       `json:"attendingPhysician"`
	Status             PatientStatus `json:"status"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// Handover is one recorded shift-change briefing and what the pipeline has
// derived from it so far.
type Handover struct {
	ID            int64          `json:"id"`
	PatientID     int64          `json:"patientId"`
	NurseID       int64          `json:"nurseId"`
	AudioPath     string         `json:"audioPath"`
	Transcription *string        `json:"transcription"`
	Report        *ISBARReport   `json:"isbarReport"`
	Status        HandoverStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// HandoverDetail is a handover joined with its patient and author.
type HandoverDetail struct {
	Handover
	Patient Patient `json:"patient"`
	Nurse   User    `json:"nurse"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

type ISBARReport struct {
	Identify       string   `json:"identify"`
	Situation      string   `json:"situation"`
	Background     string   `json:"background"`
	Assessment     string   `json:"assessment"`
	Recommendation string   `json:"recommendation"`
	Summary        string   `json:"summary"`
	Priority       Priority `json:"priority"`
	KeyPoints      []string `json:"keyPoints"`
	ActionItems    []string `json:"actionItems"`
}

type NewUser struct {
	EmployeeID    string  `json:"employeeId"`
	Name          string  `json:"name"`
	Password      string  `json:"password"`
	Role          Role    `json:"role"`
	Department    string  `json:"department"`
	LicenseNumber *string `json:"licenseNumber"`
	Shift         *string `json:"shift"`
}

type ProfileUpdate struct {
	Name          string  `json:"name"`
	Department    string  `json:"department"`
	Shift         *string `json:"shift"`
	LicenseNumber *string `json:"licenseNumber"`
}

type NewPatient struct {
	PatientID          string        `json:"patientId"`
	Name               string        `json:"name"`
	Age                *int          `json:"age"`
	Gender             *string       `json:"gender"`
	Room               *string       `json:"room"`
	AdmissionDate      *time.Time    `json:"admissionDate"`
	AttendingPhysician *string       `json:"attendingPhysician"`
	Status             PatientStatus `json:"status"`
}

type NewHandover struct {
	PatientID int64
	NurseID   int64
	AudioPath string
}

// HandoverUpdate carries the fields to merge into a handover; nil fields
// are left untouched.
type HandoverUpdate struct {
	Transcription *string
	Report        *ISBARReport
	Status        *HandoverStatus
}

type LoginRequest struct {
	EmployeeID string `json:"employeeId"`
	Password   string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type PatientStatusRequest struct {
	Status PatientStatus `json:"status"`
}

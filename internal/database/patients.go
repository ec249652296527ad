package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

const patientColumns = "id, patient_id, name, age, gender, room, admission_date, attending_physician, status, created_at, updated_at"

type PatientStore struct {
	db *DB
}

func NewPatientStore(db *DB) *PatientStore {
	return &PatientStore{db: db}
}

// PatientFilter narrows SearchPatients. Query is matched against name or
// external id, Ward against room; both are case-insensitive substrings.
// Status is exact. Limit <= 0 means no limit.
type PatientFilter struct {
	Query  string
	Ward   string
	Status models.PatientStatus
	Limit  int
}

type patientRow struct {
	p         models.Patient
	age       sql.NullInt64
	gender    sql.NullString
	room      sql.NullString
	admission sql.NullTime
	physician sql.NullString
	status    string
}

func (r *patientRow) dest() []any {
	return []any{&r.p.ID, &r.p.PatientID, &r.p.Name, &r.age, &r.gender, &r.room,
		&r.admission, &r.physician, &r.status, &r.p.CreatedAt, &r.p.UpdatedAt}
}

func (r *patientRow) patient() *models.Patient {
	p := r.p
	if r.age.Valid {
		age := int(r.age.Int64)
		p.Age = &age
	}
	p.Gender = stringPtr(r.gender)
	p.Room = stringPtr(r.room)
	if r.admission.Valid {
		t := r.admission.Time
		p.AdmissionDate = &t
	}
	p.AttendingPhysician = stringPtr(r.physician)
	p.Status = models.PatientStatus(r.status)
	return &p
}

func (s *PatientStore) SearchPatients(ctx context.Context, f PatientFilter) ([]*models.Patient, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := likePattern(q)
		where = append(where, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(patient_id) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if w := strings.TrimSpace(f.Ward); w != "" {
		where = append(where, `LOWER(COALESCE(room, '')) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(w))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT " + patientColumns + " FROM patients"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	patients := []*models.Patient{}
	for rows.Next() {
		var r patientRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, r.patient())
	}
	return patients, rows.Err()
}

func (s *PatientStore) CreatePatient(ctx context.Context, np models.NewPatient) (*models.Patient, error) {
	np.Normalize()
	if err := np.Validate(); err != nil {
		return nil, err
	}

	var age sql.NullInt64
	if np.Age != nil {
		age = sql.NullInt64{Int64: int64(*np.Age), Valid: true}
	}
	var admission sql.NullTime
	if np.AdmissionDate != nil {
		admission = sql.NullTime{Time: np.AdmissionDate.UTC(), Valid: true}
	}

	ts := now()
	var id int64
	err := s.db.queryRow(ctx,
		`INSERT INTO patients (patient_id, name, age, gender, room, admission_date, attending_physician, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		np.PatientID, np.Name, age, nullString(np.Gender), nullString(np.Room), admission,
		nullString(np.AttendingPhysician), string(np.Status), ts, ts,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Conflict("Patient ID already exists")
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return s.GetPatient(ctx, id)
}

func (s *PatientStore) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	return s.getOne(ctx, "id = ?", id)
}

func (s *PatientStore) GetPatientByExternalID(ctx context.Context, patientID string) (*models.Patient, error) {
	return s.getOne(ctx, "patient_id = ?", strings.TrimSpace(patientID))
}

func (s *PatientStore) getOne(ctx context.Context, where string, arg any) (*models.Patient, error) {
	var r patientRow
	err := s.db.queryRow(ctx, "SELECT "+patientColumns+" FROM patients WHERE "+where, arg).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("patient")
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return r.patient(), nil
}

func (s *PatientStore) UpdatePatientStatus(ctx context.Context, id int64, status models.PatientStatus) (*models.Patient, error) {
	if !status.Valid() {
		return nil, errs.Validation("unknown patient status %q", status)
	}

	var r patientRow
	err := s.db.queryRow(ctx,
		"UPDATE patients SET status = ?, updated_at = ? WHERE id = ? RETURNING "+patientColumns,
		string(status), now(), id,
	).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("patient")
	}
	if err != nil {
		return nil, fmt.Errorf("update patient status: %w", err)
	}
	return r.patient(), nil
}

func (s *PatientStore) CountPatients(ctx context.Context) (int64, error) {
	n, err := s.db.count(ctx, "SELECT COUNT(*) FROM patients")
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

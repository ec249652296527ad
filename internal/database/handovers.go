package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

const handoverColumns = "id, patient_id, nurse_id, audio_path, transcription, isbar_report, status, created_at, updated_at"

const newestFirst = " ORDER BY created_at DESC, id DESC"

// HandoverStore owns handover rows. Status changes are written by the
// pipeline; the store only checks that the values are known.
type HandoverStore struct {
	db *DB
}

func NewHandoverStore(db *DB) *HandoverStore {
	return &HandoverStore{db: db}
}

type handoverRow struct {
	h             models.Handover
	transcription sql.NullString
	report        sql.NullString
	status        string
}

func (r *handoverRow) dest() []any {
	return []any{&r.h.ID, &r.h.PatientID, &r.h.NurseID, &r.h.AudioPath, &r.transcription,
		&r.report, &r.status, &r.h.CreatedAt, &r.h.UpdatedAt}
}

func (r *handoverRow) handover() (*models.Handover, error) {
	h := r.h
	h.Transcription = stringPtr(r.transcription)
	h.Status = models.HandoverStatus(r.status)
	if r.report.Valid && r.report.String != "" {
		var rep models.ISBARReport
		if err := json.Unmarshal([]byte(r.report.String), &rep); err != nil {
			return nil, fmt.Errorf("decode report of handover %d: %w", h.ID, err)
		}
		h.Report = &rep
	}
	return &h, nil
}

func (s *HandoverStore) CreateHandover(ctx context.Context, nh models.NewHandover) (*models.Handover, error) {
	if nh.PatientID <= 0 || nh.NurseID <= 0 {
		return nil, errs.Validation("patientId and nurseId are required")
	}
	if strings.TrimSpace(nh.AudioPath) == "" {
		return nil, errs.Validation("audio path is required")
	}

	ts := now()
	var r handoverRow
	err := s.db.queryRow(ctx,
		`INSERT INTO handovers (patient_id, nurse_id, audio_path, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING `+handoverColumns,
		nh.PatientID, nh.NurseID, nh.AudioPath, string(models.StatusProcessing), ts, ts,
	).Scan(r.dest()...)
	if err != nil {
		return nil, fmt.Errorf("insert handover: %w", err)
	}
	return r.handover()
}

// UpdateHandover merges the non-nil fields of upd in a single statement and
// always stamps updated_at.
func (s *HandoverStore) UpdateHandover(ctx context.Context, id int64, upd models.HandoverUpdate) (*models.Handover, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{now()}
	if upd.Transcription != nil {
		sets = append(sets, "transcription = ?")
		args = append(args, *upd.Transcription)
	}
	if upd.Report != nil {
		raw, err := json.Marshal(upd.Report)
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		sets = append(sets, "isbar_report = ?")
		args = append(args, string(raw))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	args = append(args, id)

	var r handoverRow
	err := s.db.queryRow(ctx,
		"UPDATE handovers SET "+strings.Join(sets, ", ")+" WHERE id = ? RETURNING "+handoverColumns,
		args...,
	).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("handover")
	}
	if err != nil {
		return nil, fmt.Errorf("update handover %d: %w", id, err)
	}
	return r.handover()
}

func (s *HandoverStore) GetHandover(ctx context.Context, id int64) (*models.Handover, error) {
	var r handoverRow
	err := s.db.queryRow(ctx, "SELECT "+handoverColumns+" FROM handovers WHERE id = ?", id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("handover")
	}
	if err != nil {
		return nil, fmt.Errorf("get handover: %w", err)
	}
	return r.handover()
}

func (s *HandoverStore) ListByPatient(ctx context.Context, patientID int64) ([]*models.Handover, error) {
	return s.list(ctx, "SELECT "+handoverColumns+" FROM handovers WHERE patient_id = ?"+newestFirst, patientID)
}

func (s *HandoverStore) ListByNurse(ctx context.Context, nurseID int64) ([]*models.Handover, error) {
	return s.list(ctx, "SELECT "+handoverColumns+" FROM handovers WHERE nurse_id = ?"+newestFirst, nurseID)
}

// ListAll returns up to limit handovers system-wide, newest first, without
// joins.
func (s *HandoverStore) ListAll(ctx context.Context, limit int) ([]*models.Handover, error) {
	return s.list(ctx, "SELECT "+handoverColumns+" FROM handovers"+newestFirst+" LIMIT ?", limit)
}

func (s *HandoverStore) list(ctx context.Context, query string, args ...any) ([]*models.Handover, error) {
	rows, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list handovers: %w", err)
	}
	defer rows.Close()

	handovers := []*models.Handover{}
	for rows.Next() {
		var r handoverRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan handover: %w", err)
		}
		h, err := r.handover()
		if err != nil {
			return nil, err
		}
		handovers = append(handovers, h)
	}
	return handovers, rows.Err()
}

// ListRecent returns up to limit handovers, newest first, joined with their
// patient and author. Rows whose patient or author no longer resolves are
// left out.
func (s *HandoverStore) ListRecent(ctx context.Context, limit int) ([]*models.HandoverDetail, error) {
	if limit <= 0 {
		return []*models.HandoverDetail{}, nil
	}

	query := `SELECT h.id, h.patient_id, h.nurse_id, h.audio_path, h.transcription, h.isbar_report, h.status, h.created_at, h.updated_at,
		p.id, p.patient_id, p.name, p.age, p.gender, p.room, p.admission_date, p.attending_physician, p.status, p.created_at, p.updated_at,
		u.id, u.employee_id, u.name, u.password, u.role, u.department, u.license_number, u.shift, u.created_at, u.updated_at
		FROM handovers h
		JOIN patients p ON p.id = h.patient_id
		JOIN users u ON u.id = h.nurse_id
		ORDER BY h.created_at DESC, h.id DESC
		LIMIT ?`

	rows, err := s.db.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent handovers: %w", err)
	}
	defer rows.Close()

	details := []*models.HandoverDetail{}
	for rows.Next() {
		var (
			hr handoverRow
			pr patientRow
			ur userRow
		)
		dest := append(append(hr.dest(), pr.dest()...), ur.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan recent handover: %w", err)
		}
		h, err := hr.handover()
		if err != nil {
			return nil, err
		}
		details = append(details, &models.HandoverDetail{
			Handover: *h,
			Patient:  *pr.patient(),
			Nurse:    *ur.user(),
		})
	}
	return details, rows.Err()
}

// ExportCSV renders every handover of nurseID, oldest first, as CSV with
// the header Date,Time,Patient ID,Status,Transcription. The transcription
// column is always quoted and kept on one line.
func (s *HandoverStore) ExportCSV(ctx context.Context, nurseID int64) ([]byte, error) {
	handovers, err := s.ListByNurse(ctx, nurseID)
	if err != nil {
		return nil, err
	}
	handovers = lo.Reverse(handovers)

	var buf bytes.Buffer
	buf.WriteString("Date,Time,Patient ID,Status,Transcription\n")
	for _, h := range handovers {
		created := h.CreatedAt.UTC()
		fmt.Fprintf(&buf, "%s,%s,%d,%s,%s\n",
			created.Format("2006-01-02"),
			created.Format("15:04:05"),
			h.PatientID,
			h.Status,
			quoteCSV(lo.FromPtr(h.Transcription)),
		)
	}
	return buf.Bytes(), nil
}

var csvLineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func quoteCSV(s string) string {
	s = csvLineBreaks.Replace(s)
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *HandoverStore) CountAll(ctx context.Context) (int64, error) {
	return s.db.count(ctx, "SELECT COUNT(*) FROM handovers")
}

func (s *HandoverStore) CountByNurse(ctx context.Context, nurseID int64) (int64, error) {
	return s.db.count(ctx, "SELECT COUNT(*) FROM handovers WHERE nurse_id = ?", nurseID)
}

// CountSince counts handovers created at or after since. A nurseID of 0
// counts every nurse.
func (s *HandoverStore) CountSince(ctx context.Context, nurseID int64, since time.Time) (int64, error) {
	if nurseID == 0 {
		return s.db.count(ctx, "SELECT COUNT(*) FROM handovers WHERE created_at >= ?", since.UTC())
	}
	return s.db.count(ctx, "SELECT COUNT(*) FROM handovers WHERE nurse_id = ? AND created_at >= ?", nurseID, since.UTC())
}

func (s *HandoverStore) CountByStatus(ctx context.Context) (map[models.HandoverStatus]int64, error) {
	rows, err := s.db.query(ctx, "SELECT status, COUNT(*) FROM handovers GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.HandoverStatus]int64, 4)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.HandoverStatus(status)] = n
	}
	return counts, rows.Err()
}

// FailInterrupted moves handovers left in processing or transcribed by a
// previous run to error. Both are legal transitions into error. It assumes a
// single server owns the database: another live instance's in-flight jobs
// would be failed too, so replicated deployments set RECOVER_INTERRUPTED=false.
func (s *HandoverStore) FailInterrupted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.exec(ctx,
		"UPDATE handovers SET status = ?, updated_at = ? WHERE status IN (?, ?) AND created_at < ?",
		string(models.StatusError), now(),
		string(models.StatusProcessing), string(models.StatusTranscribed),
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted handovers: %w", err)
	}
	return res.RowsAffected()
}

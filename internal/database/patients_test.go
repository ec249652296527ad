package database

import (
	"context"
	"testing"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

func seedPatients(t *testing.T, db *DB) {
	t.Helper()
	store := NewPatientStore(db)
	room := func(s string) *string { return &s }
	for _, p := range []models.NewPatient{
		{PatientID: "P001", Name: "John Smith", Room: room("Ward A-101")},
		{PatientID: "P002", Name: "Mary Johnson", Room: room("Ward B-202")},
		{PatientID: "JOHN7", Name: "Alice Brown", Room: room("Ward A-103"), Status: models.PatientDischarged},
		{PatientID: "P004", Name: "Bob Lee"},
	} {
		if _, err := store.CreatePatient(context.Background(), p); err != nil {
			t.Fatalf("CreatePatient %s: %v", p.PatientID, err)
		}
	}
}

func patientIDs(ps []*models.Patient) map[string]bool {
	ids := make(map[string]bool, len(ps))
	for _, p := range ps {
		ids[p.PatientID] = true
	}
	return ids
}

func TestSearchPatientsMatchesNameOrExternalID(t *testing.T) {
	db := newTestDB(t)
	seedPatients(t, db)
	store := NewPatientStore(db)

	got, err := store.SearchPatients(context.Background(), PatientFilter{Query: "john"})
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	ids := patientIDs(got)
	for _, want := range []string{"P001", "P002", "JOHN7"} {
		if !ids[want] {
			t.Errorf("missing %s in %v", want, ids)
		}
	}
	if ids["P004"] || len(got) != 3 {
		t.Errorf("unexpected matches: %v", ids)
	}
}

func TestSearchPatientsFilters(t *testing.T) {
	db := newTestDB(t)
	seedPatients(t, db)
	store := NewPatientStore(db)
	ctx := context.Background()

	got, err := store.SearchPatients(ctx, PatientFilter{Query: "john", Ward: "ward a"})
	if err != nil {
		t.Fatal(err)
	}
	if ids := patientIDs(got); len(got) != 2 || !ids["P001"] || !ids["JOHN7"] {
		t.Errorf("ward filter: %v", ids)
	}

	got, err = store.SearchPatients(ctx, PatientFilter{Query: "john", Status: models.PatientActive})
	if err != nil {
		t.Fatal(err)
	}
	if ids := patientIDs(got); len(got) != 2 || ids["JOHN7"] {
		t.Errorf("status filter: %v", ids)
	}

	all, err := store.SearchPatients(ctx, PatientFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("unfiltered search returned %d patients", len(all))
	}

	limited, err := store.SearchPatients(ctx, PatientFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: %d", len(limited))
	}

	none, err := store.SearchPatients(ctx, PatientFilter{Query: "%"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("wildcard must be literal, got %d", len(none))
	}
}

func TestCreatePatientDuplicate(t *testing.T) {
	db := newTestDB(t)
	newTestPatient(t, db, "P001", "John")

	_, err := NewPatientStore(db).CreatePatient(context.Background(), models.NewPatient{PatientID: "P001", Name: "Other"})
	if !errs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetPatient(t *testing.T) {
	db := newTestDB(t)
	store := NewPatientStore(db)
	ctx := context.Background()
	created := newTestPatient(t, db, "P001", "John")

	p, err := store.GetPatient(ctx, created.ID)
	if err != nil || p.PatientID != "P001" || p.Status != models.PatientActive {
		t.Fatalf("GetPatient = %+v, %v", p, err)
	}
	p, err = store.GetPatientByExternalID(ctx, "P001")
	if err != nil || p.ID != created.ID {
		t.Fatalf("GetPatientByExternalID = %+v, %v", p, err)
	}

	if _, err := store.GetPatient(ctx, 999); !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := store.GetPatientByExternalID(ctx, "P999"); !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdatePatientStatus(t *testing.T) {
	db := newTestDB(t)
	store := NewPatientStore(db)
	ctx := context.Background()
	p := newTestPatient(t, db, "P001", "John")

	updated, err := store.UpdatePatientStatus(ctx, p.ID, models.PatientDischarged)
	if err != nil || updated.Status != models.PatientDischarged {
		t.Fatalf("UpdatePatientStatus = %+v, %v", updated, err)
	}
	if _, err := store.UpdatePatientStatus(ctx, p.ID, "gone"); !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := store.UpdatePatientStatus(ctx, 999, models.PatientActive); !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	n, err := store.CountPatients(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountPatients = %d, %v", n, err)
	}
}

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"nurse-handover/backend/internal/database"
	"nurse-handover/backend/internal/models"
)

func TestSeedPatientsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.SQLite, filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	store := database.NewPatientStore(db)

	created, err := seedPatients(ctx, store, zerolog.Nop())
	if err != nil || created != len(samplePatients) {
		t.Fatalf("first seed: %d, %v", created, err)
	}
	created, err = seedPatients(ctx, store, zerolog.Nop())
	if err != nil || created != 0 {
		t.Fatalf("second seed: %d, %v", created, err)
	}

	discharged, err := store.SearchPatients(ctx, database.PatientFilter{Status: models.PatientDischarged})
	if err != nil {
		t.Fatal(err)
	}
	if len(discharged) != 1 || discharged[0].PatientID != "P005" {
		t.Errorf("discharged = %+v", discharged)
	}
}

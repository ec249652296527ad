package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

type patientCreator interface {
	CreatePatient(ctx context.Context, np models.NewPatient) (*models.Patient, error)
}

var samplePatients = []models.NewPatient{
	{PatientID: "P001", Name: "John Smith", Age: lo.ToPtr(67), Gender: lo.ToPtr("male"), Room: lo.ToPtr("ICU-12B"), AttendingPhysician: lo.ToPtr("Dr. Patel")},
	{PatientID: "P002", Name: "Mary Johnson", Age: lo.ToPtr(54), Gender: lo.ToPtr("female"), Room: lo.ToPtr("ICU-14A"), AttendingPhysician: lo.ToPtr("Dr. Chen")},
	{PatientID: "P003", Name: "Robert Brown", Age: lo.ToPtr(81), Gender: lo.ToPtr("male"), Room: lo.ToPtr("MED-3"), AttendingPhysician: lo.ToPtr("Dr. Okafor")},
	{PatientID: "P004", Name: "Linda Garcia", Age: lo.ToPtr(45), Gender: lo.ToPtr("female"), Room: lo.ToPtr("SURG-7"), AttendingPhysician: lo.ToPtr("Dr. Novak")},
	{PatientID: "P005", Name: "James Wilson", Age: lo.ToPtr(73), Gender: lo.ToPtr("male"), Room: lo.ToPtr("MED-9"), Status: models.PatientDischarged},
}

// seedPatients inserts the sample patients and reports how many were new.
func seedPatients(ctx context.Context, store patientCreator, log zerolog.Logger) (int, error) {
	created := 0
	for _, np := range samplePatients {
		p, err := store.CreatePatient(ctx, np)
		if errs.IsConflict(err) {
			log.Debug().Str("patient_id", np.PatientID).Msg("patient exists, skipped")
			continue
		}
		if err != nil {
			return created, err
		}
		created++
		log.Info().Str("patient_id", p.PatientID).Int64("id", p.ID).Msg("patient created")
	}
	return created, nil
}

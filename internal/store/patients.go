package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/models"
)

var profileColumns = []string{"email", "first_name", "last_name", "profile_image", "updated_at"}

var onboardingColumns = []string{
	"phone_number", "street_address", "city", "state", "zip_code",
	"insurance_provider", "insurance_id", "group_number", "onboarding_completed",
}

type PatientRepo struct {
	db *gorm.DB
}

func (r *PatientRepo) GetByID(ctx context.Context, id string) (*models.Patient, error) {
	var p models.Patient
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err, "patient", "load")
	}
	return &p, nil
}

func (r *PatientRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Patient, error) {
	var p models.Patient
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error; err != nil {
		return nil, translate(err, "patient", "load")
	}
	return &p, nil
}

// Ensure inserts p unless a patient with the same external id exists, and
// returns the stored row either way.
func (r *PatientRepo) Ensure(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(p).Error
	if err != nil {
		return nil, translate(err, "patient", "create")
	}
	return r.GetByExternalID(ctx, p.ExternalID)
}

// UpsertProfile inserts p or overwrites the profile columns of the existing row.
func (r *PatientRepo) UpsertProfile(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(profileColumns),
		}).
		Create(p).Error
	if err != nil {
		return nil, translate(err, "patient", "upsert")
	}
	return r.GetByExternalID(ctx, p.ExternalID)
}

// Update writes the onboarding fields of p.
func (r *PatientRepo) Update(ctx context.Context, p *models.Patient) error {
	res := r.db.WithContext(ctx).
		Model(&models.Patient{}).
		Where("id = ?", p.ID).
		Select(onboardingColumns).
		Updates(p)
	if res.Error != nil {
		return translate(res.Error, "patient", "update")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("patient")
	}
	return nil
}

func (r *PatientRepo) TouchSignIn(ctx context.Context, externalID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Patient{}).
		Where("external_id = ?", externalID).
		Update("last_sign_in_at", at)
	if res.Error != nil {
		return false, translate(res.Error, "patient", "update")
	}
	return res.RowsAffected > 0, nil
}

package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"curanova-server/internal/models"
)

type AppointmentRepo struct {
	db *gorm.DB
}

func (r *AppointmentRepo) Create(ctx context.Context, a *models.Appointment) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		return translate(err, "appointment", "create")
	}
	return nil
}

func (r *AppointmentRepo) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	var a models.Appointment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err, "appointment", "load")
	}
	return &a, nil
}

// ListByPatient returns the patient's appointments soonest first, with the
// diagnostic each one belongs to.
func (r *AppointmentRepo) ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	var list []models.Appointment
	err := r.db.WithContext(ctx).
		Preload("Diagnostic").
		Where("patient_id = ?", patientID).
		Order("appointment_date asc").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "appointments", "list")
	}
	return list, nil
}

// UpdateStatus moves the appointment to `to` only while it is still in `from`.
func (r *AppointmentRepo) UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus, confirmedAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if confirmedAt != nil {
		updates["confirmed_at"] = *confirmedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error, "appointment", "update")
	}
	return res.RowsAffected == 1, nil
}

type PredictionRepo struct {
	db *gorm.DB
}

func (r *PredictionRepo) Create(ctx context.Context, p *models.TestPrediction) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return translate(err, "prediction", "create")
	}
	return nil
}

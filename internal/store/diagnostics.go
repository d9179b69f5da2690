package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"curanova-server/internal/models"
)

type DiagnosticRepo struct {
	db *gorm.DB
}

func orderedTests(db *gorm.DB) *gorm.DB {
	return db.Order("created_at asc")
}

// Create inserts the diagnostic row only. Tests are written separately.
func (r *DiagnosticRepo) Create(ctx context.Context, d *models.Diagnostic) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(d).Error; err != nil {
		return translate(err, "diagnostic", "create")
	}
	return nil
}

func (r *DiagnosticRepo) GetByID(ctx context.Context, id string) (*models.Diagnostic, error) {
	var d models.Diagnostic
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err, "diagnostic", "load")
	}
	return &d, nil
}

func (r *DiagnosticRepo) GetForPatient(ctx context.Context, id, patientID string) (*models.Diagnostic, error) {
	var d models.Diagnostic
	err := r.db.WithContext(ctx).
		Preload("Tests", orderedTests).
		Where("id = ? AND patient_id = ?", id, patientID).
		First(&d).Error
	if err != nil {
		return nil, translate(err, "diagnostic", "load")
	}
	return &d, nil
}

// ListByPatient returns the patient's diagnostics newest first.
func (r *DiagnosticRepo) ListByPatient(ctx context.Context, patientID string) ([]models.Diagnostic, error) {
	var list []models.Diagnostic
	err := r.db.WithContext(ctx).
		Preload("Tests", orderedTests).
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "diagnostics", "list")
	}
	return list, nil
}

// LockForUpdate takes a row lock on the diagnostic. SQLite has no row locks;
// its single writer serialises the transaction instead.
func (r *DiagnosticRepo) LockForUpdate(ctx context.Context, id string) (*models.Diagnostic, error) {
	var d models.Diagnostic
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&d).Error
	if err != nil {
		return nil, translate(err, "diagnostic", "lock")
	}
	return &d, nil
}

// UpdateStatus moves the diagnostic to `to` only while it is still in `from`.
func (r *DiagnosticRepo) UpdateStatus(ctx context.Context, id string, from, to models.DiagnosticStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Diagnostic{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, translate(res.Error, "diagnostic", "update")
	}
	return res.RowsAffected == 1, nil
}

type TestRepo struct {
	db *gorm.DB
}

// CreateBatch inserts the tests in one statement. Creation times are spaced
// a millisecond apart so reads return them in selection order.
func (r *TestRepo) CreateBatch(ctx context.Context, tests []models.DiagnosticTest) error {
	if len(tests) == 0 {
		return nil
	}
	base := time.Now().UTC()
	for i := range tests {
		if tests[i].CreatedAt.IsZero() {
			tests[i].CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		}
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&tests).Error; err != nil {
		return translate(err, "tests", "create")
	}
	return nil
}

func (r *TestRepo) GetByID(ctx context.Context, id string) (*models.DiagnosticTest, error) {
	var t models.DiagnosticTest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err, "test", "load")
	}
	return &t, nil
}

// Transition moves the test to `to` if its current status is one of `from`.
// A non-nil resultRef is written in the same statement.
func (r *TestRepo) Transition(ctx context.Context, id string, from []models.TestStatus, to models.TestStatus, resultRef *string) (bool, error) {
	updates := map[string]any{"status": to}
	if resultRef != nil {
		updates["result_ref"] = *resultRef
	}
	res := r.db.WithContext(ctx).
		Model(&models.DiagnosticTest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error, "test", "update")
	}
	return res.RowsAffected == 1, nil
}

func (r *TestRepo) CountNotCompleted(ctx context.Context, diagnosticID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.DiagnosticTest{}).
		Where("diagnostic_id = ? AND status <> ?", diagnosticID, models.TestCompleted).
		Count(&n).Error
	if err != nil {
		return 0, translate(err, "tests", "count")
	}
	return n, nil
}

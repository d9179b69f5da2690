// Package store implements the service repositories on top of gorm.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/services"
)

// Store owns the database handle and hands out repositories bound to it.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Repositories returns repositories that run outside any transaction.
func (s *Store) Repositories() services.Repositories {
	return repositoriesFor(s.db)
}

// InTx runs fn inside a database transaction. Any error from fn rolls back
// every write made through the repositories it was given.
func (s *Store) InTx(ctx context.Context, fn func(services.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repositoriesFor(tx))
	})
}

func repositoriesFor(db *gorm.DB) services.Repositories {
	return services.Repositories{
		Patients:     &PatientRepo{db: db},
		Diagnostics:  &DiagnosticRepo{db: db},
		Tests:        &TestRepo{db: db},
		Appointments: &AppointmentRepo{db: db},
		Predictions:  &PredictionRepo{db: db},
	}
}

// translate maps gorm errors onto the application's error kinds.
func translate(err error, resource, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(resource)
	}
	return apperrors.Storage(err, "failed to %s %s", action, resource)
}

package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/events"
	"curanova-server/internal/metrics"
	"curanova-server/internal/models"
	"curanova-server/internal/utils"
)

// Profile is what the identity provider knows about a principal.
type Profile struct {
	ExternalID   string
	Email        string
	FirstName    string
	LastName     string
	ProfileImage string
	CreatedAt    time.Time
}

// MedicalInfo is the contact and insurance data collected during onboarding.
type MedicalInfo struct {
	PhoneNumber       string `json:"phoneNumber" validate:"required"`
	StreetAddress     string `json:"streetAddress" validate:"required"`
	City              string `json:"city" validate:"required"`
	State             string `json:"state" validate:"required"`
	ZipCode           string `json:"zipCode" validate:"required"`
	InsuranceProvider string `json:"insuranceProvider,omitempty"`
	InsuranceID       string `json:"insuranceId,omitempty"`
	GroupNumber       string `json:"groupNumber,omitempty"`
}

// OnboardingStatus reports whether a principal still has to complete onboarding.
type OnboardingStatus struct {
	OnboardingCompleted bool `json:"onboardingCompleted"`
	UserExists          bool `json:"userExists"`
}

// IdentityService maps identity-provider principals to Patient records.
type IdentityService struct {
	patients PatientRepository
	events   emitter
	log      zerolog.Logger
	now      func() time.Time
}

func NewIdentityService(patients PatientRepository, pub events.Publisher, m *metrics.Workflow, log zerolog.Logger) *IdentityService {
	log = log.With().Str("component", "identity").Logger()
	return &IdentityService{
		patients: patients,
		events:   emitter{pub: pub, metrics: m, log: log},
		log:      log,
		now:      time.Now,
	}
}

// Resolve returns the patient for profile.ExternalID, creating it on first sight.
// Existing profile fields are left untouched.
func (s *IdentityService) Resolve(ctx context.Context, profile Profile) (*models.Patient, error) {
	p, err := newPatient(profile)
	if err != nil {
		return nil, err
	}
	stored, err := s.patients.Ensure(ctx, p)
	if err != nil {
		s.log.Error().Err(err).Str("external_id", profile.ExternalID).Msg("failed to resolve patient")
		return nil, err
	}
	return stored, nil
}

// SyncProfile upserts the patient and overwrites its profile fields.
func (s *IdentityService) SyncProfile(ctx context.Context, profile Profile) (*models.Patient, error) {
	p, err := newPatient(profile)
	if err != nil {
		return nil, err
	}
	stored, err := s.patients.UpsertProfile(ctx, p)
	if err != nil {
		s.log.Error().Err(err).Str("external_id", profile.ExternalID).Msg("failed to sync patient profile")
		return nil, err
	}
	s.events.emit(ctx, events.Event{Type: events.PatientSynced, PatientID: stored.ID, EntityID: stored.ID})
	return stored, nil
}

// RecordSignIn stamps the last sign-in time. Unknown principals are ignored.
func (s *IdentityService) RecordSignIn(ctx context.Context, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return apperrors.IdentityUnavailable(nil, "session event has no user id")
	}
	matched, err := s.patients.TouchSignIn(ctx, externalID, s.now().UTC())
	if err != nil {
		return err
	}
	if !matched {
		s.log.Debug().Str("external_id", externalID).Msg("sign-in for unknown principal ignored")
	}
	return nil
}

// CompleteOnboarding stores info on the patient and marks onboarding complete.
func (s *IdentityService) CompleteOnboarding(ctx context.Context, patientID string, info MedicalInfo) (*models.Patient, error) {
	info = info.trimmed()
	if err := utils.Validate(info); err != nil {
		return nil, apperrors.Validation("missing required fields: %s", utils.FormatValidationError(err))
	}

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	p.PhoneNumber = info.PhoneNumber
	p.StreetAddress = info.StreetAddress
	p.City = info.City
	p.State = info.State
	p.ZipCode = info.ZipCode
	p.InsuranceProvider = info.InsuranceProvider
	p.InsuranceID = info.InsuranceID
	p.GroupNumber = info.GroupNumber
	p.OnboardingCompleted = true

	if err := s.patients.Update(ctx, p); err != nil {
		s.log.Error().Err(err).Str("patient_id", patientID).Msg("failed to save onboarding information")
		return nil, err
	}
	return p, nil
}

// OnboardingStatus reports the onboarding state of externalID. A principal
// without a patient row still needs onboarding.
func (s *IdentityService) OnboardingStatus(ctx context.Context, externalID string) (OnboardingStatus, error) {
	p, err := s.patients.GetByExternalID(ctx, externalID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return OnboardingStatus{}, nil
	}
	if err != nil {
		return OnboardingStatus{}, err
	}
	return OnboardingStatus{OnboardingCompleted: p.HasOnboarded(), UserExists: true}, nil
}

// Profile returns the patient's stored record.
func (s *IdentityService) Profile(ctx context.Context, patientID string) (*models.Patient, error) {
	return s.patients.GetByID(ctx, patientID)
}

// identityEvent is the envelope of an identity-provider webhook.
type identityEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type identityUser struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PrimaryEmailAddressID string      `json:"primary_email_address_id"`
	FirstName             string      `json:"first_name"`
	LastName              string      `json:"last_name"`
	ImageURL              string      `json:"image_url"`
	CreatedAt             json.Number `json:"created_at"`
}

type identitySession struct {
	UserID string `json:"user_id"`
}

// HandleWebhook applies a verified identity-provider event. Payloads that
// cannot be parsed fail with KindIdentityUnavailable so the provider redelivers.
func (s *IdentityService) HandleWebhook(ctx context.Context, payload []byte) (string, error) {
	var evt identityEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.log.Error().Err(err).Msg("unparseable identity webhook payload")
		return "", apperrors.IdentityUnavailable(err, "identity payload could not be parsed")
	}

	switch evt.Type {
	case "user.created", "user.updated":
		var u identityUser
		if err := json.Unmarshal(evt.Data, &u); err != nil {
			s.log.Error().Err(err).Str("event", evt.Type).Msg("unparseable identity user payload")
			return evt.Type, apperrors.IdentityUnavailable(err, "identity payload could not be parsed")
		}
		_, err := s.SyncProfile(ctx, u.profile())
		return evt.Type, err
	case "session.created":
		var sess identitySession
		if err := json.Unmarshal(evt.Data, &sess); err != nil {
			s.log.Error().Err(err).Str("event", evt.Type).Msg("unparseable identity session payload")
			return evt.Type, apperrors.IdentityUnavailable(err, "identity payload could not be parsed")
		}
		return evt.Type, s.RecordSignIn(ctx, sess.UserID)
	default:
		s.log.Debug().Str("event", evt.Type).Msg("identity event ignored")
		return evt.Type, nil
	}
}

func (u identityUser) profile() Profile {
	p := Profile{
		ExternalID:   u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfileImage: u.ImageURL,
		CreatedAt:    normalizeTimestamp(u.CreatedAt),
	}
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			p.Email = e.EmailAddress
			break
		}
	}
	if p.Email == "" && len(u.EmailAddresses) > 0 {
		p.Email = u.EmailAddresses[0].EmailAddress
	}
	return p
}

// normalizeTimestamp accepts epoch seconds or milliseconds.
func normalizeTimestamp(n json.Number) time.Time {
	v, err := n.Int64()
	if err != nil || v <= 0 {
		return time.Time{}
	}
	if v < 1_000_000_000_000 {
		v *= 1000
	}
	return time.UnixMilli(v).UTC()
}

func newPatient(profile Profile) (*models.Patient, error) {
	externalID := strings.TrimSpace(profile.ExternalID)
	if externalID == "" {
		return nil, apperrors.IdentityUnavailable(nil, "identity payload has no principal id")
	}
	p := &models.Patient{
		ExternalID:   externalID,
		Email:        strings.TrimSpace(profile.Email),
		FirstName:    strings.TrimSpace(profile.FirstName),
		LastName:     strings.TrimSpace(profile.LastName),
		ProfileImage: profile.ProfileImage,
	}
	if !profile.CreatedAt.IsZero() {
		p.CreatedAt = profile.CreatedAt
	}
	return p, nil
}

func (m MedicalInfo) trimmed() MedicalInfo {
	return MedicalInfo{
		PhoneNumber:       strings.TrimSpace(m.PhoneNumber),
		StreetAddress:     strings.TrimSpace(m.StreetAddress),
		City:              strings.TrimSpace(m.City),
		State:             strings.TrimSpace(m.State),
		ZipCode:           strings.TrimSpace(m.ZipCode),
		InsuranceProvider: strings.TrimSpace(m.InsuranceProvider),
		InsuranceID:       strings.TrimSpace(m.InsuranceID),
		GroupNumber:       strings.TrimSpace(m.GroupNumber),
	}
}

package models

import (
	"time"
)

// Role enum
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

// Patient is the local record for an identity-provider principal.
type Patient struct {
	BaseModel
	ExternalID          string     `gorm:"uniqueIndex;size:191;not null" json:"externalId"`
	Email               string     `gorm:"size:255" json:"email"`
	FirstName           string     `gorm:"size:100" json:"firstName"`
	LastName            string     `gorm:"size:100" json:"lastName"`
	ProfileImage        string     `gorm:"size:512" json:"profileImage,omitempty"`
	PhoneNumber         string     `gorm:"size:40" json:"phoneNumber,omitempty"`
	StreetAddress       string     `gorm:"size:255" json:"streetAddress,omitempty"`
	City                string     `gorm:"size:100" json:"city,omitempty"`
	State               string     `gorm:"size:100" json:"state,omitempty"`
	ZipCode             string     `gorm:"size:20" json:"zipCode,omitempty"`
	InsuranceProvider   string     `gorm:"size:255" json:"insuranceProvider,omitempty"`
	InsuranceID         string     `gorm:"size:100" json:"insuranceId,omitempty"`
	GroupNumber         string     `gorm:"size:100" json:"groupNumber,omitempty"`
	OnboardingCompleted bool       `gorm:"default:false" json:"onboardingCompleted"`
	LastSignInAt        *time.Time `json:"lastSignInAt,omitempty"`

	// Relations (not always preloaded)
	Diagnostics  []Diagnostic  `gorm:"foreignKey:PatientID" json:"-"`
	Appointments []Appointment `gorm:"foreignKey:PatientID" json:"-"`
}

// HasOnboarded reports whether the patient has supplied enough contact data to book tests.
func (p *Patient) HasOnboarded() bool {
	return p.OnboardingCompleted || (p.PhoneNumber != "" && p.StreetAddress != "")
}

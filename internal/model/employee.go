package model

import (
	"time"

	"github.com/google/uuid"
)

// Employee is a person we send occasion messages to.
//
// StartDate and BirthDate are calendar dates; the time-of-day portion is
// meaningless and stored as midnight UTC. Timezone is an IANA zone name
// validated at the API boundary.
type Employee struct {
	ID              uuid.UUID  `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	StartDate       time.Time  `json:"start_date"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	Timezone        string     `json:"timezone"`
	LocationDisplay string     `json:"location_display"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// FullName returns "First Last" as used in message texts.
func (e Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

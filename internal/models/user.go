package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record owned by the external identity service.
// This subsystem reads profiles and writes online/last-seen state; it
// never creates or mutates accounts.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	FullName       string     `json:"full_name,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	Online         bool       `json:"is_online"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
}

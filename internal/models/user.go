package models

import "time"

// User mirrors an identity-provider account in the local database. The
// identity provider owns authentication; we only keep the fields needed to
// attach subscriptions and usage records to a stable local id.
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      *string   `json:"email,omitempty"`
	Name       *string   `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdentitySyncPayload is the profile the identity provider forwards after a
// successful login so the backend can upsert its local user row.
type IdentitySyncPayload struct {
	ExternalID string  `json:"external_id"`
	Email      *string `json:"email,omitempty"`
	Name       *string `json:"name,omitempty"`
}

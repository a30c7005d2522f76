package key

import (
	"time"
)

// Status is derived on every read from revokedAt/expiresAt; it is never
// stored, so it cannot drift from the timestamps that define it.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// ResolveStatus derives a key's lifecycle state. Precedence is fixed:
// revoked beats expired beats active. Pure; both backend variants use it
// so list results are status-consistent regardless of origin.
func ResolveStatus(revokedAt, expiresAt *time.Time, now time.Time) Status {
	if revokedAt != nil {
		return StatusRevoked
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return StatusExpired
	}
	return StatusActive
}

// Record is the normalized key shape both backend variants return. Field
// names follow the /api/keys wire contract; the store variant translates
// its snake_case columns into the same shape.
//
// Key carries the one-time plaintext and is only set on the record
// returned by a create; it is never persisted and never reappears.
type Record struct {
	ID         string     `json:"id"`
	Key        string     `json:"key,omitempty"`
	Prefix     string     `json:"prefix"`
	Label      *string    `json:"label"`
	Scopes     []string   `json:"scopes"`
	RateLimit  int        `json:"rateLimit"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	RevokedAt  *time.Time `json:"revokedAt"`
	Status     Status     `json:"status"`

	// Owner refs are populated by the direct-store variant only; the
	// remote API infers ownership from the authenticating credential.
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// DeriveStatus recomputes the status field from the record's own
// timestamps, overriding whatever a backend reported.
func (r *Record) DeriveStatus(now time.Time) {
	r.Status = ResolveStatus(r.RevokedAt, r.ExpiresAt, now)
}

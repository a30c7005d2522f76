package key

import (
	"context"

	"github.com/memorybank/keyctl/pkg/keygen"
)

// DefaultRateLimit is the issued requests-per-minute budget when the
// caller does not choose one.
const DefaultRateLimit = 60

// CreateParams are the inputs to minting a new key. Owner refs are
// mandatory for the direct-store variant and ignored by the remote one.
type CreateParams struct {
	UserID    string
	ProjectID string

	Label         *string
	Environment   keygen.Environment
	ExpiresInDays int // 0 means the key never expires
	Scopes        []string
	RateLimit     int // 0 means DefaultRateLimit
}

// Backend is the capability set the rest of the engine is written
// against. Two variants conform: the remote /api/keys client and the
// direct relational store. For the same persisted data both must return
// field-identical Records.
//
// Expected outcomes are values, not errors: a revoke that applied
// nothing reports false, a lookup that found nothing reports nil.
type Backend interface {
	// Name identifies the variant ("api" or "store").
	Name() string

	// Info is a short display string for the operator (base URL or
	// store provider). It never contains credentials.
	Info() string

	// RequiresOwnerRefs reports whether CreateKey needs user/project
	// refs resolved by the caller.
	RequiresOwnerRefs() bool

	// ListKeys returns keys ordered by creation time, most recent
	// first. With includeRevoked false, only records with revokedAt set
	// are excluded; expired-but-unrevoked keys are still returned.
	ListKeys(ctx context.Context, includeRevoked bool) ([]*Record, error)

	// CreateKey mints and persists a new key, returning the record with
	// its one-time plaintext set.
	CreateKey(ctx context.Context, p CreateParams) (*Record, error)

	// RevokeKey applies a revocation. It returns false, not an error,
	// when the key is missing or already revoked; true only when this
	// call set revokedAt. Safe to call twice.
	RevokeKey(ctx context.Context, id string) (bool, error)

	// GetKeyInfo returns the key or nil when it does not exist.
	GetKeyInfo(ctx context.Context, id string) (*Record, error)

	// HealthCheck is best-effort: transient failures become false, they
	// are never raised.
	HealthCheck(ctx context.Context) bool
}

package key

import (
	"context"
	"fmt"

	"github.com/memorybank/keyctl/pkg/errutil"
	"github.com/memorybank/keyctl/pkg/keygen"

	"go.uber.org/zap"
)

// RotateParams are the caller-supplied knobs of a rotation. Everything
// else about the replacement is carried over from the source key.
type RotateParams struct {
	// ExpiresInDays sets an expiry on the replacement. Rotation never
	// carries the source key's expiry over; operators opt back in here
	// explicitly.
	ExpiresInDays int
}

// Rotate revokes the source key and mints a replacement carrying over
// its label, environment and rate limit. It is built only from Backend
// primitives and is atomic in intent, not in storage: once the revoke
// has applied, any later failure is terminal — the source stays revoked,
// the replacement is not created, and the error tells the operator to
// resolve manually. No rollback, no retry.
func Rotate(ctx context.Context, b Backend, id string, p RotateParams, log *zap.Logger) (*Record, error) {
	src, err := b.GetKeyInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errutil.NotFound(fmt.Sprintf("key %s does not exist", id))
	}
	if src.Status != StatusActive {
		return nil, errutil.InvalidState(fmt.Sprintf("key %s is %s, only active keys can be rotated", id, src.Status))
	}

	applied, err := b.RevokeKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Someone else revoked it between the check and the call. A
		// rotation that did not revoke its source must not mint an
		// orphan replacement.
		return nil, errutil.InvalidState(fmt.Sprintf("key %s was not revoked by this rotation, aborting", id))
	}

	params := CreateParams{
		Label:         src.Label,
		Environment:   keygen.EnvironmentFromPrefix(src.Prefix),
		RateLimit:     src.RateLimit,
		ExpiresInDays: p.ExpiresInDays,
	}

	if b.RequiresOwnerRefs() {
		info, err := b.GetKeyInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		if info == nil || info.UserID == "" || info.ProjectID == "" {
			return nil, errutil.OwnershipUnresolved(fmt.Sprintf(
				"key %s is revoked but its owner could not be determined; replacement not created, resolve manually", id))
		}
		params.UserID = info.UserID
		params.ProjectID = info.ProjectID
	}

	replacement, err := b.CreateKey(ctx, params)
	if err != nil {
		// Same terminal state as unresolved ownership: revoke stands.
		return nil, err
	}

	log.Info("key rotated",
		zap.String("old_prefix", src.Prefix),
		zap.String("new_prefix", replacement.Prefix),
	)
	return replacement, nil
}

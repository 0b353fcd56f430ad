package auth

import (
	"context"

	"medscribe/internal/model"
	"medscribe/pkg/errors"

	"github.com/google/uuid"
)

// Authorizer decides whether a caller may see or act on a dictation.
type Authorizer interface {
	Authorize(ctx context.Context, callerID uuid.UUID, d *model.Dictation) error
}

// OwnerAuthorizer allows only the caller who uploaded the dictation.
type OwnerAuthorizer struct{}

func NewOwnerAuthorizer() OwnerAuthorizer {
	return OwnerAuthorizer{}
}

func (OwnerAuthorizer) Authorize(ctx context.Context, callerID uuid.UUID, d *model.Dictation) error {
	if callerID == uuid.Nil {
		return errors.ErrUnauthenticated
	}
	if d.OwnerID != callerID {
		return errors.ErrForbidden
	}
	return nil
}

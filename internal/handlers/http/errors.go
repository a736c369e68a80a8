package http

import (
	stderrors "errors"

	"streamfy/internal/core/domain"
	"streamfy/pkg/errors"
)

// toAppError maps domain failures onto API error codes.
func toAppError(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrDJNotFound):
		return errors.NewNotFoundError("dj session").WithCause(err)
	case stderrors.Is(err, domain.ErrTrackNotFound):
		return errors.NewNotFoundError("track").WithCause(err)
	case stderrors.Is(err, domain.ErrRoomNotFound):
		return errors.NewNotFoundError("room").WithCause(err)
	case stderrors.Is(err, domain.ErrCapabilityDisabled):
		return errors.NewCapabilityDisabledError(err.Error()).WithCause(err)
	case stderrors.Is(err, domain.ErrQueueFull):
		return errors.NewQueueFullError().WithCause(err)
	case stderrors.Is(err, domain.ErrQueueEmpty):
		return errors.NewQueueEmptyError().WithCause(err)
	case stderrors.Is(err, domain.ErrInvalidTrack), stderrors.Is(err, domain.ErrInvalidSettings):
		return errors.NewInvalidInputError(err.Error()).WithCause(err)
	case stderrors.Is(err, domain.ErrUnauthorized):
		return errors.NewUnauthorizedError("authentication required").WithCause(err)
	case stderrors.Is(err, domain.ErrStoreUnavailable):
		return errors.NewServiceUnavailableError("storage temporarily unavailable").WithCause(err)
	default:
		return errors.NewInternalError("internal server error").WithCause(err)
	}
}

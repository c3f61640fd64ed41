package application

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/coldroom-service/internal/domain"
	sharedErrors "github.com/wms-platform/coldroom-service/pkg/errors"
)

// unavailableRetryAfter is the Retry-After hint for lock contention and timeouts
const unavailableRetryAfter = 2 * time.Second

var validationErrors = []error{
	domain.ErrInvalidBoxSpec,
	domain.ErrInvalidQuantity,
	domain.ErrColdRoomRequired,
	domain.ErrUnknownColdRoom,
	domain.ErrPalletNameRequired,
	domain.ErrNoPalletGroups,
	domain.ErrInvalidReading,
	domain.ErrBoxInPallet,
}

// toAppError maps a domain or store error onto the shared taxonomy. Internal
// errors keep the cause for logging and show clients a generic message.
func toAppError(err error) *sharedErrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := sharedErrors.AsAppError(err); ok {
		return appErr
	}

	var dup *domain.DuplicatePalletError
	if errors.As(err, &dup) {
		return sharedErrors.ErrConflict(domain.ErrDuplicatePallet.Error()).
			WithDetail("existingPalletId", dup.PalletID).
			WithDetail("existingPalletName", dup.PalletName).
			Wrap(err)
	}

	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return sharedErrors.ErrValidation(err.Error()).Wrap(err)
		}
	}

	switch {
	case errors.Is(err, domain.ErrPalletNotFound):
		return sharedErrors.ErrNotFound("pallet").Wrap(err)
	case errors.Is(err, domain.ErrCountingRecordNotFound):
		return sharedErrors.ErrNotFound("counting record").Wrap(err)
	case errors.Is(err, domain.ErrLockNotObtained),
		errors.Is(err, context.DeadlineExceeded):
		return sharedErrors.ErrServiceUnavailable("cold room", unavailableRetryAfter).Wrap(err)
	}

	return sharedErrors.ErrInternal("").Wrap(err)
}

func isLockContention(err error) bool {
	return errors.Is(err, domain.ErrLockNotObtained)
}

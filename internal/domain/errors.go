package domain

import "errors"

// Cold-room domain errors
var (
	// ErrInvalidBoxSpec is returned when a variety, box type, grade or size is not acceptable
	ErrInvalidBoxSpec = errors.New("invalid box specification")

	// ErrInvalidQuantity is returned when a quantity is negative or zero where a positive one is required
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrColdRoomRequired is returned when an operation is missing its cold room
	ErrColdRoomRequired = errors.New("cold room is required")

	// ErrUnknownColdRoom is returned when a cold room is not in the catalog
	ErrUnknownColdRoom = errors.New("unknown cold room")

	// ErrBoxNotFound is returned when a box row no longer exists
	ErrBoxNotFound = errors.New("box not found")

	// ErrBoxInPallet is returned when a loose-box operation targets a palletized box
	ErrBoxInPallet = errors.New("box is already assigned to a pallet")

	// ErrPalletNotFound is returned when a pallet cannot be found
	ErrPalletNotFound = errors.New("pallet not found")

	// ErrPalletNameRequired is returned when a manual pallet has no name
	ErrPalletNameRequired = errors.New("pallet name is required")

	// ErrNoPalletGroups is returned when a manual pallet request has no positive quantity
	ErrNoPalletGroups = errors.New("at least one group with a positive quantity is required")

	// ErrDuplicatePallet is returned when a manual pallet with the same composition exists
	ErrDuplicatePallet = errors.New("a pallet with the same composition already exists")

	// ErrCountingRecordNotFound is returned when a counting record cannot be found
	ErrCountingRecordNotFound = errors.New("counting record not found")

	// ErrLockNotObtained is returned when a group lock could not be acquired in time
	ErrLockNotObtained = errors.New("group lock not obtained")

	// ErrInvalidReading is returned when a temperature or humidity reading is out of its physical range
	ErrInvalidReading = errors.New("invalid sensor reading")

	// ErrMalformedDocument is returned when a persisted JSON sub-document does not decode
	ErrMalformedDocument = errors.New("malformed document")
)

// DuplicatePalletError carries the pallet that made a request a duplicate
type DuplicatePalletError struct {
	PalletID   string
	PalletName string
}

func (e *DuplicatePalletError) Error() string {
	return ErrDuplicatePallet.Error() + ": " + e.PalletName
}

// Is matches ErrDuplicatePallet
func (e *DuplicatePalletError) Is(target error) bool {
	return target == ErrDuplicatePallet
}

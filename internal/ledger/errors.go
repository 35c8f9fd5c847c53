package ledger

import "errors"

var (
	// ErrNotInitialized is returned by mutating calls made before Initialize.
	ErrNotInitialized = errors.New("token not initialized")

	// ErrAlreadyInitialized is returned when Initialize runs a second time.
	ErrAlreadyInitialized = errors.New("token already initialized")

	// ErrInsufficientBalance is returned when a transfer exceeds the source balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotAuthorized is returned when a non-minter attempts to mint.
	ErrNotAuthorized = errors.New("caller is not authorized to mint")

	// ErrNotOwner is returned when someone other than the owner adds a minter.
	ErrNotOwner = errors.New("only the owner can add minters")

	// ErrAmountOverflow is returned when a mint would overflow the total supply.
	ErrAmountOverflow = errors.New("amount overflows total supply")

	// ErrInvalidPrincipal is returned for malformed identities.
	ErrInvalidPrincipal = errors.New("invalid principal")

	// ErrInvalidAmount is returned when a display amount cannot be represented.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrCorruptSnapshot is returned when a snapshot violates a ledger invariant.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Code returns the stable wire name of a ledger error, or "" when err is not
// one of the package's sentinels.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return "NotInitialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "AlreadyInitialized"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrNotAuthorized):
		return "NotAuthorized"
	case errors.Is(err, ErrNotOwner):
		return "NotOwner"
	case errors.Is(err, ErrAmountOverflow):
		return "AmountOverflow"
	case errors.Is(err, ErrInvalidPrincipal):
		return "InvalidPrincipal"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrCorruptSnapshot):
		return "CorruptSnapshot"
	}
	return ""
}

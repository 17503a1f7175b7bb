package engine

import (
	"errors"
	"fmt"
)

// UnitError represents a failure that prevented a unit from producing a
// meaningful test outcome. Test failures are NOT UnitErrors - they are
// the unit's outcome.
//
// UnitError includes structured fields for diagnostics; the code becomes
// the unit's stored detail.
type UnitError struct {
	// Code identifies the error category.
	Code UnitErrorCode

	// UnitKey identifies the affected unit.
	UnitKey string

	// Step names the step that failed (e.g. "fetch", "overlay-install").
	Step string

	// Message is a human-readable description.
	Message string

	// Output is the failing step's combined output, if any.
	Output string

	// Err is the underlying error, if any.
	Err error
}

// UnitErrorCode categorizes unit errors.
type UnitErrorCode string

const (
	// ErrCodeFetchFailed indicates the project source could not be
	// fetched (network failure, missing ref). Fatal to this unit only.
	ErrCodeFetchFailed UnitErrorCode = "FETCH_FAILED"

	// ErrCodeOverlayInstall indicates dependency installation or the
	// overlay install itself failed - an incompatible dependency
	// resolution is a real compatibility break, not noise.
	ErrCodeOverlayInstall UnitErrorCode = "OVERLAY_INSTALL_FAILED"

	// ErrCodeOverlayNotVerified indicates the package listing did not
	// show the working tree as the installed target library. The unit's
	// result would be meaningless, so it never reaches testing.
	ErrCodeOverlayNotVerified UnitErrorCode = "OVERLAY_NOT_VERIFIED"

	// ErrCodeServiceUnready indicates a required auxiliary service
	// never became ready.
	ErrCodeServiceUnready UnitErrorCode = "SERVICE_UNREADY"

	// ErrCodeTestNotRun indicates the test command itself could not be
	// executed (missing binary, broken script). Distinct from a failing
	// test suite, which is an outcome.
	ErrCodeTestNotRun UnitErrorCode = "TEST_NOT_RUN"
)

// Error implements the error interface.
func (e *UnitError) Error() string {
	if e.UnitKey != "" && e.Step != "" {
		return fmt.Sprintf("%s: %s (unit=%s, step=%s)", e.Code, e.Message, e.UnitKey, e.Step)
	}
	if e.UnitKey != "" {
		return fmt.Sprintf("%s: %s (unit=%s)", e.Code, e.Message, e.UnitKey)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// IsOverlayError reports whether err is an overlay install or
// verification failure. Uses errors.As to handle wrapped errors.
func IsOverlayError(err error) bool {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Code == ErrCodeOverlayInstall || ue.Code == ErrCodeOverlayNotVerified
	}
	return false
}

// CodeOf extracts the UnitErrorCode from an error, or "" if the error is
// not a UnitError.
func CodeOf(err error) UnitErrorCode {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}

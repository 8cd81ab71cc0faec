package scraper

import "errors"

var (
	// ErrFieldNotFound means no selector candidate matched a required field
	ErrFieldNotFound = errors.New("no selector candidate matched")

	// ErrStillOnLogin means the browser never left the login or identity
	// provider screen after submitting credentials
	ErrStillOnLogin = errors.New("still on login screen after submit")

	// ErrListPageNotFound means the open-deadline list could not be located
	// in any tab after clicking through the advocate panel
	ErrListPageNotFound = errors.New("deadline list page not found")

	// ErrAlreadyStored reports a document skipped by path de-duplication
	ErrAlreadyStored = errors.New("document already stored")

	// ErrEmptyCapture means no response bytes could be captured for an
	// attachment
	ErrEmptyCapture = errors.New("empty document capture")
)

// AuthFailure wraps the terminal outcome of a failed login attempt
type AuthFailure struct {
	Reason string
}

func (e *AuthFailure) Error() string {
	return "authentication failed: " + e.Reason
}

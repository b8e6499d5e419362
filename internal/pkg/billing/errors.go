package billing

import "errors"

var (
	// ErrUnverifiedEvent rejects a delivery whose authenticity could not be
	// established. No record is touched.
	ErrUnverifiedEvent = errors.New("unverified billing event")
	// ErrMalformedEvent rejects a verified delivery that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed billing event")
	// ErrProviderUnavailable signals a transient failure talking to the
	// provider. The provider is expected to redeliver.
	ErrProviderUnavailable = errors.New("billing provider unavailable")
	// ErrNotConfigured means the provider has no credentials configured.
	ErrNotConfigured = errors.New("billing provider not configured")
)

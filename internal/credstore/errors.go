package credstore

import "errors"

// Error kinds the guard and auth flows match on. Handlers translate these to
// generic user-facing messages; the raw provider text stays in the logs.
var (
	// ErrUnavailable: network failure, timeout or a 5xx from the provider.
	ErrUnavailable = errors.New("credential store unavailable")
	// ErrDenied: the provider rejected the credentials or token.
	ErrDenied = errors.New("credential store denied the request")
	// ErrNotFound: no such user/resource.
	ErrNotFound = errors.New("credential store: not found")
	// ErrSessionExpired: a refresh exchange failed; the session is dead.
	ErrSessionExpired = errors.New("credential session expired")
)

// DeniedError carries the provider's own rejection text alongside ErrDenied.
// Most flows keep that text in the logs; registration shows it to the user.
type DeniedError struct {
	Msg string
}

func (e *DeniedError) Error() string {
	if e.Msg == "" {
		return ErrDenied.Error()
	}
	return ErrDenied.Error() + ": " + e.Msg
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

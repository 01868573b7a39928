package favicon

import "errors"

// ErrNotFound is returned when every candidate and the remote fallback tier
// have been exhausted. Callers resolve it by serving the default image; it
// never reaches the HTTP client as an error.
var ErrNotFound = errors.New("favicon: no icon found")

// ErrRemoteDisabled is returned by the remote fallback tier when no provider
// is configured.
var ErrRemoteDisabled = errors.New("favicon: remote fallback not configured")

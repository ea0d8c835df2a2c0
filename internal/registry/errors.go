package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoCompatibleRelease is returned when no listed release satisfies the
// active version constraint.
var ErrNoCompatibleRelease = errors.New("no compatible release found")

// ErrInsecureRedirect is returned when the registry redirects to a URL that
// is not served over secure transport.
var ErrInsecureRedirect = errors.New("redirected to an insecure URL")

// APIError is a non-2xx registry response that is not a rate limit.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API returned status %d: %s", e.StatusCode, e.Body)
}

// RateLimitError indicates the registry refused the request because the
// client's request quota is exhausted until ResetAt.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("registry rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// UnexpectedAssetCountError indicates a release did not carry exactly one
// downloadable asset.
type UnexpectedAssetCountError struct {
	Release string
	Count   int
}

func (e *UnexpectedAssetCountError) Error() string {
	return fmt.Sprintf("release %q has %d assets, expected exactly 1", e.Release, e.Count)
}

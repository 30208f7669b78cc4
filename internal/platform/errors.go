package platform

import "fmt"

// ValidationError means the post content or media does not meet the
// platform/content-type requirements. Raised before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TokenExpiredError means the account credentials are invalid, expired or
// revoked. The orchestrator disconnects the owning account when it sees one.
type TokenExpiredError struct {
	Message string
	Code    int
}

func (e *TokenExpiredError) Error() string {
	return e.Message
}

// PublishError is any other platform API rejection or transport failure.
type PublishError struct {
	Platform string
	Message  string
	Code     int
}

func (e *PublishError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Platform, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

// TokenRefreshError is internal to token refresh; callers convert it to
// TokenExpiredError before it leaves the package.
type TokenRefreshError struct {
	Platform string
	Message  string
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("%s token refresh failed: %s", e.Platform, e.Message)
}

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

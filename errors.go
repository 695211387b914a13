package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Public error codes rendered in the `code` field of error responses.
const (
	CodeAuthRequired    = "AUTH_REQUIRED"
	CodeUserNotFound    = "USER_NOT_FOUND"
	CodePasswordChanged = "PASSWORD_CHANGED"
	CodeAccountLocked   = goerrors.TextCodeAccountLocked
	CodeTokenExpired    = goerrors.TextCodeTokenExpired
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeForbidden       = "FORBIDDEN"
	CodeAuthError       = "AUTH_ERROR"
)

var publicCodes = map[string]bool{
	CodeAuthRequired:    true,
	CodeUserNotFound:    true,
	CodePasswordChanged: true,
	CodeAccountLocked:   true,
	CodeTokenExpired:    true,
	CodeInvalidToken:    true,
	CodeForbidden:       true,
	CodeAuthError:       true,
}

var (
	// ErrAuthRequired no token was presented
	ErrAuthRequired = goerrors.New("no token, authorization denied", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(CodeAuthRequired)

	// ErrTokenExpired token is past its expiration
	ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(CodeTokenExpired)

	// ErrTokenMalformed token can not be decoded or has a bad signature
	ErrTokenMalformed = goerrors.New("token is not valid", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(CodeInvalidToken)

	// ErrUserNotFound token subject no longer resolves to an active user
	ErrUserNotFound = goerrors.New("user not found or inactive", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(CodeUserNotFound)

	// ErrPasswordChanged password changed after the token was issued
	ErrPasswordChanged = goerrors.New("password recently changed, please log in again", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(CodePasswordChanged)

	// ErrAccountLocked too many failed logins
	ErrAccountLocked = goerrors.New("account temporarily locked due to too many failed login attempts", goerrors.CategoryAuth).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(CodeAccountLocked)

	// ErrForbidden role is not allowed on the route
	ErrForbidden = goerrors.New("access denied, insufficient permissions", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(CodeForbidden)

	// ErrEmailNotVerified the account must verify its email first
	ErrEmailNotVerified = goerrors.New("email address has not been verified", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(CodeForbidden)

	// ErrAuthInternal unexpected failure while authenticating
	ErrAuthInternal = goerrors.New("server error during authentication", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(CodeAuthError)

	// ErrSigningKey the signing key is missing or unusable
	ErrSigningKey = goerrors.New("token signing key is not configured", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(CodeAuthError)

	// ErrMismatchedHashAndPassword wrong password or unknown email
	ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryBadInput).
					WithCode(goerrors.CodeBadRequest).
					WithTextCode(goerrors.TextCodeInvalidCredentials)

	// ErrNoEmptyString empty password
	ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(goerrors.TextCodeEmptyPassword)

	// ErrInvalidRequestBody the payload could not be decoded
	ErrInvalidRequestBody = goerrors.New("invalid request body", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest)

	// ErrInvalidResetToken reset token unknown, used or expired
	ErrInvalidResetToken = goerrors.New("password reset token is invalid or has expired", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(goerrors.TextCodeTokenExpired)

	// ErrInvalidVerificationToken verification token unknown, used or expired
	ErrInvalidVerificationToken = goerrors.New("email verification token is invalid or has expired", goerrors.CategoryBadInput).
					WithCode(goerrors.CodeBadRequest).
					WithTextCode(goerrors.TextCodeVerificationExpired)
)

// NewAccountLockedError returns an ACCOUNT_LOCKED error carrying the unlock time.
func NewAccountLockedError(until time.Time) *goerrors.Error {
	return ErrAccountLocked.Clone().WithMetadata(map[string]any{
		"locked_until": until.UTC(),
	})
}

// LockedUntil returns the unlock time attached to an ACCOUNT_LOCKED error.
func LockedUntil(err error) (time.Time, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != CodeAccountLocked {
		return time.Time{}, false
	}
	until, ok := richErr.Metadata["locked_until"].(time.Time)
	return until, ok
}

// ErrorCode returns the text code of a rich error, or an empty string.
func ErrorCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsPublicCode reports whether code is rendered back to clients.
func IsPublicCode(code string) bool {
	return publicCodes[code]
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

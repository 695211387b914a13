package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

const secretTokenBytes = 32

// SecretToken is a single use token handed to the user by mail. Only Hash
// and Expires are ever persisted.
type SecretToken struct {
	Raw     string
	Hash    string
	Expires time.Time
}

// NewSecretToken creates a random token that expires ttl after now.
func NewSecretToken(now time.Time, ttl time.Duration) (SecretToken, error) {
	buf := make([]byte, secretTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return SecretToken{}, err
	}

	raw := hex.EncodeToString(buf)
	return SecretToken{
		Raw:     raw,
		Hash:    HashSecretToken(raw),
		Expires: now.Add(ttl).UTC(),
	}, nil
}

// HashSecretToken returns the hex sha256 digest of a raw token.
func HashSecretToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func checkSecretToken(raw, storedHash string, expires *time.Time, now time.Time) bool {
	if raw == "" || storedHash == "" || expires == nil {
		return false
	}
	candidate := HashSecretToken(raw)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) != 1 {
		return false
	}
	return expires.After(now)
}

// CheckResetToken reports whether raw matches the stored reset token and
// the token has not expired.
func (u *User) CheckResetToken(raw string, now time.Time) bool {
	if u == nil {
		return false
	}
	return checkSecretToken(raw, u.ResetPasswordToken, u.ResetPasswordExpires, now)
}

// CheckEmailVerificationToken reports whether raw matches the stored
// verification token and the token has not expired.
func (u *User) CheckEmailVerificationToken(raw string, now time.Time) bool {
	if u == nil {
		return false
	}
	return checkSecretToken(raw, u.EmailVerificationToken, u.EmailVerificationExpires, now)
}

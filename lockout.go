package auth

import "time"

// LockoutPolicy decides when repeated login failures lock an account.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutPolicy locks for 30 minutes after 5 failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return DefaultConfig().LockoutPolicy()
}

// LockUntil returns the lock expiry for a lock starting at now.
func (p LockoutPolicy) LockUntil(now time.Time) time.Time {
	return now.Add(p.LockDuration).UTC()
}

// IsLocked reports whether the account has an unlock time in the future.
func (u *User) IsLocked(now time.Time) bool {
	return u != nil && u.LockedUntil != nil && u.LockedUntil.After(now)
}

// HasExpiredLock reports whether a lock was set and has since elapsed.
func (u *User) HasExpiredLock(now time.Time) bool {
	return u != nil && u.LockedUntil != nil && !u.LockedUntil.After(now)
}

// ChangedPasswordAfter reports whether the password was changed after the
// given token issued-at time, compared in whole seconds.
func (u *User) ChangedPasswordAfter(issuedAt int64) bool {
	if u == nil || u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > issuedAt
}

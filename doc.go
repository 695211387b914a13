// Package auth is the authentication core of the library service: account
// registration, credential checks with lockout, signed session tokens and
// the checks that turn a token back into a session.
//
// Lockout:
//   - Failed logins are counted with a single UPDATE so concurrent attempts
//     never lose an increment. The failure that reaches the limit locks the
//     account and is answered with ACCOUNT_LOCKED.
//   - A locked account is rejected before its password is compared, and an
//     elapsed lock is cleared before the next check.
//
// Sessions:
//   - Tokens carry the user id and role and are signed with HS256. Resolving
//     a token re-reads the user, so deactivation, password changes and locks
//     take effect on the next request.
//   - A password change invalidates tokens issued in an earlier second.
//
// Activity sinks:
//   - ActivitySink receives registration, login, lockout, password and role
//     events. Sinks run best effort and their errors are only logged.
package auth

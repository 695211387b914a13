package auth

import "time"

// Session is the validated user and token pair attached to a request.
type Session struct {
	User   *User
	Claims AuthClaims
}

var _ Identity = (*Session)(nil)

func (s *Session) ID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID.String()
}

func (s *Session) Username() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Username
}

func (s *Session) Email() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Email
}

// Role returns the role stored on the user record, which wins over the
// role embedded in the token.
func (s *Session) Role() string {
	if s == nil || s.User == nil {
		return ""
	}
	return string(s.User.Role)
}

// IssuedAt returns the token issue time.
func (s *Session) IssuedAt() time.Time {
	if s == nil || s.Claims == nil {
		return time.Time{}
	}
	return s.Claims.IssuedAt()
}

// Public returns the non secret projection of the session user.
func (s *Session) Public() PublicUser {
	if s == nil {
		return PublicUser{}
	}
	return s.User.Public()
}

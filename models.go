package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persisted account record. It carries secrets and must not be
// serialized to clients; use Public or Summary instead.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"-"`
	Username      string    `bun:"username,notnull,unique" json:"-"`
	Email         string    `bun:"email,notnull,unique" json:"-"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	Role          UserRole  `bun:"role,notnull" json:"-"`
	IsActive      bool      `bun:"is_active,notnull" json:"-"`
	EmailVerified bool      `bun:"is_email_verified,notnull" json:"-"`

	LoginAttempts     int        `bun:"login_attempts,notnull" json:"-"`
	LockedUntil       *time.Time `bun:"locked_until,nullzero" json:"-"`
	LastLoginAt       *time.Time `bun:"last_login_at,nullzero" json:"-"`
	PasswordChangedAt *time.Time `bun:"password_changed_at,nullzero" json:"-"`

	ResetPasswordToken       string     `bun:"reset_password_token,nullzero" json:"-"`
	ResetPasswordExpires     *time.Time `bun:"reset_password_expires,nullzero" json:"-"`
	EmailVerificationToken   string     `bun:"email_verification_token,nullzero" json:"-"`
	EmailVerificationExpires *time.Time `bun:"email_verification_expires,nullzero" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"-"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"-"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// UserSummary is the user shape returned with a freshly issued token.
type UserSummary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

// PublicUser is the non secret projection of a User.
type PublicUser struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          UserRole   `json:"role"`
	IsActive      bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	LockedUntil   *time.Time `json:"lockedUntil,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Summary projects the user into a UserSummary.
func (u *User) Summary() UserSummary {
	if u == nil {
		return UserSummary{}
	}
	return UserSummary{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// Public projects the user into a PublicUser.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		LockedUntil:   u.LockedUntil,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// AuthResponse is the body returned by register, login and password change.
type AuthResponse struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TrackAttemptedLoginSQL bumps the failure counter in a single statement.
// Every right hand side reads the pre update row, so the lock is set by the
// same statement that brings the counter to the limit.
var TrackAttemptedLoginSQL = `UPDATE "users"
SET
	"login_attempts" = CASE WHEN "login_attempts" + 1 > ? THEN ? ELSE "login_attempts" + 1 END,
	"locked_until" = CASE WHEN "login_attempts" + 1 >= ? THEN ? ELSE "locked_until" END,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

// TrackSuccessfulLoginSQL leaves a locked row untouched, a lock set by a
// concurrent failure after the password check still holds.
var TrackSuccessfulLoginSQL = `UPDATE "users"
SET
	"login_attempts" = 0,
	"locked_until" = NULL,
	"last_login_at" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
	AND ("locked_until" IS NULL OR "locked_until" <= ?)
RETURNING *;`

// ClearExpiredLockSQL only touches rows whose lock has run out and that still
// sit at the limit, so a concurrent failure counted after the reset is not
// wiped again.
var ClearExpiredLockSQL = `UPDATE "users"
SET
	"login_attempts" = 0,
	"locked_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
	AND "locked_until" IS NOT NULL
	AND "login_attempts" >= ?
	AND "locked_until" <= ?
RETURNING *;`

var UnlockUserSQL = `UPDATE "users"
SET
	"login_attempts" = 0,
	"locked_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

var SaveResetTokenSQL = `UPDATE "users"
SET
	"reset_password_token" = ?,
	"reset_password_expires" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

var SaveVerificationTokenSQL = `UPDATE "users"
SET
	"email_verification_token" = ?,
	"email_verification_expires" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

// ChangePasswordSQL stores a new hash and stamps password_changed_at, which
// invalidates every token issued before it.
var ChangePasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"reset_password_token" = NULL,
	"reset_password_expires" = NULL,
	"login_attempts" = 0,
	"locked_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

// ResetPasswordSQL is ChangePasswordSQL guarded by the reset token hash so a
// token can only be consumed once.
var ResetPasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"reset_password_token" = NULL,
	"reset_password_expires" = NULL,
	"login_attempts" = 0,
	"locked_until" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "reset_password_token" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

var MarkEmailVerifiedSQL = `UPDATE "users"
SET
	"is_email_verified" = TRUE,
	"email_verification_token" = NULL,
	"email_verification_expires" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "email_verification_token" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

var UpdateRoleSQL = `UPDATE "users"
SET
	"role" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "deleted_at" IS NULL
RETURNING *;`

// TakenIdentifiers reports which registration identifiers already exist.
type TakenIdentifiers struct {
	Username bool
	Email    bool
}

// Any reports whether either identifier is taken.
func (t TakenIdentifiers) Any() bool {
	return t.Username || t.Email
}

type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByResetTokenHashTx(ctx context.Context, tx bun.IDB, hash string) (*User, error)
	GetByVerificationTokenHashTx(ctx context.Context, tx bun.IDB, hash string) (*User, error)
	IdentifiersTakenTx(ctx context.Context, tx bun.IDB, username, email string) (TakenIdentifiers, error)
	ListPage(ctx context.Context, page, limit int) ([]*User, int, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	TrackAttemptedLogin(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error)
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error)
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) (*User, error)
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*User, error)
	ClearExpiredLock(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) error
	Unlock(ctx context.Context, id uuid.UUID, now time.Time) (*User, error)

	SaveResetToken(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error
	SaveVerificationToken(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error

	ChangePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) (*User, error)
	ChangePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, now time.Time) (*User, error)
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash, passwordHash string, now time.Time) (*User, error)
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash string, now time.Time) (*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role UserRole, now time.Time) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ UserTracker                  = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.Repository.GetTx(ctx, tx, repository.SelectBy("email", "=", normalizeIdentifier(email)))
}

func (a *users) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.Repository.GetByIDTx(ctx, a.db, id.String(), selectActive)
}

func (a *users) GetByResetTokenHashTx(ctx context.Context, tx bun.IDB, hash string) (*User, error) {
	return a.Repository.GetTx(ctx, tx, repository.SelectBy("reset_password_token", "=", hash), selectActive)
}

func (a *users) GetByVerificationTokenHashTx(ctx context.Context, tx bun.IDB, hash string) (*User, error) {
	return a.Repository.GetTx(ctx, tx, repository.SelectBy("email_verification_token", "=", hash), selectActive)
}

// IdentifiersTakenTx checks both identifiers, soft deleted rows included
// since they still hold the unique index.
func (a *users) IdentifiersTakenTx(ctx context.Context, tx bun.IDB, username, email string) (TakenIdentifiers, error) {
	taken := TakenIdentifiers{}

	n, err := a.Repository.CountTx(ctx, tx, repository.SelectBy("email", "=", normalizeIdentifier(email)), selectWithDeleted)
	if err != nil {
		return taken, err
	}
	taken.Email = n > 0

	n, err = a.Repository.CountTx(ctx, tx, repository.SelectBy("username", "=", normalizeIdentifier(username)), selectWithDeleted)
	if err != nil {
		return taken, err
	}
	taken.Username = n > 0

	return taken, nil
}

func (a *users) ListPage(ctx context.Context, page, limit int) ([]*User, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	return a.Repository.List(ctx,
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, (page-1)*limit),
	)
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) TrackAttemptedLogin(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error) {
	return a.TrackAttemptedLoginTx(ctx, a.db, id, policy, now)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error) {
	now = now.UTC()
	return a.updateOne(ctx, tx, id, TrackAttemptedLoginSQL,
		policy.MaxAttempts, policy.MaxAttempts,
		policy.MaxAttempts, policy.LockUntil(now),
		now, id.String(),
	)
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) (*User, error) {
	return a.TrackSuccessfulLoginTx(ctx, a.db, id, now)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*User, error) {
	now = now.UTC()
	return a.updateOne(ctx, tx, id, TrackSuccessfulLoginSQL, now, now, id.String(), now)
}

func (a *users) ClearExpiredLock(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) error {
	// zero rows means someone else already cleared it
	now = now.UTC()
	_, err := a.Repository.RawTx(ctx, a.db, ClearExpiredLockSQL, now, id.String(), policy.MaxAttempts, now)
	return err
}

func (a *users) Unlock(ctx context.Context, id uuid.UUID, now time.Time) (*User, error) {
	return a.updateOne(ctx, a.db, id, UnlockUserSQL, now.UTC(), id.String())
}

func (a *users) SaveResetToken(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error {
	_, err := a.updateOne(ctx, a.db, id, SaveResetTokenSQL, token.Hash, token.Expires, now.UTC(), id.String())
	return err
}

func (a *users) SaveVerificationToken(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error {
	_, err := a.updateOne(ctx, a.db, id, SaveVerificationTokenSQL, token.Hash, token.Expires, now.UTC(), id.String())
	return err
}

func (a *users) ChangePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) (*User, error) {
	return a.ChangePasswordTx(ctx, a.db, id, passwordHash, now)
}

func (a *users) ChangePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, now time.Time) (*User, error) {
	now = now.UTC()
	return a.updateOne(ctx, tx, id, ChangePasswordSQL, passwordHash, now, now, id.String())
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash, passwordHash string, now time.Time) (*User, error) {
	now = now.UTC()
	return a.updateOne(ctx, tx, id, ResetPasswordSQL, passwordHash, now, now, id.String(), tokenHash)
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash string, now time.Time) (*User, error) {
	return a.updateOne(ctx, tx, id, MarkEmailVerifiedSQL, now.UTC(), id.String(), tokenHash)
}

func (a *users) UpdateRole(ctx context.Context, id uuid.UUID, role UserRole, now time.Time) (*User, error) {
	return a.updateOne(ctx, a.db, id, UpdateRoleSQL, string(role), now.UTC(), id.String())
}

func (a *users) updateOne(ctx context.Context, tx bun.IDB, id uuid.UUID, query string, args ...any) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, query, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func selectActive(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("?TableAlias.is_active = ?", true)
}

func selectWithDeleted(q *bun.SelectQuery) *bun.SelectQuery {
	return q.WhereAllWithDeleted()
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Username = normalizeIdentifier(record.Username)
	record.Email = normalizeIdentifier(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  normalizeIdentifier(trimmed),
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  normalizeIdentifier(trimmed),
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

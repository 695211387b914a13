package auth

import (
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AuthCommands groups the command handlers served over HTTP.
type AuthCommands struct {
	Register       *RegisterUserHandler
	ChangePassword *ChangePasswordHandler
	RequestReset   *InitializePasswordResetHandler
	FinalizeReset  *FinalizePasswordResetHandler
	RequestVerify  *AccountVerificationRequestHandler
	Verify         *AccountVerificationHandler
	ChangeRole     *ChangeRoleHandler
	Unlock         *UnlockAccountHandler
}

// CommandDeps holds what NewAuthCommands needs to build every handler.
type CommandDeps struct {
	Repo     RepositoryManager
	Provider *UserProvider
	Config   Config
	Mailer   Mailer
	Activity ActivitySink
	Logger   Logger
	Clock    func() time.Time
}

// NewAuthCommands builds every command handler sharing the same
// dependencies.
func NewAuthCommands(deps CommandDeps) AuthCommands {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return AuthCommands{
		Register: NewRegisterUserHandler(deps.Repo, deps.Provider, deps.Config).
			WithMailer(deps.Mailer).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger).
			WithClock(deps.Clock),
		ChangePassword: NewChangePasswordHandler(deps.Repo, deps.Config).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger).
			WithClock(deps.Clock),
		RequestReset: NewInitializePasswordResetHandler(deps.Repo, deps.Provider).
			WithMailer(deps.Mailer).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger),
		FinalizeReset: NewFinalizePasswordResetHandler(deps.Repo, deps.Config).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger).
			WithClock(deps.Clock),
		RequestVerify: NewAccountVerificationRequestHandler(deps.Repo, deps.Provider).
			WithMailer(deps.Mailer).
			WithLogger(deps.Logger),
		Verify: NewAccountVerificationHandler(deps.Repo).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger).
			WithClock(deps.Clock),
		ChangeRole: NewChangeRoleHandler(deps.Repo).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger),
		Unlock: NewUnlockAccountHandler(deps.Repo).
			WithActivitySink(deps.Activity).
			WithLogger(deps.Logger),
	}
}

type AuthControllerRoutes struct {
	Register       string
	Login          string
	Me             string
	Password       string
	ForgotPassword string
	ResetPassword  string
	VerifyEmail    string
	Users          string
}

type AuthController struct {
	Logger   Logger
	Repo     RepositoryManager
	Auther   Authenticator
	Commands AuthCommands
	Routes   *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

func WithRepositoryManager(repo RepositoryManager) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Repo = repo
		return ac
	}
}

func WithAuthenticator(auther Authenticator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Auther = auther
		return ac
	}
}

func WithCommands(cmds AuthCommands) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Commands = cmds
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	_, logger := ResolveLogger("auth.controller", nil, nil)
	c := &AuthController{
		Logger: logger,
		Routes: &AuthControllerRoutes{
			Register:       "/register",
			Login:          "/login",
			Me:             "/me",
			Password:       "/password",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			VerifyEmail:    "/verify-email",
			Users:          "/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Commands.Register == nil {
		panic("Missing AuthCommands in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the account endpoints on app. gate protects the
// routes that need a session.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController, gate router.MiddlewareFunc) {
	routes := controller.Routes

	app.Post(routes.Register, controller.RegisterPost).
		SetName("auth.register")
	app.Post(routes.Login, controller.LoginPost).
		SetName("auth.login")
	app.Get(routes.Me, controller.MeGet, gate).
		SetName("auth.me")
	app.Put(routes.Password, controller.PasswordPut, gate).
		SetName("auth.password")

	app.Post(routes.ForgotPassword, controller.ForgotPasswordPost).
		SetName("auth.forgot-password")
	app.Post(routes.ResetPassword+"/:token", controller.ResetPasswordPost).
		SetName("auth.reset-password")

	app.Post(routes.VerifyEmail, controller.VerifyEmailRequestPost, gate).
		SetName("auth.verify-email.request")
	app.Get(routes.VerifyEmail+"/:token", controller.VerifyEmailGet).
		SetName("auth.verify-email")
}

// RegisterAdminRoutes mounts user management endpoints on app.
func RegisterAdminRoutes[T any](app router.Router[T], controller *AuthController, gate router.MiddlewareFunc, requireRoles func(...UserRole) router.MiddlewareFunc) {
	routes := controller.Routes
	staff := requireRoles(RoleAdmin, RoleModerator)
	admin := requireRoles(RoleAdmin)

	app.Get(routes.Users, controller.UsersGet, gate, staff).
		SetName("admin.users")
	app.Patch(routes.Users+"/:id/role", controller.UserRolePatch, gate, admin).
		SetName("admin.users.role")
	app.Post(routes.Users+"/:id/unlock", controller.UserUnlockPost, gate, staff).
		SetName("admin.users.unlock")
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type messageResponse struct {
	Msg string `json:"msg"`
}

type usersPage struct {
	Users []PublicUser `json:"users"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return ErrInvalidRequestBody.Clone()
	}

	user, err := a.Commands.Register.Execute(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	resp, err := a.Auther.IssueFor(user)
	if err != nil {
		return err
	}

	return ctx.JSON(router.StatusCreated, resp)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return ErrInvalidRequestBody.Clone()
	}

	resp, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		if HasCode(err, CodeAccountLocked) {
			a.Logger.Info("login rejected, account locked", "email", payload.Email, "ip", ctx.IP())
		}
		return err
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *AuthController) MeGet(ctx router.Context) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, session.Public())
}

func (a *AuthController) PasswordPut(ctx router.Context) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	payload := new(ChangePasswordMessage)
	if err := ctx.Bind(payload); err != nil {
		return ErrInvalidRequestBody.Clone()
	}
	payload.UserID = session.User.ID

	user, err := a.Commands.ChangePassword.Execute(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	resp, err := a.Auther.IssueFor(user)
	if err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(InitializePasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return ErrInvalidRequestBody.Clone()
	}

	if err := a.Commands.RequestReset.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, messageResponse{Msg: "if the account exists a reset link has been sent"})
}

func (a *AuthController) ResetPasswordPost(ctx router.Context) error {
	payload := new(FinalizePasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return ErrInvalidRequestBody.Clone()
	}
	payload.Token = ctx.Param("token")

	if err := a.Commands.FinalizeReset.Execute(ctx.Context(), *payload); err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, messageResponse{Msg: "password has been reset"})
}

func (a *AuthController) VerifyEmailRequestPost(ctx router.Context) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	msg := AccountVerificationRequestMessage{UserID: session.User.ID}
	if err := a.Commands.RequestVerify.Execute(ctx.Context(), msg); err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, messageResponse{Msg: "verification email sent"})
}

func (a *AuthController) VerifyEmailGet(ctx router.Context) error {
	msg := AccountVerificationMessage{Token: ctx.Param("token")}
	if err := a.Commands.Verify.Execute(ctx.Context(), msg); err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, messageResponse{Msg: "email verified"})
}

func (a *AuthController) UsersGet(ctx router.Context) error {
	page := positiveOr(ctx.QueryInt("page", 1), 1)
	limit := positiveOr(ctx.QueryInt("limit", 20), 20)
	if limit > 100 {
		limit = 100
	}

	records, total, err := a.Repo.Users().ListPage(ctx.Context(), page, limit)
	if err != nil {
		return err
	}

	out := usersPage{
		Users: make([]PublicUser, 0, len(records)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for _, u := range records {
		out.Users = append(out.Users, u.Public())
	}

	return ctx.JSON(router.StatusOK, out)
}

func (a *AuthController) UserRolePatch(ctx router.Context) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	payload := new(ChangeRoleMessage)
	if err := ctx.Bind(payload); err != nil {
		return ErrInvalidRequestBody.Clone()
	}
	payload.ActorID = session.ID()
	payload.Identifier = ctx.Param("id")

	user, err := a.Commands.ChangeRole.Execute(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, user.Public())
}

func (a *AuthController) UserUnlockPost(ctx router.Context) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	user, err := a.Commands.Unlock.Execute(ctx.Context(), UnlockAccountMessage{
		ActorID:    session.ID(),
		Identifier: ctx.Param("id"),
	})
	if err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, user.Public())
}

func (a *AuthController) session(ctx router.Context) (*Session, error) {
	session, ok := SessionFromContext(ctx.Context())
	if !ok || session.User == nil || session.User.ID == uuid.Nil {
		return nil, ErrAuthRequired.Clone()
	}
	return session, nil
}

func positiveOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

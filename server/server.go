package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-library-auth"
	"github.com/goliatone/go-library-auth/activitymap"
	"github.com/goliatone/go-library-auth/config"
	"github.com/goliatone/go-library-auth/metrics"
	"github.com/goliatone/go-library-auth/middleware/authgate"
	"github.com/goliatone/go-library-auth/ratelimit"
)

// Deps are the external resources the server is built from.
type Deps struct {
	Config *config.Config
	DB     *bun.DB
	// Redis backs the rate limiter when set.
	Redis    *redis.Client
	Mailer   auth.Mailer
	Activity auth.ActivitySink
	Logger   auth.Logger
	Clock    func() time.Time
}

// Server is the assembled HTTP application.
type Server struct {
	Adapter    router.Server[*fiber.App]
	App        *fiber.App
	Repo       auth.RepositoryManager
	Auth       *auth.Auther
	Provider   *auth.UserProvider
	Controller *auth.AuthController
	Metrics    *metrics.Recorder
	logger     auth.Logger
}

func New(deps Deps) (*Server, error) {
	cfg := deps.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	_, logger := auth.ResolveLogger("server", nil, deps.Logger)
	recorder := metrics.New()

	sinks := auth.ActivitySinks{
		recorder,
		activitymap.NewLogSink(logger, activitymap.WithClock(deps.Clock)),
	}
	if deps.Activity != nil {
		sinks = append(sinks, deps.Activity)
	}

	repo := auth.NewRepositoryManager(deps.DB)

	provider := auth.NewUserProvider(repo.Users(), cfg.Auth).
		WithLogger(logger).
		WithActivitySink(sinks).
		WithClock(deps.Clock)

	tokens := auth.NewTokenService(cfg.Auth).
		WithLogger(logger).
		WithClock(deps.Clock)

	auther := auth.NewAuthenticator(provider, tokens).
		WithLogger(logger)

	commands := auth.NewAuthCommands(auth.CommandDeps{
		Repo:     repo,
		Provider: provider,
		Config:   cfg.Auth,
		Mailer:   deps.Mailer,
		Activity: sinks,
		Logger:   logger,
		Clock:    deps.Clock,
	})

	controller := auth.NewAuthController(
		auth.WithControllerLogger(logger),
		auth.WithRepositoryManager(repo),
		auth.WithAuthenticator(auther),
		auth.WithCommands(commands),
	)

	gate := authgate.New(authgate.Config{
		Authenticator: auther,
		ContextKey:    cfg.Auth.ContextKey,
		TokenLookup:   cfg.Auth.TokenLookup,
		AuthScheme:    cfg.Auth.AuthScheme,
	})

	limit := ratelimit.Config{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	}
	if deps.Redis != nil {
		limit.Storage = ratelimit.NewStorage(deps.Redis, "library:ratelimit:")
	}

	adapter := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:      "library-auth",
			ErrorHandler: auth.ErrorHandler(logger, cfg.IsProduction()),
			BodyLimit:    1 << 20,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		})

		app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
		app.Use(requestid.New())
		app.Use(helmet.New())
		app.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.Origins,
			AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Auth-Token",
			ExposeHeaders: "X-Auth-Token",
		}))
		app.Use(recorder.Middleware())
		app.Use(healthcheck.New(healthcheck.Config{
			ReadinessProbe: func(c *fiber.Ctx) bool {
				ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
				defer cancel()
				return repo.Ping(ctx) == nil
			},
		}))

		app.Get("/metrics", recorder.Handler())
		app.Use("/api", ratelimit.New(limit))

		return app
	})

	adapter.Router().WithLogger(logger)

	api := adapter.Router().Group("/api")
	auth.RegisterAuthRoutes(api.Group("/auth"), controller, gate)
	auth.RegisterAdminRoutes(api.Group("/admin"), controller, gate, authgate.RequireRoles)

	// routes are mounted on the first call, the fallback goes after them
	app := adapter.WrappedRouter()
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(http.StatusNotFound).JSON(auth.ErrorResponse{Msg: "route not found"})
	})

	return &Server{
		Adapter:    adapter,
		App:        app,
		Repo:       repo,
		Auth:       auther,
		Provider:   provider,
		Controller: controller,
		Metrics:    recorder,
		logger:     logger,
	}, nil
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- s.Adapter.Serve(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Adapter.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

package ratelimit

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	auth "github.com/goliatone/go-library-auth"
)

const limitMessage = "too many requests, please try again later"

type Config struct {
	Max    int
	Window time.Duration
	// Storage defaults to fiber in memory storage.
	Storage fiber.Storage
	Next    func(c *fiber.Ctx) bool
}

// New limits requests per client IP over a fixed window and answers with
// 429 and a Retry-After header once the limit is reached.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}

	return limiter.New(limiter.Config{
		Next:       cfg.Next,
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(auth.ErrorResponse{Msg: limitMessage})
		},
	})
}

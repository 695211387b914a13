package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-library-auth/config"
	"github.com/goliatone/go-library-auth/database"
	"github.com/goliatone/go-library-auth/mailer"
	"github.com/goliatone/go-library-auth/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	lgr := newLogger(cfg)
	logger := lgr.GetLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Open(cfg.Database.URL, cfg.Database.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	logger.Info("database ready", "dialect", dialect)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "redis is unreachable")
		}
	}

	mail := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		BaseURL:  cfg.SMTP.BaseURL,
	}).WithLogger(lgr.GetLogger("mailer"))

	srv, err := server.New(server.Deps{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Mailer: mail,
		Logger: lgr.GetLogger("server"),
	})
	if err != nil {
		return err
	}

	return srv.Run(ctx, ":"+cfg.Port)
}

func newLogger(cfg *config.Config) *glog.BaseLogger {
	opts := []glog.Option{
		glog.WithLevel(cfg.LogLevel),
		glog.WithName("library-auth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	}

	if cfg.IsProduction() {
		opts = append(opts, glog.WithLoggerTypeJSON())
	} else {
		opts = append(opts, glog.WithLoggerTypePretty())
	}

	return glog.NewLogger(opts...)
}

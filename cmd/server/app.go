package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/config"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

// application holds the process-wide resources shared by every command.
type application struct {
	config *config.Config
	db     *sql.DB
	store  *repository.Store
	logger zerolog.Logger
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.With().Timestamp().Logger()

	log.SetFlags(0)
	log.SetOutput(logger)
	return logger
}

// bootstrap loads configuration, sets up logging and opens the database.
func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &application{
		config: cfg,
		db:     db,
		store:  repository.NewStore(db),
		logger: logger,
	}, nil
}

func (app *application) openRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     app.config.Redis.Addr,
		Password: app.config.Redis.Password,
		DB:       app.config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func (app *application) close() {
	if err := app.db.Close(); err != nil {
		app.logger.Error().Err(err).Msg("closing database")
	}
}

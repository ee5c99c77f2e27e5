package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mazzetti/tressette/cmd/tressette/shared"
	"github.com/mazzetti/tressette/internal/auth"
	"github.com/mazzetti/tressette/internal/cache"
	"github.com/mazzetti/tressette/internal/ledger"
	"github.com/mazzetti/tressette/internal/registry"
	"github.com/mazzetti/tressette/internal/server"
)

// ServerCmd runs the game server.
type ServerCmd struct {
	Config  string `kong:"default='tressette.hcl',help='Path to the HCL configuration file'"`
	EnvFile string `kong:"default='.env',help='Path to the environment file with secrets'"`
	Debug   bool   `kong:"help='Enable debug logging'"`
	JSONLog bool   `kong:"name='json-log',help='Log JSON instead of console output'"`
	Seed    *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

func (c *ServerCmd) Run() error {
	var logger *log.Logger
	if c.JSONLog {
		logger = shared.SetupStructuredLogger(c.Debug)
	} else {
		logger = shared.SetupLogger(c.Debug)
	}

	// Secrets come from the environment; the env file is optional.
	if err := godotenv.Load(c.EnvFile); err != nil && !os.IsNotExist(err) {
		return err
	}

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	seed := time.Now().UnixNano()
	if c.Seed != nil {
		seed = *c.Seed
	}
	logger.Info("starting tressette server", "version", version,
		"addr", cfg.ListenAddress(), "dev_mode", cfg.Server.DevMode, "seed", seed)

	rng := rand.New(rand.NewSource(seed))
	clock := quartz.NewReal()
	ctx := shared.SetupSignalHandler(logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	led := ledger.New(store, logger)
	presence := cache.New(openRedis(logger), logger)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if !cfg.Server.DevMode {
			return errors.New("JWT_SECRET must be set outside dev mode")
		}
		logger.Warn("JWT_SECRET not set, using an insecure dev secret")
		secret = "tressette-dev-secret"
	}
	tokens := auth.New(secret, time.Duration(cfg.Server.SessionHours)*time.Hour, clock)

	srv := server.New(cfg, tokens, led, presence, clock, rng, logger)
	reg := registry.New(cfg.GameRules(), cfg.Bets, srv, led, presence, clock, rng, logger)
	srv.SetRegistry(reg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reg.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStore picks Postgres when DATABASE_URL is set, otherwise the
// in-memory store (dev mode only).
func openStore(ctx context.Context, cfg *server.Config, logger *log.Logger) (ledger.Store, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		if !cfg.Server.DevMode {
			return nil, nil, errors.New("DATABASE_URL must be set outside dev mode")
		}
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return ledger.NewMemoryStore(), func() {}, nil
	}
	pg, err := ledger.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("connected to postgres")
	return pg, pg.Close, nil
}

// openRedis returns nil when REDIS_URL is unset; presence degrades to
// local-only counting.
func openRedis(logger *log.Logger) *redis.Client {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		logger.Warn("REDIS_URL not set, telemetry disabled")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Error("invalid REDIS_URL, telemetry disabled", "error", err)
		return nil
	}
	logger.Info("connected to redis")
	return redis.NewClient(opts)
}

// MigrateCmd creates the database schema and exits.
type MigrateCmd struct {
	EnvFile string `kong:"default='.env',help='Path to the environment file with secrets'"`
}

func (c *MigrateCmd) Run() error {
	logger := shared.SetupLogger(false)
	if err := godotenv.Load(c.EnvFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := ledger.NewPostgresStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema migrated")
	return nil
}

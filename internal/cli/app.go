package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terra-clan/code-review-quest/internal/achievements"
	"github.com/terra-clan/code-review-quest/internal/api"
	"github.com/terra-clan/code-review-quest/internal/catalog"
	"github.com/terra-clan/code-review-quest/internal/cleanup"
	"github.com/terra-clan/code-review-quest/internal/config"
	"github.com/terra-clan/code-review-quest/internal/events"
	"github.com/terra-clan/code-review-quest/internal/game"
	"github.com/terra-clan/code-review-quest/internal/guest"
	"github.com/terra-clan/code-review-quest/internal/identity"
	"github.com/terra-clan/code-review-quest/internal/services"
	"github.com/terra-clan/code-review-quest/internal/storage"
)

// App is the fully wired engine
type App struct {
	Server   *api.Server
	Cleaner  *cleanup.Cleaner
	Registry *services.Registry
}

// Close releases every backing service
func (a *App) Close() error {
	return a.Registry.CloseAll()
}

// buildApp connects backing services and wires the engine. On error every
// service opened so far is closed.
func buildApp(ctx context.Context, cfg *config.Config) (app *App, err error) {
	registry := services.NewRegistry()
	defer func() {
		if err != nil {
			if cerr := registry.CloseAll(); cerr != nil {
				slog.Warn("failed to close services", "error", cerr)
			}
		}
	}()

	repo, problemStats, err := openStorage(ctx, cfg.Database, registry)
	if err != nil {
		return nil, err
	}

	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load catalog from dir", "dir", cfg.Catalog.Dir, "error", err)
	}
	for _, f := range loader.Failures() {
		slog.Warn("catalog file rejected", "error", f)
	}
	stats := loader.Stats()
	slog.Info("catalog loaded", "problems", stats.Total, "badges", len(loader.Badges()))

	engine := achievements.NewEngine(loader)

	guestStore, guestSessions, err := openGuestStores(ctx, cfg, registry)
	if err != nil {
		return nil, err
	}
	guests := guest.NewService(guestStore, engine, cfg.Guest.TTL)

	publisher, err := openPublisher(cfg.Events, registry)
	if err != nil {
		return nil, err
	}

	manager := game.NewManager(game.Options{
		Problems:      loader,
		Repo:          repo,
		GuestSessions: guestSessions,
		Guests:        guests,
		Achievements:  engine,
		ProblemStats:  problemStats,
		Publisher:     publisher,
	})

	var verifier identity.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = identity.NewJWTVerifier(cfg.Auth.JWTSecret)
	} else {
		slog.Warn("AUTH_JWT_SECRET not set, bearer credentials are ignored")
	}
	resolver := identity.NewResolver(verifier, guests)

	server := api.NewServer(cfg.Server, cfg.Session, manager, guests, loader, resolver).
		WithHealthChecks(registry)

	cleaner := cleanup.NewCleaner(cfg.Cleanup.Interval).
		Register("guests", guests).
		Register("guest_sessions", guestSessions)

	return &App{Server: server, Cleaner: cleaner, Registry: registry}, nil
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, registry *services.Registry) (storage.Repository, storage.ProblemStatsStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		slog.Info("running database migrations", "dir", cfg.MigrationsDir)
		applied, err := storage.MigrateFromDSN(ctx, cfg.DSN, cfg.MigrationsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("migrations applied", "count", len(applied))

		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{DSN: cfg.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database repository: %w", err)
		}
		registry.Register("postgres", services.NewFuncProvider("postgres", repo.Ping, repo.Close))

		problemStats, err := storage.OpenPQProblemStats(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open problem stats: %w", err)
		}
		registry.Register("problem_stats", services.NewFuncProvider("postgres", problemStats.Ping, problemStats.Close))

		slog.Info("database connected successfully", "driver", cfg.Driver)
		return repo, problemStats, nil

	case config.DriverSQLite:
		repo, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		registry.Register("sqlite", services.NewFuncProvider("sqlite", repo.Ping, repo.Close))

		slog.Info("database connected successfully", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return repo, repo, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
}

func openGuestStores(ctx context.Context, cfg *config.Config, registry *services.Registry) (guest.Store, guest.SessionStore, error) {
	if cfg.Guest.Backend != config.GuestBackendRedis {
		slog.Info("using in-memory guest store")
		return guest.NewMemoryStore(), guest.NewMemorySessionStore(cfg.Guest.TTL), nil
	}

	redisProvider, err := services.NewRedisProvider(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	registry.Register("redis", redisProvider)

	client := redisProvider.Client()
	return guest.NewRedisStore(client), guest.NewRedisSessionStore(client, cfg.Guest.TTL), nil
}

func openPublisher(cfg config.EventsConfig, registry *services.Registry) (events.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		slog.Info("event publishing disabled")
		return events.NopPublisher{}, nil
	}

	publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}
	registry.Register("rabbitmq", services.NewFuncProvider("rabbitmq", publisher.HealthCheck, publisher.Close))
	return publisher, nil
}

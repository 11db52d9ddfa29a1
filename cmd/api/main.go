// @title                       Accounts API
// @version                     1.0
// @description                 User accounts with session-token authentication.
// @BasePath                    /
// @securityDefinitions.apikey  SessionToken
// @in                          header
// @name                        Authorization
// @description                 Session token issued by /users/login, sent as "Bearer <token>".
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hcserver/accounts/internal/api"
	"github.com/hcserver/accounts/internal/api/handler"
	"github.com/hcserver/accounts/internal/core/ports"
	"github.com/hcserver/accounts/internal/core/service"
	"github.com/hcserver/accounts/internal/infrastructure/db/memory"
	"github.com/hcserver/accounts/internal/infrastructure/db/mongo"
	"github.com/hcserver/accounts/internal/infrastructure/db/postgres"
	redisstore "github.com/hcserver/accounts/internal/infrastructure/db/redis"
	"github.com/hcserver/accounts/internal/infrastructure/queue"
	"github.com/hcserver/accounts/internal/pkg/config"
	"github.com/hcserver/accounts/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "accounts-api",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- User store ---
	store, err := openUserStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("user_store", cfg.UserStore).Msg("failed to open user store")
	}
	defer store.close()

	users := store.users
	probes := []handler.Probe{store.probe}

	// --- Session store ---
	var sessions ports.SessionStore
	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()

		sessions = redisstore.NewSessionStore(rdb)
		probes = append(probes, redisProbe(rdb))
	default:
		mem := memory.NewSessionStore()
		if cfg.Session.TTL > 0 {
			go mem.RunJanitor(ctx, cfg.Session.JanitorEvery, logger.Component("session-janitor"))
		}
		sessions = mem
	}

	// --- Audit trail ---
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, store.audit, logger.Component("audit"))
	dispatcher.Start(ctx)

	// --- Services ---
	verifier := service.NewCredentialVerifier(users, cfg.BcryptCost)
	authService := service.NewAuthService(verifier, users, sessions, dispatcher, cfg.Session.TTL, logger.Component("auth"))
	userService := service.NewUserService(users, authService, cfg.BcryptCost, logger.Component("users"))

	e := api.NewRouter(api.Deps{
		Auth:   authService,
		Users:  userService,
		Probes: probes,
		Log:    logger.Component("http"),
	})

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("user_store", cfg.UserStore).
			Str("session_store", cfg.Session.Store).
			Dur("session_ttl", cfg.Session.TTL).
			Msg("accounts api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// userStore bundles the backend chosen by USER_STORE.
type userStore struct {
	users ports.UserRepository
	audit ports.AuditRepository
	probe handler.Probe
	close func()
}

func openUserStore(ctx context.Context, cfg *config.Config) (*userStore, error) {
	if cfg.UserStore == config.UserStorePostgres {
		return openPostgres(ctx, cfg)
	}
	return openMongo(ctx, cfg)
}

func openMongo(ctx context.Context, cfg *config.Config) (*userStore, error) {
	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}

	users := mongo.NewUserRepository(db)
	audit := mongo.NewAuditRepository(db)
	if err := mongo.EnsureIndexes(ctx, users, audit); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &userStore{
		users: users,
		audit: audit,
		probe: handler.Probe{
			Name: "mongodb",
			Check: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
		},
		close: func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		},
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*userStore, error) {
	db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &userStore{
		users: postgres.NewUserRepository(db),
		audit: postgres.NewAuditRepository(db),
		probe: handler.Probe{
			Name:  "postgres",
			Check: db.PingContext,
		},
		close: func() { _ = db.Close() },
	}, nil
}

func redisProbe(rdb *redis.Client) handler.Probe {
	return handler.Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
}

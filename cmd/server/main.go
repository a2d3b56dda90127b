package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/jrsteele09/go-cda-server/auth"
	"github.com/jrsteele09/go-cda-server/internal/config"
	"github.com/jrsteele09/go-cda-server/internal/metrics"
	"github.com/jrsteele09/go-cda-server/media"
	"github.com/jrsteele09/go-cda-server/reports"
	"github.com/jrsteele09/go-cda-server/server"
	"github.com/jrsteele09/go-cda-server/sessions"
	"github.com/jrsteele09/go-cda-server/sessions/memstore"
	"github.com/jrsteele09/go-cda-server/sessions/pgstore"
	"github.com/jrsteele09/go-cda-server/sessions/redisstore"
	"github.com/jrsteele09/go-cda-server/storage/sqlite"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML configuration file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run(configPath string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(c)
	if err := config.Validate(c); err != nil {
		return err
	}
	if c.IsSecretGenerated() {
		log.Warn().Msg("SECRET_KEY not set: using a generated key, sessions will not survive a restart")
	}

	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(c.GetDatabasePath()), 0o755); err != nil {
		return fmt.Errorf("create data folder: %w", err)
	}
	db, err := sqlite.Open(c.GetDatabasePath(), log.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.NewMetrics()

	store, locker, closeStore, err := openSessionStore(ctx, c, db)
	if err != nil {
		return err
	}
	defer closeStore()

	if _, deprecated := sessions.MatchStrategyByName(c.GetSessionMatch()).(sessions.SubstringMatch); deprecated {
		log.Warn().Msg("SESSION_MATCH=substring is deprecated and may log out unrelated users")
	}

	codec, err := sessions.NewCodec(c.GetSecretKey())
	if err != nil {
		return err
	}
	reconciler, err := sessions.NewReconciler(store, codec,
		sessions.WithLocker(locker),
		sessions.WithMatchStrategy(sessions.MatchStrategyByName(c.GetSessionMatch())),
		sessions.WithMetrics(m),
		sessions.WithLogger(log.Logger.With().Str("component", "reconciler").Logger()))
	if err != nil {
		return err
	}

	sweeper, err := sessions.NewSweeper(store, c.GetSweepSchedule(),
		log.Logger.With().Str("component", "sweeper").Logger(),
		sessions.WithSweeperMetrics(m))
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	authService, err := auth.NewService(auth.Repos{Users: db.Users(), Sessions: store}, codec, reconciler,
		auth.WithSessionAge(c.GetSessionCookieAge()))
	if err != nil {
		return err
	}

	mediaStore, err := media.New(c.GetMediaRoot())
	if err != nil {
		return err
	}
	renderer := reports.NewWkhtmltopdf(c.GetWkhtmltopdfPath())
	if !renderer.Available() {
		log.Warn().Str("path", c.GetWkhtmltopdfPath()).Msg("wkhtmltopdf not found: PDF reports will fail")
	}
	generator, err := reports.NewGenerator(renderer, mediaStore, reports.WithLocation(c.GetLocation()))
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Deps{
		Auth:    authService,
		Users:   db.Users(),
		Plates:  db.Plates(),
		Media:   mediaStore,
		Reports: generator,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(httpServer)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown(httpServer)
}

// openSessionStore builds the configured session backend and its locker
func openSessionStore(ctx context.Context, c config.Config, db *sqlite.DB) (sessions.Store, sessions.Locker, func(), error) {
	noop := func() {}
	log.Info().Str("backend", c.GetSessionBackend()).Msg("session store")

	switch c.GetSessionBackend() {
	case config.BackendMemory:
		return memstore.New(), sessions.NewKeyedMutex(), noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, noop, fmt.Errorf("connect to redis at %s: %w", c.GetRedisAddr(), err)
		}
		store := redisstore.New(client, redisstore.WithRetention(c.GetRedisRetention()))
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Err(err).Msg("failed to close redis client")
			}
		}
		return store, redisstore.NewLocker(client, c.GetSessionLockTTL()), closeFn, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, c.GetPostgresURL())
		if err != nil {
			return nil, nil, noop, err
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, noop, fmt.Errorf("create postgres session schema: %w", err)
		}
		// Held advisory locks pin connections, so the locker gets its own pool.
		lockPool, err := pgstore.NewPool(ctx, c.GetPostgresURL())
		if err != nil {
			pool.Close()
			return nil, nil, noop, err
		}
		closeFn := func() {
			lockPool.Close()
			pool.Close()
		}
		return store, pgstore.NewLocker(lockPool), closeFn, nil

	default:
		return db.Sessions(), sessions.NewKeyedMutex(), noop, nil
	}
}

func setupLogging(c config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if c.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

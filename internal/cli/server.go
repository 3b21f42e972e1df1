package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/relay"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	// Every connection is opened here and closed when the server stops.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 12*time.Hour)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db = openBunDB(cfg.Postgres.URL)
		defer db.Close()
		if err := migrateDB(ctx, db, logger); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionStore
	switch {
	case db != nil:
		store = pgstore.NewSessionStore(db)
	case redisClient != nil:
		store = redisstore.NewSessionStore(redisClient, redisTTL)
	default:
		store = memory.NewSessionStore()
	}

	hub := relay.NewHub(logger)
	var (
		notifier app.Notifier = hub
		bridge   *relay.RedisBridge
	)
	if redisClient != nil {
		bridge = relay.NewRedisBridge(redisClient, hub, logger)
		notifier = bridge
	}

	service := app.NewSessionService(store, quizRepo,
		app.WithNotifier(notifier),
		app.WithScoring(scoringConfig(cfg.Scoring)),
		app.WithLogger(logger))

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	if verifier.DevMode() {
		logger.Warn("auth secret not configured, trusting identity headers")
	}
	router := transport.NewRouter(
		transport.NewAPIHandler(service, logger),
		transport.NewWSHandler(hub, notifier, logger),
		verifier)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bridge != nil {
		g.Go(func() error {
			return bridge.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func scoringConfig(cfg config.ScoringConfig) app.ScoringConfig {
	scoring := app.DefaultScoring()
	if cfg.BasePoints > 0 {
		scoring.BasePoints = cfg.BasePoints
	}
	if cfg.MinFraction > 0 && cfg.MinFraction <= 1 {
		scoring.MinFraction = cfg.MinFraction
	}
	return scoring
}

// sampleQuizzes backs the service when no Postgres authoring store is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:        "q1",
					Order:     1,
					Type:      domain.MultipleChoice,
					Prompt:    "What is 2 + 2?",
					TimeLimit: 30,
					Options: []domain.Option{
						{ID: "o1", Text: "3", Order: 1},
						{ID: "o2", Text: "4", Correct: true, Order: 2},
						{ID: "o3", Text: "5", Order: 3},
					},
				},
				{
					ID:        "q2",
					Order:     2,
					Type:      domain.TrueFalse,
					Prompt:    "The Earth orbits the Sun.",
					TimeLimit: 15,
					Options: []domain.Option{
						{ID: "true", Text: "True", Correct: true, Order: 1},
						{ID: "false", Text: "False", Order: 2},
					},
				},
				{
					ID:             "q3",
					Order:          3,
					Type:           domain.ShortAnswer,
					Prompt:         "What is the capital of France?",
					TimeLimit:      30,
					ExpectedAnswer: "Paris",
				},
			},
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"curanova-server/internal/blobstore"
	"curanova-server/internal/catalog"
	"curanova-server/internal/config"
	"curanova-server/internal/events"
	"curanova-server/internal/gateways"
	"curanova-server/internal/handlers"
	"curanova-server/internal/metrics"
	"curanova-server/internal/middleware"
	"curanova-server/internal/models"
	"curanova-server/internal/notify"
	"curanova-server/internal/routes"
	"curanova-server/internal/services"
	"curanova-server/internal/store"
	"curanova-server/internal/utils"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "curanova-server",
		Short: "CuraNova patient portal workflow server",
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Str("driver", cfg.Database.Driver).Msg("database schema is up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject utils.TokenSubject
	var role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development session token for a principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return errors.New("development tokens cannot be issued in production")
			}
			subject.Role = models.Role(role)
			tok, err := utils.GenerateToken(subject, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject.ExternalID, "sub", "", "identity-provider user id")
	cmd.Flags().StringVar(&subject.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&subject.FirstName, "first-name", "", "given name claim")
	cmd.Flags().StringVar(&subject.LastName, "last-name", "", "family name claim")
	cmd.Flags().StringVar(&role, "role", string(models.RolePatient), "patient or provider")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if !cfg.IsProduction() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	return models.InitDB(models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.LogLevel == "debug",
	})
}

func runServer() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if cfg.Database.Driver == "sqlite" {
		if err := models.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate sqlite database")
		}
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Events.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, 10*time.Second)
		logger.Info().Strs("brokers", cfg.Events.Brokers).Str("topic", cfg.Events.Topic).Msg("publishing workflow events to kafka")
	}
	defer publisher.Close()

	opts := services.DiagnosticOptions{AtomicWrites: cfg.Workflow.AtomicWrites}
	if cfg.Storage.Bucket != "" {
		files, err := blobstore.New(context.Background(), cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise result storage")
		}
		opts.Files = files
	} else {
		logger.Warn().Msg("RESULTS_BUCKET not set, result uploads are disabled")
	}
	if !cfg.Workflow.AtomicWrites {
		logger.Warn().Msg("atomic workflow writes disabled, diagnostics may be persisted without tests")
	}

	mailer, err := notify.NewMailer(cfg.Mailer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise mailer")
	}

	cat := catalog.Default()
	st := store.New(db)
	repos := st.Repositories()

	identity := services.NewIdentityService(repos.Patients, publisher, m, logger)
	diagnostics := services.NewDiagnosticService(repos, st, cat, publisher, m, logger, opts)
	appointments := services.NewAppointmentService(repos, notify.NewDispatcher(mailer, logger), publisher, m, logger)
	predictions := services.NewPredictionService(gateways.NewPredictionGateway(cfg.Prediction, logger, m), repos, cat, logger)

	webhooks, err := handlers.NewWebhookHandler(cfg.Webhook.SigningSecret, identity, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid webhook signing secret")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Dependencies{
		JWTSecret:    cfg.JWTSecret,
		Identity:     identity,
		Gatherer:     registry,
		Diagnostics:  handlers.NewDiagnosticHandler(diagnostics),
		Appointments: handlers.NewAppointmentHandler(appointments),
		Chat:         handlers.NewChatHandler(gateways.NewTriageGateway(cfg.Triage, logger, m)),
		Predictions:  handlers.NewPredictionHandler(predictions),
		Tests:        handlers.NewTestHandler(diagnostics, cat),
		Patients:     handlers.NewPatientHandler(identity),
		Webhooks:     webhooks,
		Ping: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

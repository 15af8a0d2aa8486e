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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oncallmed/oncallmed/internal/config"
	"github.com/oncallmed/oncallmed/internal/domain/assignment"
	"github.com/oncallmed/oncallmed/internal/domain/audit"
	"github.com/oncallmed/oncallmed/internal/domain/availability"
	"github.com/oncallmed/oncallmed/internal/domain/leave"
	"github.com/oncallmed/oncallmed/internal/platform/auth"
	"github.com/oncallmed/oncallmed/internal/platform/db"
	"github.com/oncallmed/oncallmed/internal/platform/middleware"
	"github.com/oncallmed/oncallmed/internal/platform/notify"
)

// slotGatewayAdapter adapts the availability service to the assignment
// domain's SlotGateway, avoiding a circular import between the two packages.
type slotGatewayAdapter struct {
	avail *availability.Service
}

func (g slotGatewayAdapter) Booking(ctx context.Context, subSlotID uuid.UUID) (*assignment.Booking, error) {
	sub, err := g.avail.GetSubSlotForUpdate(ctx, subSlotID)
	if err != nil {
		return nil, err
	}
	return &assignment.Booking{
		ID:         sub.ID,
		HospitalID: sub.HospitalID,
		StartTime:  sub.StartTime,
		EndTime:    sub.EndTime,
		Booked:     sub.Status == availability.SubSlotBooked,
	}, nil
}

func (g slotGatewayAdapter) Release(ctx context.Context, subSlotID uuid.UUID) error {
	err := g.avail.ReleaseForAssignment(ctx, subSlotID)
	if errors.Is(err, availability.ErrAlreadyReleased) {
		return nil
	}
	return err
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "oncall-server",
		Short: "On-call scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue pending assignments once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt("batch")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := buildServices(pool, logger, cfg).assignments
			expired, err := svc.ExpirePending(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d assignment(s).\n", expired)
			return nil
		},
	}
	cmd.Flags().Int("batch", 500, "Maximum assignments to expire in one run")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

type services struct {
	availability *availability.Service
	assignments  *assignment.Service
	leaves       *leave.Service
	auditRepo    audit.Repository
	dispatcher   *notify.Dispatcher
}

func buildServices(pool *pgxpool.Pool, logger zerolog.Logger, cfg *config.Config) *services {
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}

	auditRepo := audit.NewRepositoryPG(pool)
	dispatcher := notify.NewDispatcher(logger, notify.LogSink{Logger: logger})

	leaveSvc := leave.NewService(leave.NewRepositoryPG(pool), auditRepo, logger)

	availSvc := availability.NewService(
		availability.NewTemplateRepoPG(pool),
		availability.NewParentSlotRepoPG(pool),
		availability.NewSubSlotRepoPG(pool),
		leaveSvc,
		dispatcher,
		auditRepo,
		logger,
		txRunner,
		cfg.GenerateMaxDays,
	)

	asgSvc := assignment.NewService(
		assignment.NewRepositoryPG(pool),
		assignment.NewFlagRepositoryPG(pool),
		slotGatewayAdapter{avail: availSvc},
		assignment.NewPlanLimiterPG(pool),
		dispatcher,
		auditRepo,
		logger,
		txRunner,
	)
	availSvc.SetAssignmentChecker(asgSvc)

	return &services{
		availability: availSvc,
		assignments:  asgSvc,
		leaves:       leaveSvc,
		auditRepo:    auditRepo,
		dispatcher:   dispatcher,
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", db.HealthHandler(pool))

	svcs := buildServices(pool, logger, cfg)
	availability.NewHandler(svcs.availability).RegisterRoutes(apiV1)
	assignment.NewHandler(svcs.assignments).RegisterRoutes(apiV1)
	leave.NewHandler(svcs.leaves).RegisterRoutes(apiV1)
	audit.NewHandler(svcs.auditRepo).RegisterRoutes(apiV1)

	// Expiry sweep
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if !cfg.SweepDisabled {
		go runSweep(sweepCtx, svcs.assignments, cfg.SweepInterval, logger)
	}

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}

// runSweep periodically expires overdue pending assignments so doctors who
// never answer do not hold sub-slots forever.
func runSweep(ctx context.Context, svc *assignment.Service, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := svc.ExpirePending(ctx, 500)
			if err != nil {
				logger.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if expired > 0 {
				logger.Info().Int("expired", expired).Msg("expiry sweep")
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pliu/simquery/internal/aigateway"
	"github.com/pliu/simquery/internal/auth"
	"github.com/pliu/simquery/internal/chat"
	"github.com/pliu/simquery/internal/config"
	"github.com/pliu/simquery/internal/email"
	"github.com/pliu/simquery/internal/handlers"
	"github.com/pliu/simquery/internal/middleware"
	"github.com/pliu/simquery/internal/store/sqlstore"
	"github.com/pliu/simquery/internal/ws"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "chatty",
	Short:         "Chat service with AI similarity scoring",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Opening the store creates any missing tables.
		store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.DBDriver)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CHATTY_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	if cfg.IsDevelopment() && os.Getenv("JWT_SECRET") == "" {
		logger.Warn("JWT_SECRET not set, using the development secret")
	}

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	mailer := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, logger)
	authSvc, err := auth.NewService(store, tokens, mailer, logger, auth.Options{
		VerificationTTL:      cfg.VerificationTokenTTL,
		RequireVerifiedEmail: cfg.RequireVerifiedEmail,
		VerifyURL:            cfg.VerifyURL(),
	})
	if err != nil {
		return err
	}
	defer authSvc.Wait()

	if cfg.AIBaseURL == "" {
		logger.Warn("AI_BASE_URL not set, messages will be stored without AI replies")
	}
	scorer := aigateway.New(&http.Client{}, aigateway.Options{
		BaseURL:      cfg.AIBaseURL,
		Timeout:      cfg.AITimeout,
		TotalTimeout: cfg.AITotalTimeout,
		MaxRetries:   cfg.AIMaxRetries,
	})

	deps := handlers.Deps{
		Auth:     authSvc,
		Tokens:   tokens,
		Chats:    chat.NewService(store, scorer, hub, logger),
		Hub:      hub,
		Upgrader: ws.NewUpgrader(cfg.AllowedOrigins),
		Logger:   logger,
	}
	if cfg.AuthRateLimit > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.AuthRateLimit)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsHandler.Handler(handlers.NewRouter(deps)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

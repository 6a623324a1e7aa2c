package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/auth"
	"github.com/spec-kit/desk-ticket-service/internal/config"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/persistence"
	"github.com/spec-kit/desk-ticket-service/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "desk",
	Short: "Hotel service desk ticket engine",
	Long: `Runs the SLA-aware service ticket API and its maintenance tasks.

Without a subcommand the HTTP server is started.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the escalation worker",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var escalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Run one escalation sweep and exit",
	RunE:  runEscalate,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for local testing",
	RunE:  runToken,
}

var (
	catalogFlag string
	hotelFlag   string
	roleFlag    string
	subjectFlag string
)

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd, escalateCmd} {
		cmd.Flags().StringVar(&catalogFlag, "catalog", "", "JSON file of service definitions for the in-memory store")
	}

	tokenCmd.Flags().StringVar(&hotelFlag, "hotel", "", "Hotel the token is scoped to (required)")
	tokenCmd.Flags().StringVar(&roleFlag, "role", string(domain.ActorRoleStaff), "GUEST, STAFF or MANAGER")
	tokenCmd.Flags().StringVar(&subjectFlag, "subject", "", "Caller identifier (required)")
	_ = tokenCmd.MarkFlagRequired("hotel")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(serveCmd, migrateCmd, escalateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, catalogFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	var escalationWorker *worker.EscalationWorker
	if a.cfg.Escalation.Enabled {
		escalationWorker, err = worker.NewEscalationWorker(a.escalation, a.cfg.Escalation.Schedule, a.cfg.Escalation.LockTTL(), a.logger)
		if err != nil {
			return fmt.Errorf("schedule escalation: %w", err)
		}
		escalationWorker.Start()
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- a.http.Listen(a.cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		a.logger.Error("fiber listen", zap.Error(err))
	case sig := <-waitForSignal():
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if escalationWorker != nil {
		escalationWorker.Stop(shutdownCtx)
	}
	return a.http.ShutdownWithContext(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required to migrate")
	}
	pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger)
}

func runEscalate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), catalogFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.escalation.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d escalated=%d failed=%d skipped=%t\n",
		result.Scanned, result.Escalated, result.Failed, result.Skipped)
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	role := domain.ActorRole(roleFlag)
	if !role.Valid() || role == domain.ActorRoleSystem {
		return fmt.Errorf("unknown role %q", roleFlag)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	token, expiresAt, err := tokens.GenerateToken(subjectFlag, hotelFlag, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
	return nil
}

func waitForSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/api"
	"github.com/wesm/msgsearch/internal/indexer"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/scheduler"
)

var serveRebuild bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled index rebuilds",
	Long: `Run msgsearch as a long-running daemon.

The daemon runs in the foreground and provides:
  - HTTP API server on the configured port (default: 8080)
  - Scheduled full-text index rebuilds

Configure the rebuild schedule in config.toml:
  [index]
  schedule = "0 3 * * *"   # 3am daily (cron format)

An empty schedule disables scheduled rebuilds; POST /api/v1/index/rebuild
still starts one on demand.

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 3 * * *     = 3:00 AM daily
    */30 * * * *  = Every 30 minutes
    @daily        = Midnight every day

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveRebuild, "rebuild", false, "rebuild the full-text index once at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ix, err := newIndexer(s)
	if err != nil {
		return err
	}
	defer ix.Close()

	sched := scheduler.New().WithLogger(logger)
	if s.FullTextAvailable() {
		err := sched.Add(indexer.JobName, cfg.Index.Schedule, func(ctx context.Context) error {
			_, err := ix.Rebuild(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("schedule index rebuild: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sched.Start()
	if serveRebuild {
		if err := sched.Trigger(indexer.JobName); err != nil {
			logger.Warn("startup index rebuild not started", "error", err)
		}
	}

	engine := query.NewSQLiteEngine(s).WithLogger(logger)
	apiServer := api.NewServer(cfg, api.Deps{
		Engine:    engine,
		Store:     s,
		Index:     ix,
		Scheduler: sched,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("msgsearch daemon started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Database: %s\n", cfg.DatabasePath())
	for _, status := range sched.Status() {
		schedule := status.Schedule
		if schedule == "" {
			schedule = "on demand"
		}
		fmt.Printf("  %s: %s\n", status.Name, schedule)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	select {
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		fmt.Printf("\nAPI server error: %v\n", err)
	case <-ctx.Done():
		logger.Info("shutdown requested")
		fmt.Println("\nShutting down...")
	}

	fmt.Println("Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	fmt.Println("Waiting for running jobs to complete...")
	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}
	return nil
}

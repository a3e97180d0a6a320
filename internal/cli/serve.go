package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"datahound/internal/jobs"
	"datahound/internal/logging"
	"datahound/internal/server"
	"datahound/internal/train"
	"datahound/internal/workflow"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long: `Serve exposes discovery and training over HTTP. Discovery and
training run as background jobs; clients poll the returned job and
project IDs for progress.

  POST /api/discovery/start            start a discovery run
  GET  /api/discovery/{id}/status      poll one project
  GET  /api/projects                   list projects
  POST /api/training/start             start a training run
  GET  /api/training                   list training jobs
  GET  /api/models                     list trained models
  POST /api/chat                       guided task conversation
  GET  /healthz                        liveness and counts

Example:
  datahound serve
  datahound serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	judge, err := buildJudge(cfg)
	if err != nil {
		return err
	}
	if judge == nil {
		return fmt.Errorf("the server needs an LLM judge: set llm.provider in the config file")
	}

	// The server always logs requests; verbose adds component debug.
	level := "info"
	if verbose {
		level = "debug"
	}
	logger := logging.New(level)

	p, st, err := buildPipeline(cfg, judge, logger)
	if err != nil {
		return err
	}

	var compute train.Compute
	if cfg.Training.ComputeURL != "" {
		client, err := train.NewComputeClient(cfg.Training, cfg.HTTP)
		if err != nil {
			return err
		}
		compute = client
	} else {
		fmt.Fprintf(os.Stderr, "Warning: no training service configured, training requests will be refused\n")
	}

	flow := workflow.New(p, st, judge, compute, cfg, logger)
	registry := jobs.NewRegistry(logger)
	srv := server.New(flow, registry, judge, cfg, logger)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	available := judge.IsAvailable(pingCtx)
	cancelPing()
	if !available {
		fmt.Fprintf(os.Stderr, "Warning: LLM judge %s is not answering, discovery will fail until it does\n", judge.Name())
	}

	fmt.Fprintf(os.Stderr, "⚙️  Listening on %s\n", cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Fprintf(os.Stderr, "\n⚙️  Shutting down...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Server stopped\n")
	return <-errCh
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docsense/internal/api"
	"github.com/dgallion1/docsense/internal/embed"
	"github.com/dgallion1/docsense/internal/pipeline"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docsense HTTP API",
	Long: `Start the docsense HTTP API.

Endpoints:
  GET  /health                          - health and queue depth
  POST /api/outline                     - outline one uploaded file
  POST /api/outline/batch               - outline several files
  POST /api/analyze                     - queue an analyze job
  GET  /api/analyze/{jobID}/status      - job progress
  GET  /api/analyze/{jobID}/result      - analysis result
  GET  /api/stats/embedding             - embedding latency stats

All /api routes require "Authorization: Bearer <DOCSENSE_API_KEY>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if err := cfg.ValidateServer(); err != nil {
			log.Error("invalid configuration", "error", err)
			return err
		}

		stats := embed.NewStats(time.Hour)
		emb := embed.Instrumented(newEmbedder(cfg, log), stats)

		orch := pipeline.NewOrchestrator(cfg, emb, log)
		orch.Start(ctx)

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      api.NewServer(orch, stats, log, cfg),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown. In-flight handlers finish before the job
		// queue is closed.
		shutdownDone := make(chan struct{})
		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			log.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown", "error", err)
			}
		}()

		log.Info("starting docsense", "port", cfg.Port, "model", orch.Model())
		err = httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			<-shutdownDone
			err = nil
		} else {
			log.Error("server error", "error", err)
		}
		orch.Stop()
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default from config)")
}

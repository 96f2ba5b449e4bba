package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/confluence-stream/backend/api/handlers"
	"github.com/confluence-stream/backend/internal/audit"
	"github.com/confluence-stream/backend/internal/config"
	"github.com/confluence-stream/backend/internal/db"
	"github.com/confluence-stream/backend/internal/metrics"
	"github.com/confluence-stream/backend/internal/model"
	"github.com/confluence-stream/backend/internal/repository"
	"github.com/confluence-stream/backend/internal/session"
	"github.com/confluence-stream/backend/internal/ws"
	"github.com/confluence-stream/backend/pkg/evaluator"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "confluence-server",
		Short:         "Real-time confluence evaluation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	flags.IntP("port", "p", config.DefaultPort, "listen port")
	flags.String("path", "/ws", "WebSocket endpoint path")
	flags.String("db-path", "data/sessions.db", "SQLite file for session history (empty disables)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Bool("strict-types", false, "answer unknown message types with an error")

	for key, flag := range map[string]string{
		"server.port":          "port",
		"server.path":          "path",
		"db.path":              "db-path",
		"log.level":            "log-level",
		"log.format":           "log-format",
		"dispatch.strictTypes": "strict-types",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session history
	var (
		recorder *audit.AsyncRecorder
		history  handlers.SessionHistory
	)
	if cfg.DB.Path != "" {
		database, err := db.InitDB(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.CloseDB()

		repo := repository.NewHistoryRepository(database)
		// Sessions left open by a previous process never got a close record
		if n, err := repo.CloseAllOpen(ctx, time.Now(), model.CloseReasonShutdown); err != nil {
			logger.Warn("Failed to close stale history records", "error", err)
		} else if n > 0 {
			logger.Info("Closed stale history records", "count", n)
		}

		recorder = audit.NewAsyncRecorder(repo, audit.Config{}, logger)
		recorder.Start()
		history = repo
	}

	// WebSocket service
	svcConfig := ws.Config{
		Monitor: session.MonitorConfig{
			Interval:       cfg.Heartbeat.Interval,
			StaleThreshold: cfg.Heartbeat.StaleThreshold,
		},
		Handler: ws.HandlerConfig{
			MaxPayloadBytes: cfg.WebSocket.MaxPayloadBytes,
			IdleTimeout:     cfg.WebSocket.IdleTimeout,
			WriteTimeout:    cfg.WebSocket.WriteTimeout,
			SendBuffer:      cfg.WebSocket.SendBuffer,
			Compression:     cfg.WebSocket.Compression,
		},
		Dispatch: ws.DispatcherConfig{
			EvaluationTimeout: cfg.Evaluation.Timeout,
			StrictTypes:       cfg.Dispatch.StrictTypes,
		},
	}
	var rec audit.Recorder = audit.Nop{}
	if recorder != nil {
		rec = recorder
	}
	svc := ws.NewService(evaluator.NewStub(), rec, svcConfig, logger)
	svc.Start(ctx)

	// HTTP routes
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	handlers.NewHealthHandler(svc).RegisterRoutes(r)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
	api := r.Group("/api")
	handlers.NewSessionHandler(svc.Registry(), history).RegisterRoutes(api)
	handlers.NewWebSocketHandler(svc.Handler(), cfg.Server.Path, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", srv.Addr, "path", cfg.Server.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			svc.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking upgrades first; Shutdown does not track hijacked connections
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	svc.Close()
	if recorder != nil {
		if err := recorder.Close(shutdownCtx); err != nil {
			logger.Warn("Session history flush incomplete", "error", err, "dropped", recorder.Dropped())
		}
	}
	return nil
}

func setupLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// corsMiddleware allows browser dashboards on other origins to read the
// inspection API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

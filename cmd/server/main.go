package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/content-crew/internal/api"
	"github.com/example/content-crew/internal/config"
	"github.com/example/content-crew/internal/crew"
	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/render"
	"github.com/example/content-crew/internal/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	reg := tools.NewRegistry()
	switch cfg.Search.Provider {
	case config.SearchMock:
		reg.Register(&tools.MockSearchTool{})
	default:
		reg.Register(tools.NewSerperSearchTool(cfg.Search))
	}
	reg.Register(tools.NewFetchPageTool())

	def, err := crew.Load(cfg.Crew.File)
	if err != nil {
		return err
	}
	// fail at startup, not on the first request, if the crew needs tools we lack
	probe := crew.Inputs{Topic: "startup check", Year: "2024", OutputFormat: "text"}
	if _, err := crew.Build(def, probe, reg, client, crew.Options{EditStage: true}); err != nil {
		return err
	}

	formatter, err := render.New(cfg.Crew.Render)
	if err != nil {
		return err
	}

	srv := &api.Server{
		Crew:          def,
		Tools:         reg,
		LLM:           client,
		Formatter:     formatter,
		CrewOptions:   crew.Options{EditStage: cfg.Crew.EditStage},
		MaxIterations: cfg.LLM.MaxIterations,
		Logger:        logger,
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "llm", cfg.LLM.Provider,
			"search", cfg.Search.Provider, "edit_stage", cfg.Crew.EditStage, "render", cfg.Crew.Render)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

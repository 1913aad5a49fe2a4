package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/content-crew/internal/agents"
	"github.com/example/content-crew/internal/config"
	"github.com/example/content-crew/internal/crew"
	"github.com/example/content-crew/internal/models"
	"github.com/example/content-crew/internal/orchestrator"
	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/render"
	"github.com/example/content-crew/internal/tools"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Formats offered on the form. Any non-empty value is accepted on submit.
var Formats = []string{"Blog Post", "Social Media Thread", "Newsletter", "Academic Summary", "Executive Briefing"}

// Server serves the form and runs one crew per submission.
type Server struct {
	Crew          *crew.Definition
	Tools         *tools.Registry
	LLM           llm.Client
	Formatter     render.Formatter
	CrewOptions   crew.Options
	MaxIterations int
	Logger        *slog.Logger

	now func() time.Time
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /run_crew", s.handleRunCrew)
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return logRequests(s.logger(), mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, "index.html", map[string]any{
		"Title":     "Content Crew",
		"Year":      strconv.Itoa(s.clock().Year()),
		"Formats":   Formats,
		"EditStage": s.CrewOptions.EditStage,
	})
}

func (s *Server) handleRunCrew(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, "", &badRequest{err})
		return
	}
	in := crew.Inputs{
		Topic:        strings.TrimSpace(r.PostForm.Get("topic")),
		Year:         strings.TrimSpace(r.PostForm.Get("year")),
		OutputFormat: strings.TrimSpace(r.PostForm.Get("output_format")),
	}
	if err := in.Validate(); err != nil {
		s.renderError(w, "", err)
		return
	}

	runID := uuid.NewString()
	logger := s.logger().With("run", runID)
	tasks, err := crew.Build(s.Crew, in, s.Tools, s.LLM, s.CrewOptions)
	if err != nil {
		logger.Error("build crew", "err", err)
		s.renderError(w, runID, err)
		return
	}

	started := s.clock()
	logger.Info("run started", "topic", in.Topic, "year", in.Year, "format", in.OutputFormat, "tasks", len(tasks))
	executor := &agents.ToolExecutor{MaxIterations: s.MaxIterations, Logger: logger}
	pipeline := orchestrator.New(executor, orchestrator.LogObserver{Logger: logger}, logger)
	out, err := pipeline.Run(r.Context(), models.NewRun(runID, tasks))
	if err != nil {
		logger.Error("run failed", "err", err)
		s.renderError(w, runID, err)
		return
	}

	result, err := s.Formatter.Format(out.Raw)
	if err != nil {
		logger.Error("format result", "err", err)
		s.renderError(w, runID, err)
		return
	}
	elapsed := s.clock().Sub(started).Round(time.Second)
	logger.Info("run finished", "elapsed", elapsed, "bytes", len(out.Raw))

	s.renderPage(w, http.StatusOK, "results.html", map[string]any{
		"Title":        in.Topic + " | Content Crew",
		"Topic":        in.Topic,
		"Year":         in.Year,
		"OutputFormat": in.OutputFormat,
		"RunID":        runID,
		"Elapsed":      elapsed.String(),
		"Result":       result,
	})
}

type badRequest struct{ err error }

func (b *badRequest) Error() string { return b.err.Error() }
func (b *badRequest) Unwrap() error { return b.err }

// classify maps a failure to a status code and a message safe to show users.
func classify(err error) (int, string, string) {
	var br *badRequest
	var cfgErr *config.Error
	switch {
	case errors.Is(err, crew.ErrInvalidInput):
		return http.StatusBadRequest, "Missing fields", "Please fill in the topic, the year and the output format."
	case errors.As(err, &br):
		return http.StatusBadRequest, "Bad request", "The form could not be read."
	case errors.As(err, &cfgErr), errors.Is(err, crew.ErrDefinition), llm.IsAuthError(err):
		return http.StatusInternalServerError, "Service misconfigured",
			"The service is not configured correctly (model credentials, deployment or crew definition). Please contact the operator."
	default:
		return http.StatusBadGateway, "Run failed",
			"An upstream service (language model or web search) failed while the crew was working. Please try again later."
	}
}

func (s *Server) renderError(w http.ResponseWriter, runID string, err error) {
	status, heading, message := classify(err)
	s.renderPage(w, status, "error.html", map[string]any{
		"Title":   heading,
		"Heading": heading,
		"Message": message,
		"RunID":   runID,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger().Error("render page", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"queueloss/internal/observability"
	"queueloss/internal/storage"
)

// server runs the daily pipeline on a schedule and serves health, metrics
// and read-only views.
type server struct {
	svc      *services
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	interval time.Duration
	since    time.Time
	clock    func() time.Time

	// State
	mu         sync.Mutex
	started    time.Time
	lastRun    time.Time
	lastError  string
	running    bool
	runs       int
	daysStored int
}

func (a *app) serveCmd() *cobra.Command {
	var addr, since string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily pipeline on a schedule and serve /health, /metrics, /status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -30)
			if since != "" {
				var err error
				if start, err = parseDay(since); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			s := &server{
				svc:      svc,
				gatherer: a.registry,
				logger:   a.logger.With("component", "server"),
				interval: a.cfg.Server.RunInterval,
				since:    start,
				clock:    time.Now,
			}
			return s.run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: server.addr)")
	cmd.Flags().StringVar(&since, "since", "", "first day analyzed when no progress is saved (default: 30 days ago)")
	return cmd
}

// run serves HTTP and runs the scheduler until ctx is cancelled.
func (s *server) run(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.started = s.clock()
	s.mu.Unlock()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go s.schedule(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// schedule runs the pipeline immediately and then on every tick.
func (s *server) schedule(ctx context.Context) {
	s.logger.Info("starting scheduler", "interval", s.interval)
	s.runPipeline(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPipeline(ctx)
		}
	}
}

// runPipeline analyzes every completed day since the last saved progress.
func (s *server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("pipeline already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	yesterday := s.clock().UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	result, err := s.svc.orch.Resume(ctx, s.since, yesterday)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = s.clock()
	s.runs++
	s.lastError = ""
	switch {
	case err != nil:
		s.lastError = err.Error()
		s.logger.Error("pipeline failed", "error", err)
	case len(result.Errors) > 0:
		s.daysStored += result.DaysProcessed
		s.lastError = result.Errors[len(result.Errors)-1]
		s.logger.Warn("pipeline finished with errors", "processed", result.DaysProcessed, "errors", len(result.Errors))
	default:
		s.daysStored += result.DaysProcessed
		s.logger.Info("pipeline finished", "processed", result.DaysProcessed, "skipped", result.DaysSkipped)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler(s.gatherer))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ledger/verify", s.handleLedgerVerify)
	mux.HandleFunc("GET /ledger/roi", s.handleLedgerROI)
	mux.HandleFunc("GET /insights/{date}", s.handleInsight)
	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	Started    time.Time `json:"started"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Runs       int       `json:"runs"`
	DaysStored int       `json:"days_stored"`
	Running    bool      `json:"running"`
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:     "running",
		Uptime:     s.clock().Sub(s.started).Truncate(time.Second).String(),
		Started:    s.started,
		LastRun:    s.lastRun,
		LastError:  s.lastError,
		Runs:       s.runs,
		DaysStored: s.daysStored,
		Running:    s.running,
	}
	s.mu.Unlock()
	respond(w, http.StatusOK, resp)
}

func (s *server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.ledger.VerifyChainIntegrity(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if !report.Valid {
		status = http.StatusConflict
	}
	respond(w, status, report)
}

func (s *server) handleLedgerROI(w http.ResponseWriter, r *http.Request) {
	roi, err := s.svc.ledger.CumulativeROI(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, roi)
}

func (s *server) handleInsight(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.PathValue("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.svc.reports.Daily(r.Context(), day)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		respond(w, http.StatusOK, report)
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respond(w, status, map[string]string{"error": err.Error()})
}

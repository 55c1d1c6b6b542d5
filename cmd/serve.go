package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scylladb/argus-sub001/internal/model"
	"github.com/scylladb/argus-sub001/internal/resilience"
	"github.com/scylladb/argus-sub001/internal/results"
	"github.com/scylladb/argus-sub001/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the results HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, st, err := openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      newRouter(svc),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

type apiServer struct {
	svc     *results.Service
	breaker *resilience.CircuitBreaker
}

func newRouter(svc *results.Service) http.Handler {
	api := &apiServer{
		svc:     svc,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", api.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.guard)
		r.With(throttle(rate.Limit(cfg.Server.SubmitRatePerSec), cfg.Server.SubmitBurst)).
			Post("/runs/{run_id}/results", api.submitResults)
		r.Post("/runs", api.createRun)

		r.Route("/subjects/{subject_id}", func(r chi.Router) {
			r.Get("/results", api.runResults)
			r.Get("/charts", api.charts)
			r.Get("/views", api.listViews)
			r.Post("/views", api.saveView)
			r.Delete("/views/{view_id}", api.deleteView)
		})
	})

	return r
}

// throttle applies a shared token bucket to a route. Callers over the budget
// get 429 rather than queueing.
func throttle(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, eris.New("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// guard runs the API through the store circuit breaker: repeated internal
// failures open the circuit and subsequent requests are shed with 503 until
// the backend recovers. Client errors never trip it.
func (a *apiServer) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := a.breaker.Execute(r.Context(), func(ctx context.Context) error {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			if rec.status >= http.StatusInternalServerError {
				return eris.Errorf("request failed with status %d", rec.status)
			}
			return nil
		})
		if eris.Is(err, resilience.ErrCircuitOpen) {
			writeError(w, http.StatusServiceUnavailable, err)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *apiServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *apiServer) submitResults(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid run id"))
		return
	}

	var payload model.ResultsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode payload"))
		return
	}

	err = a.svc.Submit(r.Context(), runID, payload)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case eris.Is(err, results.ErrValidation):
		// Cells are already persisted; the caller learns the run is failing.
		writeError(w, http.StatusConflict, err)
	case eris.Is(err, results.ErrBadDefinition):
		writeError(w, http.StatusBadRequest, err)
	case eris.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		zap.L().Error("submit failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *apiServer) createRun(w http.ResponseWriter, r *http.Request) {
	var run model.Run
	if err := json.NewDecoder(r.Body).Decode(&run); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode run"))
		return
	}
	if run.SubjectID == uuid.Nil {
		writeError(w, http.StatusBadRequest, eris.New("test_id is required"))
		return
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	if err := a.svc.Store().CreateRun(r.Context(), &run); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (a *apiServer) runResults(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(chi.URLParam(r, "subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid subject id"))
		return
	}
	runID, err := uuid.Parse(r.URL.Query().Get("run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid or missing run_id"))
		return
	}

	tables, err := a.svc.RunResults(r.Context(), subjectID, runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": tables})
}

func (a *apiServer) charts(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(chi.URLParam(r, "subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid subject id"))
		return
	}

	var q results.ChartQuery
	if q.StartDate, err = parseDateParam(r, "start_date"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.EndDate, err = parseDateParam(r, "end_date"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	charts, err := a.svc.Charts(r.Context(), subjectID, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"graphs": charts,
		"ticks":  results.CalculateTicks(charts),
	})
}

func (a *apiServer) listViews(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(chi.URLParam(r, "subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid subject id"))
		return
	}
	views, err := a.svc.Views(r.Context(), subjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": views})
}

func (a *apiServer) saveView(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(chi.URLParam(r, "subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid subject id"))
		return
	}

	var view model.GraphView
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode view"))
		return
	}
	view.SubjectID = subjectID
	if view.Name == "" {
		writeError(w, http.StatusBadRequest, eris.New("view name is required"))
		return
	}

	id, err := a.svc.SaveView(r.Context(), &view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"view_id": id.String()})
}

func (a *apiServer) deleteView(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(chi.URLParam(r, "subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid subject id"))
		return
	}
	viewID, err := uuid.Parse(chi.URLParam(r, "view_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid view id"))
		return
	}

	err = a.svc.DeleteView(r.Context(), subjectID, viewID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case eris.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid %s", name)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

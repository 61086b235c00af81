package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/interview-cli/internal/export"
	"github.com/sells-group/interview-cli/internal/interview"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/monitoring"
	"github.com/sells-group/interview-cli/internal/store"
)

var (
	servePort    int
	serveCatalog string
	serveNotion  bool
)

const maxBodyBytes = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interview HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initInterview(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		catalog, err := loadCatalog(ctx, serveCatalog, serveNotion)
		if err != nil {
			return eris.Wrap(err, "load default catalog")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		a := &api{
			svc:       env.Service,
			catalog:   catalog,
			metrics:   env.Metrics,
			collector: monitoring.NewCollector(env.Store, env.Metrics),
			staleAge:  cfg.Monitor.StaleAfterHours,
		}
		if cfg.Monitor.Enabled {
			a.checker = monitoring.NewChecker(a.collector, monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(a, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port), zap.Int("issues", catalog.Len()))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if a.checker != nil {
			g.Go(func() error {
				a.checker.Run(gctx)
				return nil
			})
		}

		return g.Wait()
	},
}

// api serves the interview endpoints.
type api struct {
	svc     *interview.Service
	catalog *model.Catalog
	metrics *metrics.Metrics

	// Stats come from the background checker when it has run, otherwise
	// they are collected on demand.
	collector *monitoring.Collector
	checker   *monitoring.Checker
	staleAge  int
}

type startRequest struct {
	Participant model.Participant `json:"participant"`
	Catalog     []model.Issue     `json:"catalog,omitempty"`
}

type chatRequest struct {
	Token   string `json:"interview_token"`
	Message string `json:"message"`
}

type sessionView struct {
	Token          string                           `json:"interview_token"`
	Status         model.SessionStatus              `json:"status"`
	Participant    model.Participant                `json:"participant"`
	Progress       model.Progress                   `json:"progress"`
	GatheredInfo   map[string]model.ExtractedAnswer `json:"gathered_info"`
	CannotAnswer   []string                         `json:"cannot_answer_fields"`
	MissingFields  []string                         `json:"missing_fields"`
	Transcript     []model.Message                  `json:"transcript"`
	LastMessage    string                           `json:"message,omitempty"`
	CreatedAt      time.Time                        `json:"created_at"`
	UpdatedAt      time.Time                        `json:"updated_at"`
	CompletedAt    *time.Time                       `json:"completed_at,omitempty"`
	GatheredFields []string                         `json:"gathered_fields"`
}

func viewOf(s *model.Session) sessionView {
	attempted, missing := model.AttemptedFields(s.Catalog, s.State)
	v := sessionView{
		Token:          s.Token,
		Status:         s.Status,
		Participant:    s.Participant,
		Progress:       model.ProgressOf(s.Catalog, s.State.GatheredInfo, s.State.CannotAnswer),
		GatheredInfo:   s.State.GatheredInfo,
		CannotAnswer:   s.State.CannotAnswer,
		MissingFields:  missing,
		GatheredFields: attempted,
		Transcript:     s.State.Transcript,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		CompletedAt:    s.CompletedAt,
	}
	if n := len(s.State.Transcript); n > 0 && s.State.Transcript[n-1].Role == model.RoleAgent {
		v.LastMessage = s.State.Transcript[n-1].Text
	}
	return v
}

func buildRouter(a *api, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/interviews", func(r chi.Router) {
		r.Post("/", a.handleStart)
		r.Post("/chat", a.handleChat)
		r.Get("/{token}", a.handleGet)
		r.Get("/{token}/export", a.handleExport)
	})
	r.Get("/api/stats", a.handleStats)
	return r
}

func (a *api) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	catalog := a.catalog
	if len(req.Catalog) > 0 {
		c, err := model.NewCatalog(req.Catalog)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		catalog = c
	}

	sess, err := a.svc.StartSession(r.Context(), req.Participant, catalog)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "interview_token is required")
		return
	}

	resp, err := a.svc.Chat(r.Context(), req.Token, req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.Session(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.Session(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(sess)))
	if err := export.Write(w, sess); err != nil {
		zap.L().Error("export session", zap.String("token", sess.Token), zap.Error(err))
	}
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.checker != nil {
		if snap := a.checker.Latest(); snap != nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	if a.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	snap, err := a.collector.Collect(r.Context(), a.staleAge)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interview.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, interview.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "interview not found")
	case errors.Is(err, interview.ErrTurnInProgress):
		writeError(w, http.StatusConflict, "another message for this interview is still being processed")
	case errors.Is(err, store.ErrStaleState):
		writeError(w, http.StatusConflict, "interview was updated by another request, retry the message")
	case errors.Is(err, interview.ErrMissingCatalog):
		writeError(w, http.StatusUnprocessableEntity, "interview has no issue catalog")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		zap.L().Error("interview request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveCatalog, "catalog", "catalogs/founder.yaml", "default issue catalog file")
	serveCmd.Flags().BoolVar(&serveNotion, "notion", false, "load the default catalog from the Notion catalog database")
	rootCmd.AddCommand(serveCmd)
}

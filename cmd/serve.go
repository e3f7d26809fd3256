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
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/credit"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/retrieve"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for outreach requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// outreachRequest is the POST /api/outreach body.
type outreachRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	AccountID    string `json:"account_id"`
	Role         string `json:"role"`
	Organization string `json:"organization,omitempty"`
	Location     string `json:"location,omitempty"`
	Count        int    `json:"count"`
	Tier         string `json:"tier,omitempty"`
	Targeted     bool   `json:"targeted,omitempty"`
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Runs synchronously; the pipeline's wall-clock budget bounds the
	// response time.
	r.Post("/api/outreach", func(w http.ResponseWriter, r *http.Request) {
		var body outreachRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		req := model.SearchRequest{
			ID:           body.RequestID,
			AccountID:    body.AccountID,
			Role:         body.Role,
			Organization: body.Organization,
			Location:     body.Location,
			Count:        body.Count,
			Tier:         model.Tier(body.Tier),
			Targeted:     body.Targeted,
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		if err := req.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result, err := env.Pipeline.Run(r.Context(), req)
		if err != nil {
			zap.L().Error("outreach request failed",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, credit.ErrInsufficientCredit):
				status = http.StatusPaymentRequired
			case errors.Is(err, retrieve.ErrProviderUnavailable):
				status = http.StatusBadGateway
			}
			writeJSON(w, status, map[string]any{"error": err.Error(), "result": result})
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

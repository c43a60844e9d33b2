package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/internal/orchestrator"
	"github.com/brandforge/suggest-engine/internal/store"
)

var servePort int

type createRequestBody struct {
	BrandID        string   `json:"brand_id"`
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	Description    string   `json:"description"`
	Kind           string   `json:"kind"`
	Country        string   `json:"country"`
	Force          bool     `json:"force"`
	ExcludeDomains []string `json:"exclude_domains"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the suggestion HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/requests", func(w http.ResponseWriter, r *http.Request) {
		var body createRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		kind := model.OutputKind(body.Kind)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "kind must be prompts, competitors, or industry-analysis")
			return
		}

		target := model.Target{
			BrandID:     body.BrandID,
			Name:        body.Name,
			URL:         body.URL,
			Description: body.Description,
		}
		h, err := e.dispatcher.Dispatch(r.Context(), target, kind, body.Country, orchestrator.DispatchOptions{
			Force:          body.Force,
			ExcludeDomains: body.ExcludeDomains,
		})
		if err != nil {
			zap.L().Error("dispatch failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "dispatch failed")
			return
		}

		if h.Cached {
			result, _ := h.Wait(r.Context())
			writeJSON(w, http.StatusOK, map[string]any{
				"status":      "cached",
				"request_id":  h.RequestID,
				"fingerprint": h.Fingerprint,
				"result":      result,
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"request_id":  h.RequestID,
			"fingerprint": h.Fingerprint,
		})
	})

	r.Get("/api/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		req, err := e.store.GetRequest(ctx, id)
		if err != nil {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		results, err := e.store.ListProviderResults(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load provider results")
			return
		}
		agg, err := e.store.GetAggregated(ctx, req.Fingerprint)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load aggregated result")
			return
		}
		writeJSON(w, http.StatusOK, requestDetail{Request: req, Providers: results, Aggregated: agg})
	})

	r.Get("/api/requests", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		reqs, err := e.store.ListRequests(r.Context(), store.RequestFilter{
			Status: model.RequestStatus(r.URL.Query().Get("status")),
			Kind:   model.OutputKind(r.URL.Query().Get("kind")),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list requests")
			return
		}
		if reqs == nil {
			reqs = []model.Request{}
		}
		writeJSON(w, http.StatusOK, reqs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

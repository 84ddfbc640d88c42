package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/inquiry"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/search"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(app.search, app.inquiries),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP facade. The layer is deliberately thin: request
// validation only, all behavior lives in the services.
func newRouter(searchSvc *search.Service, inquiries *inquiry.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/search", func(w http.ResponseWriter, req *http.Request) {
		var body model.SearchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		if body.Latitude < -90 || body.Latitude > 90 || body.Longitude < -180 || body.Longitude > 180 {
			writeError(w, http.StatusBadRequest, "invalid coordinates")
			return
		}
		writeJSON(w, http.StatusOK, searchSvc.Search(req.Context(), body))
	})

	r.Post("/api/inquiries", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ProviderID  string `json:"provider_id"`
			ServiceType string `json:"service_type"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.ProviderID == "" || body.ServiceType == "" {
			writeError(w, http.StatusBadRequest, "provider_id and service_type are required")
			return
		}
		inq, err := inquiries.SendInquiry(req.Context(), body.ProviderID, body.ServiceType)
		if err != nil {
			zap.L().Warn("inquiry send failed",
				zap.String("provider_id", body.ProviderID), zap.Error(err))
			writeError(w, http.StatusBadGateway, "inquiry could not be sent")
			return
		}
		writeJSON(w, http.StatusCreated, inq)
	})

	r.Post("/api/inquiries/check-replies", func(w http.ResponseWriter, req *http.Request) {
		count, err := inquiries.CheckForReplies(req.Context())
		if err != nil {
			zap.L().Warn("reply check failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "reply check failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"processed": count})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/handler/query"
	"github.com/yuchenx/docpilot/internal/service/agent"
	"github.com/yuchenx/docpilot/pkg/utils"
)

// NewRouter wires HTTP routes to the agent core.
func NewRouter(agentRouter *agent.Router, maxUploadBytes int64, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	queryHandler := query.New(agentRouter, maxUploadBytes, logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		queryHandler.RegisterRoutes(api)
	})

	return r
}

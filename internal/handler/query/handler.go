// Package query exposes the query and session-management endpoints. Session
// identity rides on a cookie so the static front-end needs no auth flow.
package query

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/ingest"
	"github.com/yuchenx/docpilot/internal/service/agent"
	"github.com/yuchenx/docpilot/pkg/utils"
)

const sessionCookie = "session_id"

// Handler serves /query, /clear_csv and /clear_session.
type Handler struct {
	agent          *agent.Router
	maxUploadBytes int64
	logger         zerolog.Logger
}

func New(agentRouter *agent.Router, maxUploadBytes int64, logger zerolog.Logger) *Handler {
	return &Handler{
		agent:          agentRouter,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.handleQuery)
	r.Post("/clear_csv", h.handleClearCSV)
	r.Post("/clear_session", h.handleClearSession)
}

type queryResponse struct {
	Response  string  `json:"response"`
	LoadedCSV *string `json:"loaded_csv"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionID(w, r)

	if err := r.ParseMultipartForm(h.maxUploadBytes + 1<<20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	queryText := r.FormValue("query")
	if queryText == "" {
		utils.RespondError(w, http.StatusBadRequest, "query is required")
		return
	}

	upload, err := h.readUpload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	result, err := h.agent.Query(r.Context(), sessionID, queryText, upload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrUnsupportedFileType) || errors.Is(err, ingest.ErrFileTooLarge) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, queryResponse{
		Response:  result.Response,
		LoadedCSV: optionalPath(result.ArtifactPath),
	})
}

func (h *Handler) handleClearCSV(w http.ResponseWriter, r *http.Request) {
	h.agent.ClearArtifact(h.sessionID(w, r))
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "CSV cleared"})
}

func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	h.agent.ClearSession(h.sessionID(w, r))
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Session cleared"})
}

// sessionID reads the session cookie, minting and setting one when absent.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// readUpload returns the optional file from the form, or nil when absent.
func (h *Handler) readUpload(r *http.Request) (*agent.Upload, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Read one byte past the cap so ingestion can tell "at the limit" from
	// "over it".
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	return &agent.Upload{Data: data, Filename: header.Filename}, nil
}

func optionalPath(path string) *string {
	if path == "" {
		return nil
	}
	return &path
}

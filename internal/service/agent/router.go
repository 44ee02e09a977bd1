// Package agent routes each incoming query to one of the capability tools
// and reconciles the outcome with session state. This is the stateful core
// of the service; the HTTP layer above it and the model calls below it are
// thin collaborators.
package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/ingest"
	"github.com/yuchenx/docpilot/internal/model/artifact"
	"github.com/yuchenx/docpilot/internal/service/session"
	"github.com/yuchenx/docpilot/internal/storage"
	"github.com/yuchenx/docpilot/internal/tool"
)

// Classifier maps an otherwise-unroutable query onto the closed tool set.
// Implementations may consult a model, but the answer is always one of the
// four Kind values; there is no open-ended path.
type Classifier interface {
	ClassifyTool(ctx context.Context, query string, hasTable, hasImage bool) (tool.Kind, error)
}

// Upload is a file accompanying a query.
type Upload struct {
	Data     []byte
	Filename string
}

// Result is the outcome of one routed query.
type Result struct {
	Response     string
	IsError      bool
	ArtifactPath string
}

// Router drives a request through resolve -> bind -> classify -> execute ->
// record. Tool failures are folded into the response text and recorded as a
// turn; only upload ingestion failures propagate to the transport layer.
type Router struct {
	registry   *session.Registry
	ingestor   *ingest.Ingestor
	blobs      storage.Blobs
	tools      map[tool.Kind]tool.Tool
	classifier Classifier
	logger     zerolog.Logger
}

func NewRouter(registry *session.Registry, ingestor *ingest.Ingestor, blobs storage.Blobs, tools []tool.Tool, classifier Classifier, logger zerolog.Logger) *Router {
	byKind := make(map[tool.Kind]tool.Tool, len(tools))
	for _, t := range tools {
		byKind[t.Kind()] = t
	}
	return &Router{
		registry:   registry,
		ingestor:   ingestor,
		blobs:      blobs,
		tools:      byKind,
		classifier: classifier,
		logger:     logger.With().Str("component", "router").Logger(),
	}
}

const genericFailure = "Error: the request could not be processed, please try again later"

// Query handles one turn for the session. A returned error means the upload
// was rejected (nothing is recorded); every other outcome, success or tool
// failure, becomes a history entry.
func (r *Router) Query(ctx context.Context, sessionID, query string, upload *Upload) (Result, error) {
	sess := r.registry.GetOrCreate(sessionID)
	art := sess.Artifact

	// Bind any new upload before routing so it is visible to tool selection.
	if upload != nil {
		fresh, err := r.ingestor.Ingest(upload.Data, upload.Filename)
		if err != nil {
			r.logger.Warn().Err(err).Str("session", sessionID).Str("filename", upload.Filename).Msg("upload rejected")
			return Result{}, err
		}
		r.release(sessionID, r.registry.BindArtifact(sessionID, fresh))
		art = fresh
		r.logger.Info().Str("session", sessionID).Str("kind", string(fresh.Kind)).Str("path", fresh.Path).Msg("artifact bound")
	}

	kind := r.classify(ctx, query, art)
	response, isError := r.execute(ctx, sessionID, kind, query, art)

	r.registry.AppendTurn(sessionID, query, response, isError)

	return Result{
		Response:     response,
		IsError:      isError,
		ArtifactPath: currentPath(art),
	}, nil
}

// classify picks the tool deterministically: the arithmetic pattern always
// wins, then the bound artifact's kind decides. The model-backed classifier,
// when configured, is consulted only after the rules come up empty.
func (r *Router) classify(ctx context.Context, query string, art *artifact.Artifact) tool.Kind {
	if t := r.tools[tool.KindArithmetic]; t != nil && t.CanHandle(query, art) {
		return tool.KindArithmetic
	}
	if art != nil {
		switch art.Kind {
		case artifact.KindTabular:
			return tool.KindTabular
		case artifact.KindImage:
			return tool.KindImage
		}
	}

	if r.classifier != nil {
		hasTable := art != nil && art.Kind == artifact.KindTabular
		hasImage := art != nil && art.Kind == artifact.KindImage
		kind, err := r.classifier.ClassifyTool(ctx, query, hasTable, hasImage)
		if err != nil {
			r.logger.Warn().Err(err).Str("query", query).Msg("llm classifier failed, treating as none")
			return tool.KindNone
		}
		return kind
	}
	return tool.KindNone
}

// execute runs the chosen tool. The registry lock is not held here: the
// session snapshot was taken earlier and the result is recorded afterwards,
// so a slow model call never blocks other sessions.
func (r *Router) execute(ctx context.Context, sessionID string, kind tool.Kind, query string, art *artifact.Artifact) (response string, isError bool) {
	if kind == tool.KindNone {
		return "Error: no capability available for this query. Upload a CSV or image, or ask an arithmetic question like 'divide 6 by 2'.", true
	}

	t := r.tools[kind]
	if t == nil {
		r.logger.Error().Str("session", sessionID).Str("tool", string(kind)).Msg("no tool registered for kind")
		return genericFailure, true
	}

	result, err := t.Execute(ctx, query, art)
	if err == nil {
		return result, false
	}

	if tool.Infrastructural(err) {
		r.logger.Error().Err(err).
			Str("session", sessionID).
			Str("query", query).
			Str("tool", string(kind)).
			Msg("tool execution failed")
		return genericFailure, true
	}
	// Parse-class failures describe the user's own input; surface verbatim.
	return "Error: " + err.Error(), true
}

// ClearArtifact drops the session's artifact and releases its stored file.
// History is untouched.
func (r *Router) ClearArtifact(sessionID string) {
	r.release(sessionID, r.registry.ClearArtifact(sessionID))
	r.logger.Info().Str("session", sessionID).Msg("artifact cleared")
}

// ClearSession drops artifact and history; the id stays valid for reuse.
func (r *Router) ClearSession(sessionID string) {
	r.release(sessionID, r.registry.ClearSession(sessionID))
	r.logger.Info().Str("session", sessionID).Msg("session cleared")
}

// ArtifactPath reports the session's currently loaded artifact path, if any.
func (r *Router) ArtifactPath(sessionID string) string {
	return currentPath(r.registry.GetOrCreate(sessionID).Artifact)
}

// release deletes a displaced artifact's file, best effort.
func (r *Router) release(sessionID string, displaced *artifact.Artifact) {
	if displaced == nil {
		return
	}
	if err := r.blobs.Delete(displaced.Path); err != nil {
		r.logger.Warn().Err(err).Str("session", sessionID).Str("path", displaced.Path).Msg("failed to delete displaced artifact")
	}
}

func currentPath(art *artifact.Artifact) string {
	if art == nil {
		return ""
	}
	return art.Path
}

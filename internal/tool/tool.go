package tool

import (
	"context"

	"github.com/yuchenx/docpilot/internal/model/artifact"
)

// Kind is the closed set of tool identifiers the router dispatches on. Any
// classifier, rule-based or model-based, must map onto this set; there is no
// open-string tool path.
type Kind string

const (
	KindTabular    Kind = "tabular"
	KindImage      Kind = "image"
	KindArithmetic Kind = "arithmetic"
	KindNone       Kind = "none"
)

// Tool is one stateless capability. CanHandle is a cheap deterministic check
// used by routing; Execute does the work against the session's current
// artifact (which may be nil).
type Tool interface {
	Kind() Kind
	CanHandle(query string, art *artifact.Artifact) bool
	Execute(ctx context.Context, query string, art *artifact.Artifact) (string, error)
}

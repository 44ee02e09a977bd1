package chat

import (
	"time"

	"github.com/yuchenx/docpilot/internal/model/artifact"
)

// Session captures a transient per-caller conversation, including the
// currently bound artifact. Owned by the session registry; handlers and
// the router only ever see copies.
type Session struct {
	ID           string             `json:"id"`
	History      []Turn             `json:"history"`
	Artifact     *artifact.Artifact `json:"-"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastActiveAt time.Time          `json:"lastActiveAt"`
}

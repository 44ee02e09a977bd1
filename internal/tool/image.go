package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuchenx/docpilot/internal/model/artifact"
	"github.com/yuchenx/docpilot/internal/storage"
)

// Extractor is the opaque vision capability: text out of image bytes.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, mime string) (string, error)
}

// ImageText extracts text from the session's loaded image by delegating to
// the vision capability. The image bytes are re-read from blob storage for
// each call rather than held in the session.
type ImageText struct {
	blobs  storage.Blobs
	vision Extractor
}

// NewImageText builds the tool. vision may be nil when no model credentials
// are configured; execution then fails with a credential error.
func NewImageText(blobs storage.Blobs, vision Extractor) *ImageText {
	return &ImageText{blobs: blobs, vision: vision}
}

func (i *ImageText) Kind() Kind { return KindImage }

func (i *ImageText) CanHandle(_ string, art *artifact.Artifact) bool {
	return art != nil && art.Kind == artifact.KindImage
}

func (i *ImageText) Execute(ctx context.Context, _ string, art *artifact.Artifact) (string, error) {
	if art == nil || art.Kind != artifact.KindImage || art.Image == nil {
		return "", fmt.Errorf("%w: no image loaded", ErrNoArtifactBound)
	}
	if i.vision == nil {
		return "", fmt.Errorf("%w: vision model not configured", ErrMissingCredential)
	}

	data, err := i.blobs.Read(art.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Swept between routing and execution.
			return "", fmt.Errorf("%w: image no longer available", ErrNoArtifactBound)
		}
		return "", fmt.Errorf("%w: %v", ErrVisionCallFailed, err)
	}

	text, err := i.vision.ExtractText(ctx, data, art.Image.MIME)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVisionCallFailed, err)
	}
	return text, nil
}

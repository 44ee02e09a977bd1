package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuchenx/docpilot/internal/ingest"
	"github.com/yuchenx/docpilot/internal/service/session"
	"github.com/yuchenx/docpilot/internal/storage"
	"github.com/yuchenx/docpilot/internal/tool"
)

const salariesCSV = "name,salary\nada,50000\nben,60000\ncyd,75000\n"

type stubVision struct {
	text string
	err  error
}

func (s stubVision) ExtractText(_ context.Context, _ []byte, _ string) (string, error) {
	return s.text, s.err
}

type recordingClassifier struct {
	kind  tool.Kind
	calls int
}

func (c *recordingClassifier) ClassifyTool(_ context.Context, _ string, _, _ bool) (tool.Kind, error) {
	c.calls++
	return c.kind, nil
}

type fixture struct {
	router   *Router
	registry *session.Registry
	blobs    *storage.MemoryBlobs
}

func newFixture(vision tool.Extractor, classifier Classifier) *fixture {
	blobs := storage.NewMemoryBlobs()
	registry := session.NewRegistry()
	tools := []tool.Tool{
		tool.NewArithmetic(),
		tool.NewTabular(),
		tool.NewImageText(blobs, vision),
	}
	return &fixture{
		router:   NewRouter(registry, ingest.New(blobs, 0), blobs, tools, classifier, zerolog.Nop()),
		registry: registry,
		blobs:    blobs,
	}
}

func csvUpload() *Upload {
	return &Upload{Data: []byte(salariesCSV), Filename: "salaries.csv"}
}

func TestArithmeticWinsOverBoundArtifact(t *testing.T) {
	f := newFixture(stubVision{}, nil)
	ctx := context.Background()

	_, err := f.router.Query(ctx, "s1", "summarize the data", csvUpload())
	require.NoError(t, err)

	result, err := f.router.Query(ctx, "s1", "divide 6 by 2", nil)
	require.NoError(t, err)
	assert.Equal(t, "3.0", result.Response)
	assert.False(t, result.IsError)
	// The CSV stays loaded even though the query ignored it.
	assert.NotEmpty(t, result.ArtifactPath)
}

func TestDivisionByZeroSurfacesVerbatim(t *testing.T) {
	f := newFixture(stubVision{}, nil)

	result, err := f.router.Query(context.Background(), "s1", "divide 5 by 0", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Response, "division by zero")
}

func TestTabularRouteAfterUpload(t *testing.T) {
	f := newFixture(stubVision{}, nil)

	result, err := f.router.Query(context.Background(), "s1", "average of column salary", csvUpload())
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Response, "Mean of salary:")
	assert.NotEmpty(t, result.ArtifactPath)
}

func TestImageRouteAfterUpload(t *testing.T) {
	f := newFixture(stubVision{text: "TOTAL DUE $12.50"}, nil)

	upload := &Upload{Data: []byte{0x89, 0x50}, Filename: "receipt.png"}
	result, err := f.router.Query(context.Background(), "s1", "what does this say", upload)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "TOTAL DUE $12.50", result.Response)
}

func TestNoCapabilityAvailable(t *testing.T) {
	f := newFixture(stubVision{}, nil)

	result, err := f.router.Query(context.Background(), "s1", "tell me a joke", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Response, "no capability available")
	assert.Empty(t, result.ArtifactPath)
}

func TestEveryCompletedQueryRecordsExactlyOneTurn(t *testing.T) {
	f := newFixture(stubVision{}, nil)
	ctx := context.Background()

	_, _ = f.router.Query(ctx, "s1", "divide 6 by 2", nil)
	_, _ = f.router.Query(ctx, "s1", "divide 5 by 0", nil)
	_, _ = f.router.Query(ctx, "s1", "tell me a joke", nil)

	s := f.registry.GetOrCreate("s1")
	require.Len(t, s.History, 3)
	assert.False(t, s.History[0].IsError)
	assert.True(t, s.History[1].IsError)
	assert.True(t, s.History[2].IsError)
}

func TestRejectedUploadRecordsNothingAndKeepsArtifact(t *testing.T) {
	f := newFixture(stubVision{}, nil)
	ctx := context.Background()

	first, err := f.router.Query(ctx, "s1", "summarize the data", csvUpload())
	require.NoError(t, err)

	_, err = f.router.Query(ctx, "s1", "summarize", &Upload{Data: []byte("hi"), Filename: "notes.txt"})
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFileType)

	s := f.registry.GetOrCreate("s1")
	assert.Len(t, s.History, 1)
	require.NotNil(t, s.Artifact)
	assert.Equal(t, first.ArtifactPath, s.Artifact.Path)
}

func TestReplacementReleasesDisplacedFile(t *testing.T) {
	f := newFixture(stubVision{}, nil)
	ctx := context.Background()

	_, err := f.router.Query(ctx, "s1", "summarize the data", csvUpload())
	require.NoError(t, err)
	_, err = f.router.Query(ctx, "s1", "summarize the data", csvUpload())
	require.NoError(t, err)

	// Exactly one blob remains: the second upload.
	assert.Equal(t, 1, f.blobs.Len())
}

func TestClearArtifactKeepsHistoryAndDeletesFile(t *testing.T) {
	f := newFixture(stubVision{}, nil)
	ctx := context.Background()

	_, err := f.router.Query(ctx, "s1", "summarize the data", csvUpload())
	require.NoError(t, err)

	f.router.ClearArtifact("s1")

	assert.Zero(t, f.blobs.Len())
	s := f.registry.GetOrCreate("s1")
	assert.Nil(t, s.Artifact)
	assert.Len(t, s.History, 1)
	assert.Empty(t, f.router.ArtifactPath("s1"))
}

func TestClearSessionDropsHistory(t *testing.T) {
	f := newFixture(stubVision{}, nil)
	ctx := context.Background()

	_, err := f.router.Query(ctx, "s1", "summarize the data", csvUpload())
	require.NoError(t, err)

	f.router.ClearSession("s1")

	assert.Zero(t, f.blobs.Len())
	s := f.registry.GetOrCreate("s1")
	assert.Empty(t, s.History)
	assert.Nil(t, s.Artifact)
}

func TestVisionFailureIsGenericButRecorded(t *testing.T) {
	f := newFixture(stubVision{err: errors.New("401 invalid api key")}, nil)

	upload := &Upload{Data: []byte{0x89, 0x50}, Filename: "receipt.png"}
	result, err := f.router.Query(context.Background(), "s1", "read this", upload)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	// Internal detail must not leak to the caller.
	assert.NotContains(t, result.Response, "api key")

	s := f.registry.GetOrCreate("s1")
	require.Len(t, s.History, 1)
	assert.True(t, s.History[0].IsError)
}

func TestClassifierConsultedOnlyWhenRulesFail(t *testing.T) {
	classifier := &recordingClassifier{kind: tool.KindNone}
	f := newFixture(stubVision{}, classifier)
	ctx := context.Background()

	// Rules route these; the classifier must stay silent.
	_, _ = f.router.Query(ctx, "s1", "divide 6 by 2", nil)
	_, _ = f.router.Query(ctx, "s1", "average of column salary", csvUpload())
	assert.Zero(t, classifier.calls)

	// No artifact, no arithmetic pattern: classifier gets its one chance.
	result, err := f.router.Query(ctx, "s2", "tell me a joke", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, classifier.calls)
	assert.True(t, result.IsError)
}

func TestClassifierCannotEscapeClosedSet(t *testing.T) {
	// A classifier that picks tabular with no table bound still lands on a
	// bounded failure path, never an open one.
	classifier := &recordingClassifier{kind: tool.KindTabular}
	f := newFixture(stubVision{}, classifier)

	result, err := f.router.Query(context.Background(), "s1", "what about my data", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Response, "no CSV loaded")
}

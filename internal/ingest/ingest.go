// Package ingest turns uploaded bytes into artifacts: CSV files become
// parsed tables, PNG/JPEG become image references. Everything else is
// rejected at this boundary.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuchenx/docpilot/internal/model/artifact"
	"github.com/yuchenx/docpilot/internal/storage"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// DefaultMaxBytes caps uploads at 10MB.
const DefaultMaxBytes = 10 << 20

var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Ingestor validates uploads, persists them to blob storage, and returns the
// parsed artifact. Failures never disturb a session's existing artifact; the
// caller only binds on success.
type Ingestor struct {
	blobs    storage.Blobs
	maxBytes int64
	now      func() time.Time
}

func New(blobs storage.Blobs, maxBytes int64) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Ingestor{blobs: blobs, maxBytes: maxBytes, now: time.Now}
}

// WithClock overrides the timestamp source; test hook.
func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

func (i *Ingestor) Ingest(data []byte, filename string) (*artifact.Artifact, error) {
	if int64(len(data)) > i.maxBytes {
		return nil, fmt.Errorf("%w: maximum size is %dMB", ErrFileTooLarge, i.maxBytes>>20)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".csv":
		return i.ingestCSV(data, ext)
	case imageMIMEs[ext] != "":
		return i.ingestImage(data, ext)
	default:
		return nil, fmt.Errorf("%w: use PNG, JPEG, or CSV", ErrUnsupportedFileType)
	}
}

func (i *Ingestor) ingestCSV(data []byte, ext string) (*artifact.Artifact, error) {
	table, err := parseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid CSV: %v", ErrUnsupportedFileType, err)
	}

	path, err := i.blobs.Store(data, ext)
	if err != nil {
		return nil, err
	}
	return &artifact.Artifact{
		Kind:     artifact.KindTabular,
		Table:    table,
		Path:     path,
		LoadedAt: i.now().UTC(),
	}, nil
}

func (i *Ingestor) ingestImage(data []byte, ext string) (*artifact.Artifact, error) {
	path, err := i.blobs.Store(data, ext)
	if err != nil {
		return nil, err
	}
	return &artifact.Artifact{
		Kind:     artifact.KindImage,
		Image:    &artifact.Image{MIME: imageMIMEs[ext]},
		Path:     path,
		LoadedAt: i.now().UTC(),
	}, nil
}

func parseCSV(data []byte) (*artifact.Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("missing header row: %w", err)
	}
	columns := make([]string, len(header))
	for idx, c := range header {
		columns[idx] = strings.TrimSpace(c)
	}
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "") {
		return nil, errors.New("no columns")
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, errors.New("no data rows")
	}

	return &artifact.Table{Columns: columns, Rows: rows}, nil
}

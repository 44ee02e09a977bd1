package artifact

import "time"

// Kind discriminates the two artifact payloads.
type Kind string

const (
	KindTabular Kind = "tabular"
	KindImage   Kind = "image"
)

// Artifact is the most recently uploaded file for a session, in parsed form.
// A session holds at most one; uploading a new file replaces it.
type Artifact struct {
	Kind     Kind      `json:"kind"`
	Table    *Table    `json:"-"`
	Image    *Image    `json:"-"`
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Image records the declared MIME type of an uploaded image. The bytes stay
// in blob storage and are re-read at tool execution time, so an artifact
// swept away mid-request degrades to a missing-artifact failure.
type Image struct {
	MIME string
}

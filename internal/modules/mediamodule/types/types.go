// Package types defines the shapes shared by the media metadata subsystem.
package types

import "time"

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID         string `json:"id"`
	Privileged bool   `json:"privileged"`
}

// Record is a song contributing to an album. OwnerID is nil for ownerless imports.
type Record struct {
	TrackID string  `json:"track_id"`
	OwnerID *string `json:"owner_id,omitempty"`
	Path    string  `json:"path"`
}

// Album is an aggregate whose ownership is derived from its records.
type Album struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Records []Record `json:"records"`
}

// Paths returns the distinct, non-empty file paths of the album's records in record order.
func (a *Album) Paths() []string {
	if a == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a.Records))
	paths := make([]string, 0, len(a.Records))
	for _, r := range a.Records {
		if r.Path == "" {
			continue
		}
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		paths = append(paths, r.Path)
	}
	return paths
}

// CoverPayload is a validated cover image. It lives for a single request.
type CoverPayload struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Song is the API view of a track.
type Song struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	AlbumID     string  `json:"album_id"`
	ArtistID    string  `json:"artist_id"`
	OwnerID     *string `json:"owner_id,omitempty"`
	TrackNumber int     `json:"track_number"`
	Duration    int     `json:"duration"`
}

// FileStatus is the outcome of writing one file
type FileStatus string

const (
	FileStatusWritten FileStatus = "written"
	FileStatusFailed  FileStatus = "failed"
)

// FileResult records what happened to one file of an album.
type FileResult struct {
	Path     string        `json:"path"`
	Format   string        `json:"format,omitempty"`
	Status   FileStatus    `json:"status"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// CoverResult aggregates the per-file outcomes of one cover mutation.
type CoverResult struct {
	AlbumID string       `json:"album_id"`
	Files   []FileResult `json:"files"`
}

// Completed reports whether every file was written.
func (r *CoverResult) Completed() bool {
	for _, f := range r.Files {
		if f.Status != FileStatusWritten {
			return false
		}
	}
	return true
}

// Failures returns the files that were not written.
func (r *CoverResult) Failures() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Status != FileStatusWritten {
			failed = append(failed, f)
		}
	}
	return failed
}

// Written counts successful writes.
func (r *CoverResult) Written() int {
	n := 0
	for _, f := range r.Files {
		if f.Status == FileStatusWritten {
			n++
		}
	}
	return n
}

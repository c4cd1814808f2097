package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/tonearm/internal/middleware"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// CoverService is the part of the media metadata service the API needs.
type CoverService interface {
	SetAlbumCover(ctx context.Context, actor types.Actor, albumID, raw string) (*types.CoverResult, error)
	GetAlbumCover(ctx context.Context, albumID string) (*types.CoverPayload, error)
}

// SongLister lists an artist's songs.
type SongLister interface {
	ListArtistSongs(ctx context.Context, artistID string) ([]types.Song, error)
}

// Handler provides HTTP handlers for album and artist operations
type Handler struct {
	covers CoverService
	songs  SongLister
}

// NewHandler creates a new API handler
func NewHandler(covers CoverService, songs SongLister) *Handler {
	return &Handler{
		covers: covers,
		songs:  songs,
	}
}

// SetCoverRequest is the body of PUT /api/albums/:id/cover. A missing
// cover is passed on as empty so authorization is decided first.
type SetCoverRequest struct {
	Cover string `json:"cover"`
}

// FileResponse reports one file's outcome.
type FileResponse struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SetCoverResponse is returned once every file has been attempted.
type SetCoverResponse struct {
	AlbumID   string         `json:"album_id"`
	Completed bool           `json:"completed"`
	Written   int            `json:"written"`
	Files     []FileResponse `json:"files"`
}

// SetAlbumCover handles PUT /api/albums/:id/cover
func (h *Handler) SetAlbumCover(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req SetCoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	albumID := c.Param("id")
	result, err := h.covers.SetAlbumCover(c.Request.Context(), actor, albumID, req.Cover)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := SetCoverResponse{
		AlbumID:   result.AlbumID,
		Completed: result.Completed(),
		Written:   result.Written(),
		Files:     make([]FileResponse, 0, len(result.Files)),
	}
	for _, f := range result.Files {
		fr := FileResponse{Path: f.Path, Format: f.Format, Status: string(f.Status)}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		resp.Files = append(resp.Files, fr)
	}
	c.JSON(http.StatusOK, resp)
}

// GetAlbumCover handles GET /api/albums/:id/cover
func (h *Handler) GetAlbumCover(c *gin.Context) {
	payload, err := h.covers.GetAlbumCover(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, payload.MIMEType, payload.Data)
}

// GetArtistSongs handles GET /api/artists/:id/songs
func (h *Handler) GetArtistSongs(c *gin.Context) {
	songs, err := h.songs.ListArtistSongs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"songs": songs,
		"count": len(songs),
	})
}

func respondError(c *gin.Context, err error) {
	status := mediaerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	msg := err.Error()
	// Unwrap to the sentinel so clients don't see internal paths.
	for _, sentinel := range []error{
		mediaerrors.ErrForbidden,
		mediaerrors.ErrAlbumNotFound,
		mediaerrors.ErrArtistNotFound,
		mediaerrors.ErrNoArtwork,
		mediaerrors.ErrPayloadTooLarge,
	} {
		if errors.Is(err, sentinel) {
			msg = sentinel.Error()
			break
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

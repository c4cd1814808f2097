package services

import (
	"context"

	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// Service names used with the registry.
const (
	CoverServiceName   = "cover"
	CatalogServiceName = "catalog"
)

// CoverService embeds and reads back album artwork.
type CoverService interface {
	// SetAlbumCover embeds a data URI cover into every file of the album.
	// Only co-owners of the album and privileged actors may call it.
	SetAlbumCover(ctx context.Context, actor types.Actor, albumID, raw string) (*types.CoverResult, error)

	// GetAlbumCover returns the artwork embedded in the album's files
	GetAlbumCover(ctx context.Context, albumID string) (*types.CoverPayload, error)
}

// CatalogService reads albums and songs from the catalog database.
type CatalogService interface {
	LoadAlbum(ctx context.Context, id string) (*types.Album, error)
	ListArtistSongs(ctx context.Context, artistID string) ([]types.Song, error)
}

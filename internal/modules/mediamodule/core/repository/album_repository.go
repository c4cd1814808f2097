// Package repository loads albums and songs for the media module.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mantonx/tonearm/internal/database"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// AlbumRepository handles album and track queries
type AlbumRepository struct {
	db *gorm.DB
}

// NewAlbumRepository creates a new album repository
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{
		db: db,
	}
}

// LoadAlbum retrieves an album with the owner and path of every track
func (r *AlbumRepository) LoadAlbum(ctx context.Context, id string) (*types.Album, error) {
	const op = "load_album"

	var album database.Album
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&album).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mediaerrors.DatabaseError(op, mediaerrors.ErrAlbumNotFound).WithAlbum(id)
		}
		return nil, mediaerrors.DatabaseError(op, errors.Join(mediaerrors.ErrDatabaseOperation, err)).WithAlbum(id)
	}

	var tracks []database.Track
	if err := r.db.WithContext(ctx).Where("album_id = ?", id).Order("track_number, id").Find(&tracks).Error; err != nil {
		return nil, mediaerrors.DatabaseError(op, errors.Join(mediaerrors.ErrDatabaseOperation, err)).WithAlbum(id)
	}

	result := &types.Album{
		ID:      album.ID,
		Title:   album.Title,
		Records: make([]types.Record, 0, len(tracks)),
	}
	for _, t := range tracks {
		result.Records = append(result.Records, types.Record{
			TrackID: t.ID,
			OwnerID: t.OwnerID,
			Path:    t.Path,
		})
	}
	return result, nil
}

// ListArtistSongs returns every track credited to the artist
func (r *AlbumRepository) ListArtistSongs(ctx context.Context, artistID string) ([]types.Song, error) {
	const op = "list_artist_songs"

	var artist database.Artist
	if err := r.db.WithContext(ctx).Where("id = ?", artistID).First(&artist).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mediaerrors.DatabaseError(op, mediaerrors.ErrArtistNotFound).WithDetail("artist_id", artistID)
		}
		return nil, mediaerrors.DatabaseError(op, errors.Join(mediaerrors.ErrDatabaseOperation, err))
	}

	var tracks []database.Track
	if err := r.db.WithContext(ctx).Where("artist_id = ?", artistID).Order("album_id, track_number").Find(&tracks).Error; err != nil {
		return nil, mediaerrors.DatabaseError(op, errors.Join(mediaerrors.ErrDatabaseOperation, err))
	}

	songs := make([]types.Song, 0, len(tracks))
	for _, t := range tracks {
		songs = append(songs, types.Song{
			ID:          t.ID,
			Title:       t.Title,
			AlbumID:     t.AlbumID,
			ArtistID:    t.ArtistID,
			OwnerID:     t.OwnerID,
			TrackNumber: t.TrackNumber,
			Duration:    t.Duration,
		})
	}
	return songs, nil
}

// MarkCoverUpdated stamps the album's cover_updated_at column
func (r *AlbumRepository) MarkCoverUpdated(ctx context.Context, albumID string, at time.Time) error {
	const op = "mark_cover_updated"

	result := r.db.WithContext(ctx).Model(&database.Album{}).Where("id = ?", albumID).UpdateColumn("cover_updated_at", at)
	if result.Error != nil {
		return mediaerrors.DatabaseError(op, errors.Join(mediaerrors.ErrDatabaseOperation, result.Error)).WithAlbum(albumID)
	}
	if result.RowsAffected == 0 {
		return mediaerrors.DatabaseError(op, mediaerrors.ErrAlbumNotFound).WithAlbum(albumID)
	}
	return nil
}

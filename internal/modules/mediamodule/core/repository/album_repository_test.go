package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mantonx/tonearm/internal/database"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
)

// newMockDb creates a GORM DB instance backed by go-sqlmock
func newMockDb(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db, mock
}

func newSQLiteDb(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(database.AllModels()...))
	return db
}

func TestLoadAlbum_Mock(t *testing.T) {
	db, mock := newMockDb(t)
	repo := NewAlbumRepository(db)

	albumRows := sqlmock.NewRows([]string{"id", "title", "artist_id"}).AddRow("album-1", "Pastel Blues", "artist-1")
	mock.ExpectQuery(`SELECT \* FROM "albums" WHERE id = \$1 ORDER BY "albums"."id" LIMIT \$2`).
		WithArgs("album-1", 1).WillReturnRows(albumRows)

	trackRows := sqlmock.NewRows([]string{"id", "title", "album_id", "artist_id", "owner_id", "path", "track_number"}).
		AddRow("t1", "Be My Husband", "album-1", "artist-1", "user-1", "/music/1.mp3", 1).
		AddRow("t2", "Sinnerman", "album-1", "artist-1", nil, "/music/2.flac", 2)
	mock.ExpectQuery(`SELECT \* FROM "tracks" WHERE album_id = \$1 ORDER BY track_number, id`).
		WithArgs("album-1").WillReturnRows(trackRows)

	album, err := repo.LoadAlbum(context.Background(), "album-1")
	require.NoError(t, err)
	assert.Equal(t, "Pastel Blues", album.Title)
	require.Len(t, album.Records, 2)
	require.NotNil(t, album.Records[0].OwnerID)
	assert.Equal(t, "user-1", *album.Records[0].OwnerID)
	assert.Nil(t, album.Records[1].OwnerID)
	assert.Equal(t, []string{"/music/1.mp3", "/music/2.flac"}, album.Paths())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAlbum_NotFound(t *testing.T) {
	db, mock := newMockDb(t)
	repo := NewAlbumRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "albums" WHERE id = \$1 ORDER BY "albums"."id" LIMIT \$2`).
		WithArgs("missing", 1).WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.LoadAlbum(context.Background(), "missing")
	assert.True(t, errors.Is(err, mediaerrors.ErrAlbumNotFound))
	assert.Equal(t, mediaerrors.ErrorTypeDatabase, mediaerrors.GetType(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAlbum_QueryFailure(t *testing.T) {
	db, mock := newMockDb(t)
	repo := NewAlbumRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "albums"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.LoadAlbum(context.Background(), "album-1")
	assert.True(t, errors.Is(err, mediaerrors.ErrDatabaseOperation))
	assert.False(t, errors.Is(err, mediaerrors.ErrAlbumNotFound))
}

func TestMarkCoverUpdated_Mock(t *testing.T) {
	db, mock := newMockDb(t)
	repo := NewAlbumRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "albums" SET "cover_updated_at"=\$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), "album-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkCoverUpdated(context.Background(), "album-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SQLite(t *testing.T) {
	db := newSQLiteDb(t)
	repo := NewAlbumRepository(db)
	ctx := context.Background()

	artist := &database.Artist{Name: "Nina Simone"}
	require.NoError(t, db.Create(artist).Error)
	album := &database.Album{Title: "Wild Is the Wind", ArtistID: artist.ID}
	require.NoError(t, db.Create(album).Error)
	owner := "user-1"
	require.NoError(t, db.Create(&[]database.Track{
		{Title: "Lilac Wine", AlbumID: album.ID, ArtistID: artist.ID, OwnerID: &owner, Path: "/music/2.mp3", TrackNumber: 2},
		{Title: "I Love Your Lovin' Ways", AlbumID: album.ID, ArtistID: artist.ID, Path: "/music/1.mp3", TrackNumber: 1},
	}).Error)

	loaded, err := repo.LoadAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/music/1.mp3", "/music/2.mp3"}, loaded.Paths())

	songs, err := repo.ListArtistSongs(ctx, artist.ID)
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, "I Love Your Lovin' Ways", songs[0].Title)

	_, err = repo.ListArtistSongs(ctx, "nobody")
	assert.True(t, errors.Is(err, mediaerrors.ErrArtistNotFound))

	stamp := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkCoverUpdated(ctx, album.ID, stamp))
	var stored database.Album
	require.NoError(t, db.First(&stored, "id = ?", album.ID).Error)
	require.NotNil(t, stored.CoverUpdatedAt)
	assert.True(t, stamp.Equal(*stored.CoverUpdatedAt))

	err = repo.MarkCoverUpdated(ctx, "missing", stamp)
	assert.True(t, errors.Is(err, mediaerrors.ErrAlbumNotFound))
}

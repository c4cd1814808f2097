package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tonearm/internal/events"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec/codectest"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/cover"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/storage"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

type fakeAlbums struct {
	mu      sync.Mutex
	albums  map[string]*types.Album
	stamped map[string]time.Time
}

func (f *fakeAlbums) LoadAlbum(_ context.Context, id string) (*types.Album, error) {
	a, ok := f.albums[id]
	if !ok {
		return nil, mediaerrors.DatabaseError("load_album", mediaerrors.ErrAlbumNotFound).WithAlbum(id)
	}
	return a, nil
}

func (f *fakeAlbums) MarkCoverUpdated(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamped[id] = at
	return nil
}

type fixture struct {
	svc    *CoverService
	albums *fakeAlbums
	locks  *storage.LockTable
	events chan events.Event
	dir    string
}

func owner(id string) *string { return &id }

func newFixture(t *testing.T, lockTimeout time.Duration) *fixture {
	t.Helper()
	bus := events.NewMemoryBus(nil)
	t.Cleanup(bus.Close)
	ch := make(chan events.Event, 8)
	bus.Subscribe(func(_ context.Context, e events.Event) { ch <- e }, events.EventAlbumCoverUpdated, events.EventAlbumCoverPartial)

	albums := &fakeAlbums{albums: map[string]*types.Album{}, stamped: map[string]time.Time{}}
	locks := storage.NewLockTable(lockTimeout, "", nil)
	svc := NewCoverService(
		albums,
		cover.NewValidator(cover.Config{VerifyContent: true}),
		codec.NewDefaultRegistry(),
		storage.NewLocalStore(0, nil),
		locks,
		bus,
		hclog.NewNullLogger(),
		Config{MaxParallelWrites: 2},
	)
	return &fixture{svc: svc, albums: albums, locks: locks, events: ch, dir: t.TempDir()}
}

func (f *fixture) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// library creates an album with an MP3, a FLAC and an M4A, all owned by alice,
// plus a song owned by bob.
func (f *fixture) library(t *testing.T) (*types.Album, []string) {
	t.Helper()
	paths := []string{
		f.file(t, "01.mp3", codectest.MP3("Feeling Good", 4096)),
		f.file(t, "02.flac", codectest.FLAC(4096)),
		f.file(t, "03.m4a", codectest.MP4(4096)),
		f.file(t, "04.mp3", codectest.MP3("Sinnerman", 2048)),
	}
	album := &types.Album{ID: "album-1", Title: "I Put a Spell on You", Records: []types.Record{
		{TrackID: "t1", OwnerID: owner("alice"), Path: paths[0]},
		{TrackID: "t2", OwnerID: owner("alice"), Path: paths[1]},
		{TrackID: "t3", OwnerID: owner("alice"), Path: paths[2]},
		{TrackID: "t4", OwnerID: owner("bob"), Path: paths[3]},
	}}
	f.albums.albums[album.ID] = album
	return album, paths
}

func checksums(t *testing.T, paths []string) map[string][32]byte {
	t.Helper()
	sums := make(map[string][32]byte, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		sums[p] = sha256.Sum256(data)
	}
	return sums
}

func jpegURI() (string, []byte) {
	img := codectest.JPEG(12, 12)
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img), img
}

func TestSetAlbumCover_CoOwnerUpdatesEveryFile(t *testing.T) {
	f := newFixture(t, time.Second)
	_, paths := f.library(t)
	uri, img := jpegURI()

	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice"}, "album-1", uri)
	require.NoError(t, err)
	assert.True(t, result.Completed())
	require.Len(t, result.Files, len(paths))

	formats := map[string]string{}
	for _, fr := range result.Files {
		formats[filepath.Base(fr.Path)] = fr.Format
	}
	assert.Equal(t, map[string]string{"01.mp3": "mp3", "02.flac": "flac", "03.m4a": "mp4", "04.mp3": "mp3"}, formats)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		got, err := codec.ReadArtwork(data)
		require.NoError(t, err, p)
		assert.Equal(t, img, got.Data, p)
	}

	select {
	case e := <-f.events:
		assert.Equal(t, events.EventAlbumCoverUpdated, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no cover event")
	}
	assert.Contains(t, f.albums.stamped, "album-1")
}

func TestSetAlbumCover_StrangerIsForbidden(t *testing.T) {
	f := newFixture(t, time.Second)
	_, paths := f.library(t)
	before := checksums(t, paths)
	uri, _ := jpegURI()

	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "mallory"}, "album-1", uri)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, mediaerrors.ErrForbidden))
	assert.Equal(t, mediaerrors.ErrorTypeAuthorization, mediaerrors.GetType(err))

	assert.Equal(t, before, checksums(t, paths))
	assert.NotContains(t, f.albums.stamped, "album-1")
}

func TestSetAlbumCover_PrivilegedActor(t *testing.T) {
	f := newFixture(t, time.Second)
	f.library(t)
	uri, _ := jpegURI()

	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "root", Privileged: true}, "album-1", uri)
	require.NoError(t, err)
	assert.True(t, result.Completed())
}

func TestSetAlbumCover_InvalidPayloadTouchesNothing(t *testing.T) {
	f := newFixture(t, time.Second)
	_, paths := f.library(t)
	before := checksums(t, paths)

	_, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice"}, "album-1", "data:image/jpeg;base64,Rm9v")
	assert.True(t, errors.Is(err, mediaerrors.ErrInvalidPayload))
	assert.Equal(t, before, checksums(t, paths))
}

func TestSetAlbumCover_AlbumNotFound(t *testing.T) {
	f := newFixture(t, time.Second)
	uri, _ := jpegURI()

	_, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice", Privileged: true}, "missing", uri)
	assert.True(t, errors.Is(err, mediaerrors.ErrAlbumNotFound))
}

func TestSetAlbumCover_CorruptFileIsIsolated(t *testing.T) {
	f := newFixture(t, time.Second)
	album, paths := f.library(t)
	corrupt := f.file(t, "05.wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt not really audio"))
	album.Records = append(album.Records, types.Record{TrackID: "t5", OwnerID: owner("alice"), Path: corrupt})
	before := checksums(t, []string{corrupt})
	uri, img := jpegURI()

	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice"}, "album-1", uri)
	require.NoError(t, err)
	assert.False(t, result.Completed())
	assert.Equal(t, len(paths), result.Written())

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, corrupt, failures[0].Path)
	assert.True(t, errors.Is(failures[0].Err, mediaerrors.ErrUnsupportedFormat))
	assert.Equal(t, corrupt, mediaerrors.GetPath(failures[0].Err))
	assert.Equal(t, before, checksums(t, []string{corrupt}))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	got, err := codec.ReadArtwork(data)
	require.NoError(t, err)
	assert.Equal(t, img, got.Data)

	select {
	case e := <-f.events:
		assert.Equal(t, events.EventAlbumCoverPartial, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no cover event")
	}
}

func TestSetAlbumCover_DeduplicatesPaths(t *testing.T) {
	f := newFixture(t, time.Second)
	path := f.file(t, "shared.flac", codectest.FLAC(1024))
	f.albums.albums["split"] = &types.Album{ID: "split", Records: []types.Record{
		{TrackID: "a", OwnerID: owner("alice"), Path: path},
		{TrackID: "b", OwnerID: owner("alice"), Path: path},
		{TrackID: "c", OwnerID: owner("alice"), Path: ""},
	}}
	uri, _ := jpegURI()

	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice"}, "split", uri)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, types.FileStatusWritten, result.Files[0].Status)
}

func TestSetAlbumCover_EmptyAlbum(t *testing.T) {
	f := newFixture(t, time.Second)
	f.albums.albums["empty"] = &types.Album{ID: "empty"}
	uri, _ := jpegURI()

	_, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice"}, "empty", uri)
	assert.True(t, errors.Is(err, mediaerrors.ErrForbidden))

	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "root", Privileged: true}, "empty", uri)
	require.NoError(t, err)
	assert.Empty(t, result.Files)
	assert.True(t, result.Completed())
}

func TestSetAlbumCover_LockedFileConflicts(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	_, paths := f.library(t)
	before := checksums(t, paths[1:2])

	release, err := f.locks.Acquire(context.Background(), paths[1])
	require.NoError(t, err)
	defer release()

	uri, _ := jpegURI()
	result, err := f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "alice"}, "album-1", uri)
	require.NoError(t, err)

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, paths[1], failures[0].Path)
	assert.True(t, errors.Is(failures[0].Err, mediaerrors.ErrConcurrentWrite))
	assert.True(t, mediaerrors.IsRetryable(failures[0].Err))
	assert.Equal(t, before, checksums(t, paths[1:2]))
}

func TestSetAlbumCover_CancelledBeforeWrites(t *testing.T) {
	f := newFixture(t, time.Second)
	_, paths := f.library(t)
	before := checksums(t, paths)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uri, _ := jpegURI()
	result, err := f.svc.SetAlbumCover(ctx, types.Actor{ID: "alice"}, "album-1", uri)
	require.NoError(t, err)
	assert.Zero(t, result.Written())
	for _, fr := range result.Files {
		assert.True(t, errors.Is(fr.Err, mediaerrors.ErrCancelled), "got %v", fr.Err)
	}
	assert.Equal(t, before, checksums(t, paths))
}

func TestSetAlbumCover_Idempotent(t *testing.T) {
	f := newFixture(t, time.Second)
	_, paths := f.library(t)
	uri, _ := jpegURI()
	actor := types.Actor{ID: "alice"}

	_, err := f.svc.SetAlbumCover(context.Background(), actor, "album-1", uri)
	require.NoError(t, err)
	once := checksums(t, paths)

	_, err = f.svc.SetAlbumCover(context.Background(), actor, "album-1", uri)
	require.NoError(t, err)
	assert.Equal(t, once, checksums(t, paths))
}

func TestGetAlbumCover(t *testing.T) {
	f := newFixture(t, time.Second)
	f.library(t)

	_, err := f.svc.GetAlbumCover(context.Background(), "album-1")
	assert.True(t, errors.Is(err, mediaerrors.ErrNoArtwork))

	uri, img := jpegURI()
	_, err = f.svc.SetAlbumCover(context.Background(), types.Actor{ID: "bob"}, "album-1", uri)
	require.NoError(t, err)

	payload, err := f.svc.GetAlbumCover(context.Background(), "album-1")
	require.NoError(t, err)
	assert.Equal(t, img, payload.Data)
	assert.Equal(t, "image/jpeg", payload.MIMEType)
}

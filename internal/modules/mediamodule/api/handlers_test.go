package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tonearm/internal/middleware"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec/codectest"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/cover"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/storage"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/service"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

var secret = []byte("handler-secret")

type fakeCovers struct {
	result  *types.CoverResult
	payload *types.CoverPayload
	err     error
	actor   types.Actor
	raw     string
	calls   int
}

func (f *fakeCovers) SetAlbumCover(_ context.Context, actor types.Actor, albumID, raw string) (*types.CoverResult, error) {
	f.actor, f.raw = actor, raw
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCovers) GetAlbumCover(context.Context, string) (*types.CoverPayload, error) {
	return f.payload, f.err
}

type fakeSongs struct {
	songs []types.Song
	err   error
}

func (f *fakeSongs) ListArtistSongs(context.Context, string) ([]types.Song, error) {
	return f.songs, f.err
}

type fakeAlbums map[string]*types.Album

func (f fakeAlbums) LoadAlbum(_ context.Context, id string) (*types.Album, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return nil, mediaerrors.DatabaseError("load_album", mediaerrors.ErrAlbumNotFound).WithAlbum(id)
}

func setupRouter(covers CoverService, songs SongLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, NewHandler(covers, songs), middleware.Authenticate(secret))
	return r
}

func bearer(t *testing.T, userID string, admin bool) string {
	t.Helper()
	token, err := middleware.IssueToken(secret, "tonearm", userID, admin, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func putCover(t *testing.T, r http.Handler, albumID, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/albums/"+albumID+"/cover", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetAlbumCover_PartialResult(t *testing.T) {
	covers := &fakeCovers{result: &types.CoverResult{AlbumID: "a1", Files: []types.FileResult{
		{Path: "/music/1.mp3", Format: "mp3", Status: types.FileStatusWritten},
		{Path: "/music/2.ogg", Status: types.FileStatusFailed, Err: mediaerrors.ErrUnsupportedFormat},
	}}}
	r := setupRouter(covers, &fakeSongs{})

	w := putCover(t, r, "a1", bearer(t, "alice", false), `{"cover":"data:image/png;base64,AAAA"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SetCoverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a1", resp.AlbumID)
	assert.False(t, resp.Completed)
	assert.Equal(t, 1, resp.Written)
	require.Len(t, resp.Files, 2)
	assert.Equal(t, "failed", resp.Files[1].Status)
	assert.Equal(t, mediaerrors.ErrUnsupportedFormat.Error(), resp.Files[1].Error)

	assert.Equal(t, types.Actor{ID: "alice"}, covers.actor)
	assert.Equal(t, "data:image/png;base64,AAAA", covers.raw)
}

func TestSetAlbumCover_ErrorStatuses(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"forbidden": {mediaerrors.AuthorizationError("set_album_cover", mediaerrors.ErrForbidden), http.StatusForbidden},
		"not found": {mediaerrors.DatabaseError("load_album", mediaerrors.ErrAlbumNotFound), http.StatusNotFound},
		"invalid":   {mediaerrors.ValidationError("parse_cover", mediaerrors.ErrInvalidPayload), http.StatusUnprocessableEntity},
		"too large": {mediaerrors.ValidationError("parse_cover", mediaerrors.ErrPayloadTooLarge), http.StatusUnprocessableEntity},
		"internal":  {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := setupRouter(&fakeCovers{err: tc.err}, &fakeSongs{})
			w := putCover(t, r, "a1", bearer(t, "bob", false), `{"cover":"data:image/png;base64,AAAA"}`)
			assert.Equal(t, tc.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestSetAlbumCover_RequiresAuthAndBody(t *testing.T) {
	covers := &fakeCovers{}
	r := setupRouter(covers, &fakeSongs{})

	w := putCover(t, r, "a1", "", `{"cover":"data:image/png;base64,AAAA"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = putCover(t, r, "a1", bearer(t, "alice", false), `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, covers.calls)
}

func TestSetAlbumCover_MissingCoverReachesService(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"forbidden": {mediaerrors.AuthorizationError("set_album_cover", mediaerrors.ErrForbidden), http.StatusForbidden},
		"invalid":   {mediaerrors.ValidationError("parse_cover", mediaerrors.ErrInvalidPayload), http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			covers := &fakeCovers{err: tc.err}
			r := setupRouter(covers, &fakeSongs{})

			w := putCover(t, r, "a1", bearer(t, "alice", false), `{}`)
			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, 1, covers.calls)
			assert.Empty(t, covers.raw)
		})
	}
}

func TestGetAlbumCover(t *testing.T) {
	img := codectest.PNG(2, 2)
	r := setupRouter(&fakeCovers{payload: &types.CoverPayload{Data: img, MIMEType: "image/png"}}, &fakeSongs{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/albums/a1/cover", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, img, w.Body.Bytes())

	r = setupRouter(&fakeCovers{err: mediaerrors.CodecError("get_album_cover", mediaerrors.ErrNoArtwork)}, &fakeSongs{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/albums/a1/cover", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetArtistSongs(t *testing.T) {
	songs := []types.Song{{ID: "t1", Title: "Lilac Wine", AlbumID: "a1", ArtistID: "ar1", TrackNumber: 1}}
	r := setupRouter(&fakeCovers{}, &fakeSongs{songs: songs})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/artists/ar1/songs", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Songs []types.Song `json:"songs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, songs, body.Songs)

	r = setupRouter(&fakeCovers{}, &fakeSongs{err: mediaerrors.DatabaseError("list_artist_songs", mediaerrors.ErrArtistNotFound)})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/artists/missing/songs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetAlbumCover_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	mp3 := filepath.Join(dir, "01.mp3")
	flac := filepath.Join(dir, "02.flac")
	require.NoError(t, os.WriteFile(mp3, codectest.MP3("Wild Is the Wind", 1024), 0o644))
	require.NoError(t, os.WriteFile(flac, codectest.FLAC(1024), 0o644))

	alice := "alice"
	albums := fakeAlbums{"a1": {ID: "a1", Records: []types.Record{
		{TrackID: "t1", OwnerID: &alice, Path: mp3},
		{TrackID: "t2", Path: flac},
	}}}
	svc := service.NewCoverService(
		albums,
		cover.NewValidator(cover.Config{VerifyContent: true}),
		codec.NewDefaultRegistry(),
		storage.NewLocalStore(0, nil),
		storage.NewLockTable(time.Second, "", nil),
		nil,
		hclog.NewNullLogger(),
		service.Config{},
	)
	r := setupRouter(svc, &fakeSongs{})

	img := codectest.JPEG(4, 4)
	body := `{"cover":"data:image/jpeg;base64,` + base64.StdEncoding.EncodeToString(img) + `"}`

	w := putCover(t, r, "a1", bearer(t, "mallory", false), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = putCover(t, r, "a1", bearer(t, "mallory", false), `{}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = putCover(t, r, "a1", bearer(t, "alice", false), `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = putCover(t, r, "a1", bearer(t, "alice", false), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SetCoverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Completed)
	assert.Equal(t, 2, resp.Written)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/albums/a1/cover", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, img, w.Body.Bytes())
}

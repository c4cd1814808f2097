// Package service orchestrates album cover mutations: authorization,
// payload validation and per-file container rewrites.
package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/mantonx/tonearm/internal/events"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/cover"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/ownership"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/storage"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// DefaultMaxParallelWrites bounds concurrent file rewrites per request.
const DefaultMaxParallelWrites = 4

// AlbumLoader loads an album with its records.
type AlbumLoader interface {
	LoadAlbum(ctx context.Context, id string) (*types.Album, error)
}

// CoverStamper records when an album's cover last changed. Loaders that
// also implement it are stamped after a successful write.
type CoverStamper interface {
	MarkCoverUpdated(ctx context.Context, albumID string, at time.Time) error
}

// Config tunes the cover service.
type Config struct {
	MaxParallelWrites int
}

// CoverService embeds album covers into every audio file of an album.
type CoverService struct {
	albums    AlbumLoader
	validator *cover.Validator
	codecs    *codec.Registry
	store     storage.FileStore
	locks     *storage.LockTable
	bus       events.EventBus
	logger    hclog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewCoverService wires the cover pipeline. bus may be nil.
func NewCoverService(
	albums AlbumLoader,
	validator *cover.Validator,
	codecs *codec.Registry,
	store storage.FileStore,
	locks *storage.LockTable,
	bus events.EventBus,
	logger hclog.Logger,
	cfg Config,
) *CoverService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.MaxParallelWrites <= 0 {
		cfg.MaxParallelWrites = DefaultMaxParallelWrites
	}
	return &CoverService{
		albums:    albums,
		validator: validator,
		codecs:    codecs,
		store:     store,
		locks:     locks,
		bus:       bus,
		logger:    logger,
		cfg:       cfg,
	}
}

// Configure swaps the service tuning at runtime.
func (s *CoverService) Configure(cfg Config) {
	if cfg.MaxParallelWrites <= 0 {
		cfg.MaxParallelWrites = DefaultMaxParallelWrites
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *CoverService) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetAlbumCover embeds raw, a data URI, into every distinct file of the
// album. Authorization and validation failures abort before any file is
// touched. Per-file failures are reported in the result without undoing
// files already written.
func (s *CoverService) SetAlbumCover(ctx context.Context, actor types.Actor, albumID, raw string) (*types.CoverResult, error) {
	const op = "set_album_cover"
	log := s.logger.With("album_id", albumID, "actor_id", actor.ID)
	log.Debug("cover request received")

	album, err := s.albums.LoadAlbum(ctx, albumID)
	if err != nil {
		log.Debug("album lookup failed", "error", err)
		return nil, mediaerrors.Wrap(err, mediaerrors.ErrorTypeDatabase, op)
	}

	if !ownership.IsMutator(actor, album) {
		log.Info("cover change rejected", "reason", "not a co-owner")
		return nil, mediaerrors.AuthorizationError(op, mediaerrors.ErrForbidden).WithAlbum(albumID)
	}
	log.Debug("authorized", "privileged", actor.Privileged)

	payload, err := s.validator.Parse(raw)
	if err != nil {
		log.Info("cover payload rejected", "error", err)
		return nil, err
	}
	log.Debug("validated", "mime_type", payload.MIMEType, "bytes", len(payload.Data))

	paths := album.Paths()
	result := &types.CoverResult{
		AlbumID: albumID,
		Files:   make([]types.FileResult, len(paths)),
	}

	var g errgroup.Group
	g.SetLimit(s.config().MaxParallelWrites)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			start := time.Now()
			format, err := s.WriteFileCover(ctx, path, payload)
			fr := types.FileResult{
				Path:     path,
				Format:   string(format),
				Status:   types.FileStatusWritten,
				Duration: time.Since(start),
			}
			if err != nil {
				fr.Status = types.FileStatusFailed
				fr.Err = err
				log.Warn("cover write failed", "path", path, "error", err)
			} else {
				log.Debug("cover written", "path", path, "format", format, "elapsed", fr.Duration)
			}
			result.Files[i] = fr
			return nil
		})
	}
	_ = g.Wait()

	written := make([]string, 0, len(paths))
	var failed []string
	for _, f := range result.Files {
		if f.Status == types.FileStatusWritten {
			written = append(written, f.Path)
		} else {
			failed = append(failed, f.Path)
		}
	}

	if len(written) > 0 {
		s.stamp(ctx, log, albumID)
		s.publish(ctx, log, events.CoverEventData{AlbumID: albumID, ActorID: actor.ID, Written: written, Failed: failed})
	}

	if result.Completed() {
		log.Info("album cover updated", "files", len(written))
	} else {
		log.Warn("album cover partially updated", "written", len(written), "failed", len(failed))
	}
	return result, nil
}

// WriteFileCover embeds payload into a single file under its write lock.
func (s *CoverService) WriteFileCover(ctx context.Context, path string, payload *types.CoverPayload) (codec.Format, error) {
	const op = "write_file_cover"

	release, err := s.locks.Acquire(ctx, path)
	if err != nil {
		return "", err
	}
	defer release()

	data, err := s.store.ReadBytes(ctx, path)
	if err != nil {
		return "", withPath(err, op, path)
	}

	c, err := s.codecs.Detect(data)
	if err != nil {
		return "", withPath(err, op, path)
	}

	out, err := c.WriteArtwork(data, payload)
	if err != nil {
		return c.Format(), withPath(err, op, path)
	}
	if bytes.Equal(out, data) {
		return c.Format(), nil
	}

	if err := s.store.AtomicReplace(ctx, path, out); err != nil {
		return c.Format(), withPath(err, op, path)
	}
	return c.Format(), nil
}

// GetAlbumCover returns the artwork embedded in the first album file that
// carries one.
func (s *CoverService) GetAlbumCover(ctx context.Context, albumID string) (*types.CoverPayload, error) {
	const op = "get_album_cover"

	album, err := s.albums.LoadAlbum(ctx, albumID)
	if err != nil {
		return nil, mediaerrors.Wrap(err, mediaerrors.ErrorTypeDatabase, op)
	}

	for _, path := range album.Paths() {
		data, err := s.store.ReadBytes(ctx, path)
		if err != nil {
			if errors.Is(err, mediaerrors.ErrCancelled) {
				return nil, err
			}
			s.logger.Debug("skipping unreadable file", "path", path, "error", err)
			continue
		}
		payload, err := codec.ReadArtwork(data)
		if err == nil {
			return payload, nil
		}
	}
	return nil, mediaerrors.CodecError(op, mediaerrors.ErrNoArtwork).WithAlbum(albumID)
}

func (s *CoverService) stamp(ctx context.Context, log hclog.Logger, albumID string) {
	stamper, ok := s.albums.(CoverStamper)
	if !ok {
		return
	}
	if err := stamper.MarkCoverUpdated(context.WithoutCancel(ctx), albumID, time.Now().UTC()); err != nil {
		log.Warn("failed to record cover update time", "error", err)
	}
}

func (s *CoverService) publish(ctx context.Context, log hclog.Logger, data events.CoverEventData) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.NewCoverEvent(data)); err != nil {
		log.Warn("failed to publish cover event", "error", err)
	}
}

// withPath attaches path to a MediaError, wrapping plain errors.
func withPath(err error, op, path string) error {
	var mErr *mediaerrors.MediaError
	if errors.As(err, &mErr) {
		if mErr.Path == "" {
			mErr.Path = path
		}
		return err
	}
	return mediaerrors.InternalError(op, err).WithPath(path)
}

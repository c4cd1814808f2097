// Package storage persists rewritten audio files and serialises writers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/disk"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
)

// FileStore reads whole files and replaces them atomically.
type FileStore interface {
	ReadBytes(ctx context.Context, path string) ([]byte, error)
	AtomicReplace(ctx context.Context, path string, data []byte) error
}

// LocalStore is a FileStore on the local filesystem. Replacements are staged
// in a temp file next to the target and renamed over it.
type LocalStore struct {
	minFree   uint64
	logger    hclog.Logger
	freeSpace func(ctx context.Context, dir string) (uint64, error)
}

// NewLocalStore creates a store that keeps at least minFree bytes available
// on the target volume after staging.
func NewLocalStore(minFree uint64, logger hclog.Logger) *LocalStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LocalStore{
		minFree:   minFree,
		logger:    logger,
		freeSpace: volumeFree,
	}
}

func volumeFree(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// ReadBytes returns the full contents of path.
func (s *LocalStore) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	const op = "read_file"
	if err := ctx.Err(); err != nil {
		return nil, mediaerrors.StorageError(op, mediaerrors.FromContext(err)).WithPath(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mediaerrors.StorageError(op, errors.Join(mediaerrors.ErrIO, err)).WithPath(path)
	}
	return data, nil
}

// AtomicReplace writes data to a temp file in the target's directory, syncs
// it and renames it over path. The original is untouched on any failure,
// including cancellation before the rename.
func (s *LocalStore) AtomicReplace(ctx context.Context, path string, data []byte) error {
	const op = "atomic_replace"
	fail := func(cause error) error {
		return mediaerrors.StorageError(op, cause).WithPath(path)
	}

	if err := ctx.Err(); err != nil {
		return fail(mediaerrors.FromContext(err))
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return fail(errors.Join(mediaerrors.ErrIO, statErr))
	}

	dir := filepath.Dir(path)
	if free, spaceErr := s.freeSpace(ctx, dir); spaceErr != nil {
		s.logger.Warn("free space check failed", "dir", dir, "error", spaceErr)
	} else if need := uint64(len(data)) + s.minFree; free < need {
		return fail(mediaerrors.Reasonf(mediaerrors.ErrInsufficientSpace, "%d bytes free in %s, need %d", free, dir, need))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tonearm-*")
	if err != nil {
		return fail(errors.Join(mediaerrors.ErrIO, err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("failed to remove temp file", "path", tmpName, "error", rmErr)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fail(errors.Join(mediaerrors.ErrIO, err))
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail(errors.Join(mediaerrors.ErrIO, err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(errors.Join(mediaerrors.ErrIO, err))
	}
	if err := tmp.Close(); err != nil {
		return fail(errors.Join(mediaerrors.ErrIO, err))
	}

	if err := ctx.Err(); err != nil {
		return fail(mediaerrors.FromContext(err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fail(errors.Join(mediaerrors.ErrIO, err))
	}
	committed = true

	if err := syncDir(dir); err != nil {
		s.logger.Debug("directory sync failed", "dir", dir, "error", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}

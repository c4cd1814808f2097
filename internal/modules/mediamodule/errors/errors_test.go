package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaError_IsAndUnwrap(t *testing.T) {
	err := CodecError("write_artwork", Reasonf(ErrMalformedContainer, "atom %q truncated", "moov")).
		WithPath("/music/a.m4a")

	assert.True(t, errors.Is(err, ErrMalformedContainer))
	assert.False(t, errors.Is(err, ErrSizeOverflow))
	assert.Equal(t, ErrorTypeCodec, GetType(err))
	assert.Equal(t, "/music/a.m4a", GetPath(err))
	assert.Contains(t, err.Error(), `path=/music/a.m4a`)
	assert.Contains(t, err.Error(), `atom "moov" truncated`)
}

func TestMediaError_Recoverable(t *testing.T) {
	assert.True(t, ConflictError("lock", ErrConcurrentWrite).IsRecoverable())
	assert.True(t, DatabaseError("load_album", errors.New("conn reset")).IsRecoverable())
	assert.False(t, ValidationError("parse_cover", ErrInvalidPayload).IsRecoverable())
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrConcurrentWrite)))
	assert.False(t, IsRetryable(ErrForbidden))
}

func TestWrap_PreservesMediaError(t *testing.T) {
	original := AuthorizationError("set_album_cover", ErrForbidden).WithAlbum("a1")
	wrapped := Wrap(original, ErrorTypeInternal, "other")
	assert.Same(t, original, wrapped)

	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "noop"))
	assert.Equal(t, ErrorTypeStorage, GetType(Wrap(errors.New("disk"), ErrorTypeStorage, "read")))
}

func TestFromContext(t *testing.T) {
	assert.True(t, errors.Is(FromContext(context.Canceled), ErrCancelled))
	assert.True(t, errors.Is(FromContext(context.DeadlineExceeded), ErrCancelled))
	other := errors.New("other")
	assert.Equal(t, other, FromContext(other))
	assert.Nil(t, FromContext(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		nil:                                           http.StatusOK,
		AuthorizationError("op", ErrForbidden):        http.StatusForbidden,
		ValidationError("op", ErrInvalidPayload):      http.StatusUnprocessableEntity,
		ValidationError("op", ErrPayloadTooLarge):     http.StatusUnprocessableEntity,
		DatabaseError("op", ErrAlbumNotFound):         http.StatusNotFound,
		ConflictError("op", ErrConcurrentWrite):       http.StatusConflict,
		InternalError("op", errors.New("unexpected")): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), "%v", err)
	}
}

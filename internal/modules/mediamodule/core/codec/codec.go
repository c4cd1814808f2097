// Package codec embeds cover art into audio containers. Each Codec is a pure
// transform over the complete file bytes; persisting the result is the
// caller's job, so a failed encode never touches disk.
package codec

import (
	"errors"
	"io"
	"sync"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// Format names a container family.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatMP4  Format = "mp4"
)

// SniffLen is how many leading bytes Resolve inspects.
const SniffLen = 64 << 10

// Codec reads and rewrites one container family.
type Codec interface {
	// Format identifies the container family.
	Format() Format
	// Sniff reports whether the leading bytes carry this codec's signature.
	Sniff(head []byte) bool
	// WriteArtwork returns a copy of data carrying p as its only front cover.
	WriteArtwork(data []byte, p *types.CoverPayload) ([]byte, error)
}

// Registry selects a codec by structural signature, in registration order.
type Registry struct {
	mu     sync.RWMutex
	codecs []Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry registers the built-in codecs. FLAC is tried before
// MP3 because FLAC files may carry a leading ID3 tag.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewFLACCodec())
	r.Register(NewMP4Codec())
	r.Register(NewID3Codec())
	return r
}

// Register appends a codec. Later registrations are tried last.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs = append(r.codecs, c)
}

// Formats lists the registered formats in detection order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]Format, 0, len(r.codecs))
	for _, c := range r.codecs {
		formats = append(formats, c.Format())
	}
	return formats
}

// Detect returns the first codec whose signature matches data.
func (r *Registry) Detect(data []byte) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.codecs {
		if c.Sniff(data) {
			return c, nil
		}
	}
	return nil, mediaerrors.CodecError("detect_format", mediaerrors.ErrUnsupportedFormat)
}

// Resolve reads up to SniffLen bytes from rd and detects the codec.
func (r *Registry) Resolve(rd io.Reader) (Codec, error) {
	head := make([]byte, SniffLen)
	n, err := io.ReadFull(rd, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, mediaerrors.StorageError("resolve_codec", errors.Join(mediaerrors.ErrIO, err))
	}
	return r.Detect(head[:n])
}

package codec

import (
	"bytes"
	"errors"
	"image"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/go-flac"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// maxBlockLen is the largest length a FLAC metadata block header can carry.
const maxBlockLen = 1<<24 - 1

// FLACCodec writes PICTURE metadata blocks.
type FLACCodec struct{}

// NewFLACCodec creates the FLAC codec.
func NewFLACCodec() *FLACCodec {
	return &FLACCodec{}
}

func (c *FLACCodec) Format() Format { return FormatFLAC }

// Sniff accepts a fLaC marker, optionally behind an ID3v2 tag.
func (c *FLACCodec) Sniff(head []byte) bool {
	off := skipID3(head)
	return len(head) >= off+4 && string(head[off:off+4]) == "fLaC"
}

// WriteArtwork removes every PICTURE block and inserts a single front cover
// where the first one was, else before the first PADDING block, else last.
// A leading ID3 tag and the audio frames are kept byte for byte.
func (c *FLACCodec) WriteArtwork(data []byte, p *types.CoverPayload) ([]byte, error) {
	const op = "write_flac_artwork"

	if p == nil || len(p.Data) == 0 {
		return nil, mediaerrors.CodecError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "empty cover"))
	}

	prefixLen := skipID3(data)
	if len(data) < prefixLen+4 || string(data[prefixLen:prefixLen+4]) != "fLaC" {
		return nil, mediaerrors.CodecError(op, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "missing fLaC marker"))
	}

	f, err := flac.ParseBytes(bytes.NewReader(data[prefixLen:]))
	if err != nil {
		return nil, mediaerrors.CodecError(op, errors.Join(mediaerrors.ErrMalformedContainer, err))
	}
	if len(f.Meta) == 0 || f.Meta[0].Type != flac.StreamInfo {
		return nil, mediaerrors.CodecError(op, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "first metadata block is not STREAMINFO"))
	}

	block := pictureBlock(p)
	if len(block.Data) > maxBlockLen {
		return nil, mediaerrors.CodecError(op, mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "PICTURE block of %d bytes", len(block.Data)))
	}

	kept := make([]*flac.MetaDataBlock, 0, len(f.Meta)+1)
	insertAt := -1
	for _, m := range f.Meta {
		if m.Type == flac.Picture {
			if insertAt < 0 {
				insertAt = len(kept)
			}
			continue
		}
		if m.Type == flac.Padding && insertAt < 0 {
			insertAt = len(kept)
		}
		kept = append(kept, m)
	}
	if insertAt < 0 {
		insertAt = len(kept)
	}
	kept = append(kept, nil)
	copy(kept[insertAt+1:], kept[insertAt:])
	kept[insertAt] = &block
	f.Meta = kept

	out := make([]byte, 0, len(data)+len(block.Data))
	out = append(out, data[:prefixLen]...)
	return append(out, f.Marshal()...), nil
}

func pictureBlock(p *types.CoverPayload) flac.MetaDataBlock {
	width, height := p.Width, p.Height
	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(p.Data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}
	pic := &flacpicture.MetadataBlockPicture{
		PictureType: flacpicture.PictureTypeFrontCover,
		MIME:        p.MIMEType,
		Width:       uint32(width),
		Height:      uint32(height),
		ColorDepth:  24,
		ImageData:   p.Data,
	}
	return pic.Marshal()
}

// skipID3 returns the length of a leading ID3v2 tag, or 0.
func skipID3(data []byte) int {
	if len(data) < id3HeaderLen || string(data[:3]) != "ID3" {
		return 0
	}
	n, err := id3TagLen(data)
	if err != nil {
		return 0
	}
	return n
}

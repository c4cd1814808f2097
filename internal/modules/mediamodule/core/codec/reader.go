package codec

import (
	"bytes"
	"errors"

	"github.com/dhowden/tag"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// ReadArtwork returns the embedded front cover of an MP3, FLAC or MP4 file.
func ReadArtwork(data []byte) (*types.CoverPayload, error) {
	const op = "read_artwork"

	// A FLAC stream behind an ID3 tag would otherwise be read as MP3.
	if off := skipID3(data); off > 0 && len(data) >= off+4 && string(data[off:off+4]) == "fLaC" {
		data = data[off:]
	}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil, mediaerrors.CodecError(op, mediaerrors.ErrNoArtwork)
		}
		return nil, mediaerrors.CodecError(op, errors.Join(mediaerrors.ErrMalformedContainer, err))
	}

	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, mediaerrors.CodecError(op, mediaerrors.ErrNoArtwork)
	}

	mime := pic.MIMEType
	if mime == "" || mime == "image/jpg" {
		switch pic.Ext {
		case "png":
			mime = "image/png"
		default:
			mime = "image/jpeg"
		}
	}
	return &types.CoverPayload{Data: pic.Data, MIMEType: mime}, nil
}

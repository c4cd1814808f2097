package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/bogem/id3v2/v2"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

const (
	id3HeaderLen = 10

	id3FlagUnsync    = 0x80
	id3FlagExtHeader = 0x40
	id3FlagFooter    = 0x10

	id3FrameUnsync = 0x02

	maxSyncsafe = 1<<28 - 1
)

// ID3Codec writes APIC frames into MPEG audio files carrying an ID3v2.3 or
// ID3v2.4 tag. Files without a tag get a new ID3v2.3 tag.
type ID3Codec struct{}

// NewID3Codec creates the MP3 codec.
func NewID3Codec() *ID3Codec {
	return &ID3Codec{}
}

func (c *ID3Codec) Format() Format { return FormatMP3 }

// Sniff accepts an ID3v2 header or a bare MPEG frame sync.
func (c *ID3Codec) Sniff(head []byte) bool {
	if len(head) >= 3 && string(head[:3]) == "ID3" {
		return true
	}
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
}

// WriteArtwork replaces every APIC frame with a single front cover. Other
// frames keep their order and bytes; tag padding is dropped.
func (c *ID3Codec) WriteArtwork(data []byte, p *types.CoverPayload) ([]byte, error) {
	const op = "write_id3_artwork"

	picture, err := encodePictureFrame(p)
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}

	if len(data) < 3 || string(data[:3]) != "ID3" {
		// Untagged MPEG stream.
		out, err := buildID3(3, 0, nil, picture, -1, data)
		if err != nil {
			return nil, mediaerrors.CodecError(op, err)
		}
		return out, nil
	}

	tagLen, err := id3TagLen(data)
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}
	major, flags := data[3], data[5]
	audio := data[tagLen:]

	body, err := frameArea(data[id3HeaderLen:tagLen-footerLen(major, flags)], major, flags)
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}
	frames, insertAt, err := splitID3Frames(body, major)
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}
	out, err := buildID3(major, flags, frames, picture, insertAt, audio)
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}
	return out, nil
}

// id3TagLen returns the byte length of the leading ID3v2 tag including its
// header and optional footer.
func id3TagLen(data []byte) (int, error) {
	if len(data) < id3HeaderLen {
		return 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "truncated ID3 header")
	}
	major := data[3]
	if major < 3 || major > 4 {
		return 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "unsupported ID3v2.%d tag", major)
	}
	size, ok := decodeSyncsafe(data[6:10])
	if !ok {
		return 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "tag size is not syncsafe")
	}
	total := id3HeaderLen + size + footerLen(major, data[5])
	if total > len(data) {
		return 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "tag size %d exceeds file length %d", total, len(data))
	}
	return total, nil
}

func footerLen(major, flags byte) int {
	if major == 4 && flags&id3FlagFooter != 0 {
		return id3HeaderLen
	}
	return 0
}

// frameArea strips the extended header from a tag body. For ID3v2.3 the
// tag-wide unsynchronisation is reversed first, since it covers the
// extended header too.
func frameArea(body []byte, major, flags byte) ([]byte, error) {
	if major == 3 && flags&id3FlagUnsync != 0 {
		body = resync(body)
	}
	if flags&id3FlagExtHeader == 0 {
		return body, nil
	}
	if len(body) < 4 {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "truncated extended header")
	}
	var extLen int
	if major == 4 {
		n, ok := decodeSyncsafe(body[:4])
		if !ok {
			return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "extended header size is not syncsafe")
		}
		extLen = n
	} else {
		extLen = 4 + int(binary.BigEndian.Uint32(body[:4]))
	}
	if extLen < 4 || extLen > len(body) {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "extended header of %d bytes overruns tag", extLen)
	}
	return body[extLen:], nil
}

// resync undoes unsynchronisation by dropping the zero byte stuffed after
// every 0xFF.
func resync(b []byte) []byte {
	if !bytes.Contains(b, []byte{0xFF, 0x00}) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == 0xFF && i+1 < len(b) && b[i+1] == 0x00 {
			i++
		}
	}
	return out
}

// resyncFrame reverses the per-frame unsynchronisation of an ID3v2.4 frame
// and rewrites its size and format flags to match.
func resyncFrame(frame []byte) ([]byte, error) {
	data := resync(frame[id3HeaderLen:])
	if len(data) > maxSyncsafe {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "frame of %d bytes", len(data))
	}
	out := make([]byte, id3HeaderLen, id3HeaderLen+len(data))
	copy(out, frame[:id3HeaderLen])
	copy(out[4:8], encodeSyncsafe(len(data)))
	out[9] &^= id3FrameUnsync
	return append(out, data...), nil
}

// splitID3Frames returns the raw non-APIC frames and the index at which the
// first APIC frame sat, or -1.
func splitID3Frames(body []byte, major byte) ([][]byte, int, error) {
	var frames [][]byte
	insertAt := -1
	for off := 0; off+id3HeaderLen <= len(body); {
		if body[off] == 0 {
			break // padding
		}
		id := body[off : off+4]
		if !validFrameID(id) {
			return nil, 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "invalid frame id %q at offset %d", id, off)
		}
		var size int
		if major == 4 {
			s, ok := decodeSyncsafe(body[off+4 : off+8])
			if !ok {
				return nil, 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "frame %s size is not syncsafe", id)
			}
			size = s
		} else {
			size = int(binary.BigEndian.Uint32(body[off+4 : off+8]))
		}
		end := off + id3HeaderLen + size
		if size < 0 || end > len(body) {
			return nil, 0, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "frame %s overruns tag", id)
		}
		frame := body[off:end]
		if string(id) == "APIC" {
			if insertAt < 0 {
				insertAt = len(frames)
			}
		} else {
			if major == 4 && frame[9]&id3FrameUnsync != 0 {
				f, err := resyncFrame(frame)
				if err != nil {
					return nil, 0, err
				}
				frame = f
			}
			frames = append(frames, frame)
		}
		off = end
	}
	return frames, insertAt, nil
}

func validFrameID(id []byte) bool {
	for _, b := range id {
		if (b < 'A' || b > 'Z') && (b < '0' || b > '9') {
			return false
		}
	}
	return true
}

// encodePictureFrame renders the APIC frame body.
func encodePictureFrame(p *types.CoverPayload) ([]byte, error) {
	if p == nil || len(p.Data) == 0 {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "empty cover")
	}
	frame := id3v2.PictureFrame{
		Encoding:    id3v2.EncodingISO,
		MimeType:    p.MIMEType,
		PictureType: id3v2.PTFrontCover,
		Picture:     p.Data,
	}
	var buf bytes.Buffer
	buf.Grow(frame.Size())
	if _, err := frame.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildID3 assembles header, frames with the picture inserted at insertAt
// (appended when negative), optional footer, then the audio bytes.
func buildID3(major, flags byte, frames [][]byte, picture []byte, insertAt int, audio []byte) ([]byte, error) {
	if major == 4 && len(picture) > maxSyncsafe {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "APIC frame of %d bytes", len(picture))
	}
	apicHeader := make([]byte, id3HeaderLen)
	copy(apicHeader, "APIC")
	if major == 4 {
		copy(apicHeader[4:8], encodeSyncsafe(len(picture)))
	} else {
		binary.BigEndian.PutUint32(apicHeader[4:8], uint32(len(picture)))
	}

	if insertAt < 0 || insertAt > len(frames) {
		insertAt = len(frames)
	}

	size := id3HeaderLen + len(picture)
	for _, f := range frames {
		size += len(f)
	}
	if size > maxSyncsafe {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "tag of %d bytes", size)
	}

	flags &^= id3FlagUnsync | id3FlagExtHeader
	footer := footerLen(major, flags)

	out := make([]byte, 0, id3HeaderLen+size+footer+len(audio))
	header := []byte{'I', 'D', '3', major, 0, flags}
	header = append(header, encodeSyncsafe(size)...)
	out = append(out, header...)
	for i, f := range frames {
		if i == insertAt {
			out = append(out, apicHeader...)
			out = append(out, picture...)
		}
		out = append(out, f...)
	}
	if insertAt == len(frames) {
		out = append(out, apicHeader...)
		out = append(out, picture...)
	}
	if footer > 0 {
		out = append(out, '3', 'D', 'I', major, 0, flags)
		out = append(out, encodeSyncsafe(size)...)
	}
	return append(out, audio...), nil
}

func decodeSyncsafe(b []byte) (int, bool) {
	n := 0
	for _, x := range b {
		if x&0x80 != 0 {
			return 0, false
		}
		n = n<<7 | int(x)
	}
	return n, true
}

func encodeSyncsafe(n int) []byte {
	return []byte{
		byte(n>>21) & 0x7F,
		byte(n>>14) & 0x7F,
		byte(n>>7) & 0x7F,
		byte(n) & 0x7F,
	}
}

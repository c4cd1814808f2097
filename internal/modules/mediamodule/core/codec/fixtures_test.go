package codec

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/abema/go-mp4"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

func coverImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	for x := 0; x < 6; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(60 * y), B: 200, A: 255})
		}
	}
	return img
}

func jpegCover(t *testing.T) *types.CoverPayload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, coverImage(), &jpeg.Options{Quality: 90}))
	return &types.CoverPayload{Data: buf.Bytes(), MIMEType: "image/jpeg", Width: 6, Height: 4}
}

func pngCover(t *testing.T) *types.CoverPayload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, coverImage()))
	return &types.CoverPayload{Data: buf.Bytes(), MIMEType: "image/png", Width: 6, Height: 4}
}

// audioPayload stands in for encoded audio frames.
func audioPayload(sync []byte, n int) []byte {
	out := make([]byte, 0, n)
	for i := 0; len(out) < n; i++ {
		if i%64 == 0 {
			out = append(out, sync...)
			continue
		}
		out = append(out, byte(i*7))
	}
	return out[:n]
}

// ID3 fixtures

func id3v3Frame(id string, body []byte) []byte {
	b := make([]byte, 10, 10+len(body))
	copy(b, id)
	binary.BigEndian.PutUint32(b[4:], uint32(len(body)))
	return append(b, body...)
}

func id3v4Frame(id string, body []byte) []byte {
	b := make([]byte, 10, 10+len(body))
	copy(b, id)
	copy(b[4:8], encodeSyncsafe(len(body)))
	return append(b, body...)
}

func textBody(s string) []byte {
	return append([]byte{0}, s...)
}

func apicBody(mime string, img []byte) []byte {
	b := []byte{0}
	b = append(b, mime...)
	b = append(b, 0, 3, 0)
	return append(b, img...)
}

func id3Tag(major, flags byte, padding int, frames ...[]byte) []byte {
	var body []byte
	for _, f := range frames {
		body = append(body, f...)
	}
	body = append(body, make([]byte, padding)...)
	tag := []byte{'I', 'D', '3', major, 0, flags}
	tag = append(tag, encodeSyncsafe(len(body))...)
	tag = append(tag, body...)
	if major == 4 && flags&id3FlagFooter != 0 {
		tag = append(tag, '3', 'D', 'I', major, 0, flags)
		tag = append(tag, encodeSyncsafe(len(body))...)
	}
	return tag
}

var mpegSync = []byte{0xFF, 0xFB, 0x90, 0x64}

// FLAC fixtures

func flacBlock(typ byte, last bool, data []byte) []byte {
	h := typ
	if last {
		h |= 0x80
	}
	b := []byte{h, byte(len(data) >> 16), byte(len(data) >> 8), byte(len(data))}
	return append(b, data...)
}

func streamInfo() []byte {
	b := make([]byte, 34)
	binary.BigEndian.PutUint16(b[0:], 4096)
	binary.BigEndian.PutUint16(b[2:], 4096)
	// 44100 Hz, 2 channels, 16 bits
	b[10], b[11], b[12] = 0x0A, 0xC4, 0x42
	b[13] = 0xF0
	return b
}

func vorbisComment(vendor string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(vendor)))
	b = append(b, vendor...)
	return binary.LittleEndian.AppendUint32(b, 0)
}

func rawPicture(mime string, img []byte) []byte {
	b := binary.BigEndian.AppendUint32(nil, 3)
	b = binary.BigEndian.AppendUint32(b, uint32(len(mime)))
	b = append(b, mime...)
	b = binary.BigEndian.AppendUint32(b, 0) // description
	b = append(b, make([]byte, 16)...)      // width, height, depth, colors
	b = binary.BigEndian.AppendUint32(b, uint32(len(img)))
	return append(b, img...)
}

var flacSync = []byte{0xFF, 0xF8, 0x69, 0x08}

func flacFile(blocks ...[]byte) []byte {
	out := []byte("fLaC")
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// MP4 fixtures

func box(typ string, children ...[]byte) []byte {
	size := 8
	for _, c := range children {
		size += len(c)
	}
	b := binary.BigEndian.AppendUint32(nil, uint32(size))
	b = append(b, typ...)
	for _, c := range children {
		b = append(b, c...)
	}
	return b
}

func ftyp() []byte {
	return box("ftyp", []byte("M4A "), []byte{0, 0, 0, 0}, []byte("M4A isom"))
}

func stco(offsets ...uint32) []byte {
	body := []byte{0, 0, 0, 0}
	body = binary.BigEndian.AppendUint32(body, uint32(len(offsets)))
	for _, o := range offsets {
		body = binary.BigEndian.AppendUint32(body, o)
	}
	return box("stco", body)
}

func co64(offsets ...uint64) []byte {
	body := []byte{0, 0, 0, 0}
	body = binary.BigEndian.AppendUint32(body, uint32(len(offsets)))
	for _, o := range offsets {
		body = binary.BigEndian.AppendUint64(body, o)
	}
	return box("co64", body)
}

func trak(chunkTable []byte) []byte {
	return box("trak", box("mdia", box("minf", box("stbl", chunkTable))))
}

func mvhd() []byte {
	return box("mvhd", make([]byte, 100))
}

func ilstItem(typ string, dataType uint32, payload []byte) []byte {
	data := binary.BigEndian.AppendUint32(nil, dataType)
	data = append(data, 0, 0, 0, 0)
	data = append(data, payload...)
	return box(typ, box("data", data))
}

func metaBox(items ...[]byte) []byte {
	return box("meta", []byte{0, 0, 0, 0}, box("hdlr", make([]byte, 8), []byte("mdirappl"), make([]byte, 9)), box("ilst", items...))
}

// faststartMP4 lays out ftyp, moov, mdat with one chunk offset pointing at
// the audio inside mdat.
func faststartMP4(audio []byte, udta []byte) []byte {
	build := func(off uint32) []byte {
		children := [][]byte{mvhd(), trak(stco(off))}
		if udta != nil {
			children = append(children, udta)
		}
		return box("moov", children...)
	}
	moovLen := len(build(0))
	off := uint32(len(ftyp()) + moovLen + 8)

	out := append([]byte{}, ftyp()...)
	out = append(out, build(off)...)
	return append(out, box("mdat", audio)...)
}

// chunkOffsets returns the stco or co64 entries of the first track.
func chunkOffsets(t *testing.T, data []byte) []uint64 {
	t.Helper()
	stbl := mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl()}
	boxes, err := mp4.ExtractBoxesWithPayload(bytes.NewReader(data), nil, []mp4.BoxPath{
		append(append(mp4.BoxPath{}, stbl...), mp4.BoxTypeStco()),
		append(append(mp4.BoxPath{}, stbl...), mp4.BoxTypeCo64()),
	})
	require.NoError(t, err)
	require.NotEmpty(t, boxes, "no chunk offset table")

	var offs []uint64
	switch table := boxes[0].Payload.(type) {
	case *mp4.Stco:
		for _, o := range table.ChunkOffset {
			offs = append(offs, uint64(o))
		}
	case *mp4.Co64:
		offs = append(offs, table.ChunkOffset...)
	}
	return offs
}

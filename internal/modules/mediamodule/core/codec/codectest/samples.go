// Package codectest builds small but structurally valid audio files and
// cover images for tests.
package codectest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Audio returns n bytes of fake audio frames starting with sync.
func Audio(sync []byte, n int) []byte {
	out := make([]byte, 0, n+len(sync))
	for i := 0; len(out) < n; i++ {
		if i%64 == 0 {
			out = append(out, sync...)
			continue
		}
		out = append(out, byte(i*13))
	}
	return out[:n]
}

// MP3 returns an ID3v2.3 tagged MPEG stream with a title frame.
func MP3(title string, audioLen int) []byte {
	body := append([]byte{0}, title...)
	frame := make([]byte, 10, 10+len(body))
	copy(frame, "TIT2")
	binary.BigEndian.PutUint32(frame[4:], uint32(len(body)))
	frame = append(frame, body...)
	frame = append(frame, make([]byte, 32)...) // padding

	size := len(frame)
	tag := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size>>21) & 0x7F, byte(size>>14) & 0x7F, byte(size>>7) & 0x7F, byte(size) & 0x7F}
	tag = append(tag, frame...)
	return append(tag, Audio([]byte{0xFF, 0xFB, 0x90, 0x64}, audioLen)...)
}

// FLAC returns a FLAC stream with STREAMINFO and PADDING blocks.
func FLAC(audioLen int) []byte {
	info := make([]byte, 34)
	binary.BigEndian.PutUint16(info[0:], 4096)
	binary.BigEndian.PutUint16(info[2:], 4096)
	info[10], info[11], info[12], info[13] = 0x0A, 0xC4, 0x42, 0xF0

	out := []byte("fLaC")
	out = append(out, 0x00, 0, 0, 34)
	out = append(out, info...)
	out = append(out, 0x81, 0, 0, 64)
	out = append(out, make([]byte, 64)...)
	return append(out, Audio([]byte{0xFF, 0xF8, 0x69, 0x08}, audioLen)...)
}

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

// MP4 returns a faststart M4A: ftyp, moov with one stco entry, mdat.
func MP4(audioLen int) []byte {
	ftyp := box("ftyp", []byte("M4A "), []byte{0, 0, 0, 0}, []byte("M4A isom"))
	moov := func(off uint32) []byte {
		stco := box("stco", []byte{0, 0, 0, 0, 0, 0, 0, 1}, binary.BigEndian.AppendUint32(nil, off))
		trak := box("trak", box("mdia", box("minf", box("stbl", stco))))
		return box("moov", box("mvhd", make([]byte, 100)), trak)
	}
	off := uint32(len(ftyp) + len(moov(0)) + 8)

	out := append([]byte{}, ftyp...)
	out = append(out, moov(off)...)
	return append(out, box("mdat", Audio([]byte{0x21, 0x10, 0x05}, audioLen))...)
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	return img
}

// JPEG returns an encoded w x h JPEG image.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG returns an encoded w x h PNG image.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/abema/go-mp4"
	"github.com/orcaman/writerseeker"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// iTunes well-known data types for covr.
const (
	dataTypeJPEG = 13
	dataTypePNG  = 14
)

var boxTypeCovr = mp4.StrToBoxType("covr")

// containerBoxes are descended into while rewriting moov. Everything else is
// carried as opaque bytes.
var containerBoxes = map[mp4.BoxType]bool{
	mp4.BoxTypeMoov(): true,
	mp4.BoxTypeTrak(): true,
	mp4.BoxTypeMdia(): true,
	mp4.BoxTypeMinf(): true,
	mp4.BoxTypeStbl(): true,
	mp4.BoxTypeUdta(): true,
	mp4.BoxTypeMeta(): true,
	mp4.BoxTypeIlst(): true,
}

// ilstItemContext is what go-mp4 expects when marshalling a data box.
var ilstItemContext = mp4.Context{UnderIlst: true, UnderIlstMeta: true}

// atom is a parsed box. Leaves keep their original bytes, header included.
type atom struct {
	typ      mp4.BoxType
	extended bool
	prefix   []byte // full-box version and flags, meta only
	children []*atom
	tail     []byte // QuickTime zero terminator, udta only
	raw      []byte
}

func (a *atom) isLeaf() bool { return a.raw != nil }

func (a *atom) child(typ mp4.BoxType) *atom {
	for _, c := range a.children {
		if c.typ == typ {
			return c
		}
	}
	return nil
}

func (a *atom) size() uint64 {
	if a.isLeaf() {
		return uint64(len(a.raw))
	}
	n := uint64(mp4.SmallHeaderSize + len(a.prefix) + len(a.tail))
	if a.extended {
		n = uint64(mp4.LargeHeaderSize + len(a.prefix) + len(a.tail))
	}
	for _, c := range a.children {
		n += c.size()
	}
	return n
}

// MP4Codec writes the iTunes covr item in MP4/M4A files.
type MP4Codec struct{}

// NewMP4Codec creates the MP4 codec.
func NewMP4Codec() *MP4Codec {
	return &MP4Codec{}
}

func (c *MP4Codec) Format() Format { return FormatMP4 }

// Sniff accepts an ftyp box at the start of the file.
func (c *MP4Codec) Sniff(head []byte) bool {
	return len(head) >= 8 && string(head[4:8]) == "ftyp"
}

// WriteArtwork rewrites moov/udta/meta/ilst/covr, creating missing
// containers, and shifts chunk offsets that point past moov.
func (c *MP4Codec) WriteArtwork(data []byte, p *types.CoverPayload) ([]byte, error) {
	const op = "write_mp4_artwork"

	if p == nil || len(p.Data) == 0 {
		return nil, mediaerrors.CodecError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "empty cover"))
	}
	var dataType uint32
	switch p.MIMEType {
	case "image/jpeg":
		dataType = dataTypeJPEG
	case "image/png":
		dataType = dataTypePNG
	default:
		return nil, mediaerrors.CodecError(op, mediaerrors.Reasonf(mediaerrors.ErrUnsupportedArtwork, "mp4 cannot carry %s", p.MIMEType))
	}

	moovInfo, err := locateMoov(bytes.NewReader(data))
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}
	moovStart, moovEnd := moovInfo.Offset, moovInfo.Offset+moovInfo.Size

	moov, err := parseBox(data, moovInfo)
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}

	if err := setCover(moov, dataType, p.Data); err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}

	delta := int64(moov.size()) - int64(moovInfo.Size)
	if delta != 0 {
		if err := shiftChunkOffsets(moov, moovEnd, delta); err != nil {
			return nil, mediaerrors.CodecError(op, err)
		}
	}

	out, err := writeFile(data[:moovStart], moov, data[moovEnd:])
	if err != nil {
		return nil, mediaerrors.CodecError(op, err)
	}
	return out, nil
}

// locateMoov walks the top-level boxes and returns the one moov.
func locateMoov(r *bytes.Reader) (*mp4.BoxInfo, error) {
	var moov *mp4.BoxInfo
	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (interface{}, error) {
		bi := h.BoxInfo
		if bi.Size < bi.HeaderSize || bi.Offset+bi.Size > uint64(r.Size()) {
			return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "box %s size %d out of bounds at %d", bi.Type, bi.Size, bi.Offset)
		}
		switch bi.Type {
		case mp4.BoxTypeMoov():
			if moov != nil {
				return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "duplicate moov")
			}
			moov = &bi
		case mp4.BoxTypeMoof():
			return nil, mediaerrors.Reasonf(mediaerrors.ErrUnsupportedFormat, "fragmented mp4")
		}
		return nil, nil
	})
	if err != nil {
		return nil, malformed(err)
	}
	if moov == nil {
		return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "no moov atom")
	}
	return moov, nil
}

// parseBox parses the box bi describes within data. Known containers are
// expanded; their children must tile the body exactly.
func parseBox(data []byte, bi *mp4.BoxInfo) (*atom, error) {
	b := data[bi.Offset : bi.Offset+bi.Size]
	a := &atom{typ: bi.Type, extended: bi.HeaderSize == mp4.LargeHeaderSize}
	if !containerBoxes[bi.Type] {
		a.raw = b
		return a, nil
	}

	body := b[bi.HeaderSize:]
	if bi.Type == mp4.BoxTypeMeta() {
		// go-mp4 reads version and flags only for ISO meta boxes.
		n, err := mp4.Unmarshal(bytes.NewReader(body), uint64(len(body)), &mp4.Meta{}, mp4.Context{})
		if err != nil {
			return nil, malformed(err)
		}
		a.prefix = body[:n]
		body = body[n:]
	}

	a.children = []*atom{}
	r := bytes.NewReader(body)
	for r.Len() > 0 {
		rest := body[len(body)-r.Len():]
		if bi.Type == mp4.BoxTypeUdta() && len(rest) < mp4.SmallHeaderSize && isZero(rest) {
			a.tail = rest
			break
		}

		cbi, err := mp4.ReadBoxInfo(r)
		if err != nil {
			return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "truncated box header in %s: %v", bi.Type, err)
		}
		if cbi.ExtendToEOF || cbi.Size < cbi.HeaderSize || cbi.Offset+cbi.Size > uint64(len(body)) {
			return nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "box %s size %d out of bounds in %s", cbi.Type, cbi.Size, bi.Type)
		}
		child, err := parseBox(body, cbi)
		if err != nil {
			return nil, err
		}
		a.children = append(a.children, child)
		if _, err := cbi.SeekToEnd(r); err != nil {
			return nil, malformed(err)
		}
	}
	return a, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// setCover makes covr the only cover item, creating udta/meta/ilst as needed.
func setCover(moov *atom, dataType uint32, img []byte) error {
	udta := moov.child(mp4.BoxTypeUdta())
	if udta == nil {
		udta = &atom{typ: mp4.BoxTypeUdta(), children: []*atom{}}
		moov.children = append(moov.children, udta)
	}
	meta := udta.child(mp4.BoxTypeMeta())
	if meta == nil {
		hdlr, err := marshalBox(&mp4.Hdlr{HandlerType: [4]byte{'m', 'd', 'i', 'r'}}, mp4.Context{}, mp4.SmallHeaderSize)
		if err != nil {
			return malformed(err)
		}
		meta = &atom{typ: mp4.BoxTypeMeta(), prefix: []byte{0, 0, 0, 0}, children: []*atom{{typ: mp4.BoxTypeHdlr(), raw: hdlr}}}
		udta.children = append(udta.children, meta)
	}
	ilst := meta.child(mp4.BoxTypeIlst())
	if ilst == nil {
		ilst = &atom{typ: mp4.BoxTypeIlst(), children: []*atom{}}
		meta.children = append(meta.children, ilst)
	}

	covrLen := uint64(2*mp4.SmallHeaderSize + 8 + len(img))
	if covrLen > math.MaxUint32 {
		return mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "covr of %d bytes", covrLen)
	}
	raw, err := covrBox(dataType, img)
	if err != nil {
		return malformed(err)
	}
	covr := &atom{typ: boxTypeCovr, raw: raw}

	kept := make([]*atom, 0, len(ilst.children)+1)
	placed := false
	for _, item := range ilst.children {
		if item.typ != boxTypeCovr {
			kept = append(kept, item)
			continue
		}
		if !placed {
			kept = append(kept, covr)
			placed = true
		}
	}
	if !placed {
		kept = append(kept, covr)
	}
	ilst.children = kept
	return nil
}

// covrBox builds covr holding a single data box.
func covrBox(dataType uint32, img []byte) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	w := mp4.NewWriter(ws)
	if _, err := w.StartBox(&mp4.BoxInfo{Type: boxTypeCovr}); err != nil {
		return nil, err
	}
	if _, err := w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeData()}); err != nil {
		return nil, err
	}
	if _, err := mp4.Marshal(w, &mp4.Data{DataType: dataType, Data: img}, ilstItemContext); err != nil {
		return nil, err
	}
	if _, err := w.EndBox(); err != nil {
		return nil, err
	}
	if _, err := w.EndBox(); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.BytesReader())
}

// marshalBox serialises box with a header of hdr bytes.
func marshalBox(box mp4.IImmutableBox, ctx mp4.Context, hdr uint64) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	w := mp4.NewWriter(ws)
	if _, err := w.StartBox(&mp4.BoxInfo{Type: box.GetType(), HeaderSize: hdr}); err != nil {
		return nil, err
	}
	if _, err := mp4.Marshal(w, box, ctx); err != nil {
		return nil, err
	}
	if _, err := w.EndBox(); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.BytesReader())
}

// chunkTablePayload returns the header size and body of an stco/co64 leaf
// after checking that the declared entry count fits.
func chunkTablePayload(a *atom, width uint64) (uint64, []byte, error) {
	bi, err := mp4.ReadBoxInfo(bytes.NewReader(a.raw))
	if err != nil {
		return 0, nil, malformed(err)
	}
	body := a.raw[bi.HeaderSize:]
	if len(body) < 8 {
		return 0, nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "truncated %s", a.typ)
	}
	count := uint64(binary.BigEndian.Uint32(body[4:8]))
	if count*width > uint64(len(body)-8) {
		return 0, nil, mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "%s declares %d entries", a.typ, count)
	}
	return bi.HeaderSize, body, nil
}

// shiftChunkOffsets adds delta to every stco/co64 entry at or past the old
// end of moov. Entries before moov are unaffected by the rewrite.
func shiftChunkOffsets(a *atom, oldMoovEnd uint64, delta int64) error {
	if !a.isLeaf() {
		for _, c := range a.children {
			if err := shiftChunkOffsets(c, oldMoovEnd, delta); err != nil {
				return err
			}
		}
		return nil
	}

	switch a.typ {
	case mp4.BoxTypeStco():
		hdr, body, err := chunkTablePayload(a, 4)
		if err != nil {
			return err
		}
		var stco mp4.Stco
		if _, err := mp4.Unmarshal(bytes.NewReader(body), uint64(len(body)), &stco, mp4.Context{}); err != nil {
			return malformed(err)
		}
		changed := false
		for i, off := range stco.ChunkOffset {
			if uint64(off) < oldMoovEnd {
				continue
			}
			shifted := int64(off) + delta
			if shifted < 0 || shifted > math.MaxUint32 {
				return mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "stco offset %d shifted by %d", off, delta)
			}
			stco.ChunkOffset[i] = uint32(shifted)
			changed = true
		}
		if !changed {
			return nil
		}
		raw, err := marshalBox(&stco, mp4.Context{}, hdr)
		if err != nil {
			return malformed(err)
		}
		a.raw = raw

	case mp4.BoxTypeCo64():
		hdr, body, err := chunkTablePayload(a, 8)
		if err != nil {
			return err
		}
		var co64 mp4.Co64
		if _, err := mp4.Unmarshal(bytes.NewReader(body), uint64(len(body)), &co64, mp4.Context{}); err != nil {
			return malformed(err)
		}
		changed := false
		for i, off := range co64.ChunkOffset {
			if off < oldMoovEnd {
				continue
			}
			if delta < 0 && off < uint64(-delta) {
				return mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "co64 offset %d underflows", off)
			}
			co64.ChunkOffset[i] = uint64(int64(off) + delta)
			changed = true
		}
		if !changed {
			return nil
		}
		raw, err := marshalBox(&co64, mp4.Context{}, hdr)
		if err != nil {
			return malformed(err)
		}
		a.raw = raw
	}
	return nil
}

// writeFile emits head, the rewritten moov and rest.
func writeFile(head []byte, moov *atom, rest []byte) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	w := mp4.NewWriter(ws)
	if _, err := w.Write(head); err != nil {
		return nil, err
	}
	if err := writeBox(w, moov); err != nil {
		return nil, err
	}
	if _, err := w.Write(rest); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.BytesReader())
}

// writeBox serialises a, letting the writer patch container sizes.
func writeBox(w *mp4.Writer, a *atom) error {
	if a.isLeaf() {
		_, err := w.Write(a.raw)
		return err
	}
	if size := a.size(); size > math.MaxUint32 && !a.extended {
		return mediaerrors.Reasonf(mediaerrors.ErrSizeOverflow, "%s of %d bytes", a.typ, size)
	}

	bi := &mp4.BoxInfo{Type: a.typ, HeaderSize: mp4.SmallHeaderSize}
	if a.extended {
		bi.HeaderSize = mp4.LargeHeaderSize
	}
	if _, err := w.StartBox(bi); err != nil {
		return err
	}
	if _, err := w.Write(a.prefix); err != nil {
		return err
	}
	for _, c := range a.children {
		if err := writeBox(w, c); err != nil {
			return err
		}
	}
	if _, err := w.Write(a.tail); err != nil {
		return err
	}
	_, err := w.EndBox()
	return err
}

// malformed maps go-mp4 and io errors onto ErrMalformedContainer, keeping
// errors that already carry a media sentinel.
func malformed(err error) error {
	var mErr *mediaerrors.MediaError
	switch {
	case errors.As(err, &mErr),
		errors.Is(err, mediaerrors.ErrMalformedContainer),
		errors.Is(err, mediaerrors.ErrUnsupportedFormat),
		errors.Is(err, mediaerrors.ErrSizeOverflow):
		return err
	}
	return mediaerrors.Reasonf(mediaerrors.ErrMalformedContainer, "%v", err)
}

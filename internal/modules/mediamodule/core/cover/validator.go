// Package cover validates cover images submitted as data URIs.
package cover

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	_ "github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

const (
	// DefaultMaxBytes bounds the decoded image size.
	DefaultMaxBytes int64 = 10 << 20
)

// DefaultAllowedTypes are the image types accepted when none are configured.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Config bounds what the validator accepts.
type Config struct {
	MaxBytes      int64
	AllowedTypes  []string
	VerifyContent bool
}

// Validator turns raw cover input into a CoverPayload. It is safe for
// concurrent use and its limits can be swapped at runtime with Update.
type Validator struct {
	mu      sync.RWMutex
	max     int64
	allowed map[string]struct{}
	verify  bool
}

// NewValidator creates a validator, filling zero fields with defaults.
func NewValidator(cfg Config) *Validator {
	v := &Validator{}
	v.Update(cfg)
	return v
}

// Update replaces the validator's limits.
func (v *Validator) Update(cfg Config) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = DefaultAllowedTypes
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[normalizeMIME(t)] = struct{}{}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.max = cfg.MaxBytes
	v.allowed = allowed
	v.verify = cfg.VerifyContent
}

// MaxBytes returns the current decoded size limit.
func (v *Validator) MaxBytes() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.max
}

// Parse validates a data URI of the form data:<mime>;base64,<payload>.
// Line breaks inside the payload and missing padding are tolerated.
func (v *Validator) Parse(raw string) (*types.CoverPayload, error) {
	const op = "parse_cover"

	v.mu.RLock()
	maxBytes, allowed, verify := v.max, v.allowed, v.verify
	v.mu.RUnlock()

	raw = stripWhitespace(strings.TrimSpace(raw))
	header, encoded, ok := strings.Cut(raw, ",")
	if !ok {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "not a data URI"))
	}
	// dataurl abandons its lexer goroutine when a parameter fails to
	// unescape, so escaped or quoted parameters never reach it.
	if strings.ContainsAny(header, `%"\`) {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "escaped media type parameters are not accepted"))
	}

	meta, err := dataurl.DecodeString(header + ",")
	if err != nil {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "data URI: %v", err))
	}
	if meta.Encoding != dataurl.EncodingBase64 {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "payload is not base64 encoded"))
	}
	mimeType := normalizeMIME(meta.ContentType())
	if _, ok := allowed[mimeType]; !ok {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "image type %q not allowed", mimeType)).
			WithDetail("mime_type", mimeType)
	}

	encoded = strings.TrimRight(encoded, "=")
	if estimated := int64(len(encoded)) * 3 / 4; estimated > maxBytes {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrPayloadTooLarge, "%d bytes exceeds limit of %d", estimated, maxBytes)).
			WithDetail("max_bytes", maxBytes)
	}
	// Same goroutine caveat for the payload: only well-padded input is
	// handed over.
	if strings.Contains(encoded, "=") || len(encoded)%4 == 1 {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "base64: malformed padding"))
	}
	if rem := len(encoded) % 4; rem != 0 {
		encoded += strings.Repeat("=", 4-rem)
	}

	du, err := dataurl.DecodeString(header + "," + encoded)
	if err != nil {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "base64: %v", err))
	}

	return v.finish(op, du.Data, mimeType, maxBytes, verify)
}

// ParseBytes validates raw image bytes, taking the type from the content.
func (v *Validator) ParseBytes(data []byte) (*types.CoverPayload, error) {
	const op = "parse_cover_bytes"

	v.mu.RLock()
	maxBytes, allowed := v.max, v.allowed
	v.mu.RUnlock()

	if int64(len(data)) > maxBytes {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrPayloadTooLarge, "%d bytes exceeds limit of %d", len(data), maxBytes))
	}
	if len(data) == 0 {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "empty image"))
	}

	mimeType := normalizeMIME(mimetype.Detect(data).String())
	if _, ok := allowed[mimeType]; !ok {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "image type %q not allowed", mimeType))
	}
	return v.finish(op, data, mimeType, maxBytes, false)
}

func (v *Validator) finish(op string, data []byte, mimeType string, maxBytes int64, verify bool) (*types.CoverPayload, error) {
	if len(data) == 0 {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "empty image"))
	}
	if int64(len(data)) > maxBytes {
		return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrPayloadTooLarge, "%d bytes exceeds limit of %d", len(data), maxBytes))
	}
	if verify {
		if detected := mimetype.Detect(data); !detected.Is(mimeType) {
			return nil, mediaerrors.ValidationError(op, mediaerrors.Reasonf(mediaerrors.ErrInvalidPayload, "declared %s but content is %s", mimeType, detected.String())).
				WithDetail("detected", detected.String())
		}
	}

	payload := &types.CoverPayload{Data: data, MIMEType: mimeType}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		payload.Width = cfg.Width
		payload.Height = cfg.Height
	}
	return payload, nil
}

func normalizeMIME(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if t == "image/jpg" || t == "image/pjpeg" {
		return "image/jpeg"
	}
	return t
}

func stripWhitespace(s string) string {
	if !strings.ContainsAny(s, " \t\r\n") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

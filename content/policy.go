// Package content decides whether a payload can be forwarded to a destination.
package content

import (
	"anon-chat/domain"
	"anon-chat/errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Policy holds the forwardability rules of a transport.
type Policy struct {
	validator     *validator.Validate
	maxTextLength int
	maxMediaBytes int
	allowedMedia  []string
}

// NewPolicy builds a policy. Allowed media entries are either exact MIME
// types ("image/png") or a whole family ("image/*").
func NewPolicy(maxTextLength, maxMediaBytes int, allowedMedia []string) *Policy {
	return &Policy{
		validator:     validator.New(),
		maxTextLength: maxTextLength,
		maxMediaBytes: maxMediaBytes,
		allowedMedia: lo.Map(allowedMedia, func(item string, _ int) string {
			return strings.ToLower(strings.TrimSpace(item))
		}),
	}
}

// Check returns nil when the payload can be forwarded as is,
// an error wrapping errors.ErrUnsupportedContent otherwise.
func (p *Policy) Check(payload domain.Payload) error {
	if err := p.validator.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUnsupportedContent, err)
	}
	switch payload.Kind {
	case domain.ContentText:
		return p.checkText(payload.Text)
	case domain.ContentMedia:
		if utf8.RuneCountInString(payload.Caption) > p.maxTextLength {
			return fmt.Errorf("%w: caption longer than %d characters", errors.ErrUnsupportedContent, p.maxTextLength)
		}
		return p.checkMedia(payload.Data, payload.MIME)
	default:
		return fmt.Errorf("%w: kind %q", errors.ErrUnsupportedContent, payload.Kind)
	}
}

func (p *Policy) checkText(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", errors.ErrUnsupportedContent)
	}
	if n := utf8.RuneCountInString(text); n > p.maxTextLength {
		return fmt.Errorf("%w: text has %d characters (limit is %d)", errors.ErrUnsupportedContent, n, p.maxTextLength)
	}
	return nil
}

func (p *Policy) checkMedia(data []byte, declared string) error {
	if len(data) > p.maxMediaBytes {
		return fmt.Errorf("%w: media is %d bytes (limit is %d)", errors.ErrUnsupportedContent, len(data), p.maxMediaBytes)
	}

	detected := mimetype.Detect(data)
	if declared != "" {
		mt, _, err := mime.ParseMediaType(declared)
		if err != nil || !detected.Is(mt) {
			return fmt.Errorf("%w: declared %q but detected %q", errors.ErrUnsupportedContent, declared, detected.String())
		}
	}
	if !p.allowed(detected) {
		return fmt.Errorf("%w: media type %q", errors.ErrUnsupportedContent, detected.String())
	}
	return nil
}

// allowed walks the detected type and its parents, so that an allowed
// parent type also admits its refinements.
func (p *Policy) allowed(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		mt, _, err := mime.ParseMediaType(m.String())
		if err != nil {
			continue
		}
		family, _, _ := strings.Cut(mt, "/")
		if lo.Contains(p.allowedMedia, mt) || lo.Contains(p.allowedMedia, family+"/*") {
			return true
		}
	}
	return false
}

// Detect returns the sniffed MIME type of data.
func Detect(data []byte) string {
	return mimetype.Detect(data).String()
}

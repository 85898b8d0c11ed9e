// Package charset implements the character codec (component B): strict,
// non-lossy conversion between the handshake's negotiated character set
// and the bytes that cross the wire. Unlike many text codecs this one
// never substitutes a replacement character for an unmappable sequence
// — an unmappable byte is a protocol error, not cosmetic data loss.
package charset

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnmappable is wrapped into the error returned by Encode/Decode when
// a rune or byte sequence has no representation in the negotiated
// charset.
type ErrUnmappable struct {
	Charset string
	Input   string
}

func (e *ErrUnmappable) Error() string {
	return fmt.Sprintf("charset %s: unmappable sequence in %q", e.Charset, e.Input)
}

// Codec encodes/decodes between a negotiated character set and bytes.
// It is frozen at handshake construction time (spec §3: "charset ...
// frozen at construction") and never changes mid-handshake.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// byName mirrors the small set of charsets an rsync daemon realistically
// negotiates: UTF-8 (the default, and the only one most peers ever use)
// plus a handful of legacy single-byte sets for older peers that send
// --iconv with a non-UTF-8 remote charset.
var byName = map[string]encoding.Encoding{
	"UTF-8":        unicode.UTF8,
	"ISO-8859-1":   charmap.ISO8859_1,
	"ISO-8859-2":   charmap.ISO8859_2,
	"WINDOWS-1252": charmap.Windows1252,
}

// New returns the Codec for the named charset, defaulting to UTF-8 when
// name is empty (the common case: no --iconv negotiated).
func New(name string) (*Codec, error) {
	if name == "" {
		name = "UTF-8"
	}
	enc, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("charset: unsupported charset %q", name)
	}
	return &Codec{name: name, enc: enc}, nil
}

// Name reports the negotiated charset, for inclusion in TransferConfig.
func (c *Codec) Name() string { return c.name }

// Encode converts s to bytes in the negotiated charset. Unmappable
// characters fail loudly rather than being replaced.
func (c *Codec) Encode(s string) ([]byte, error) {
	if c.enc == unicode.UTF8 && !utf8.ValidString(s) {
		return nil, &ErrUnmappable{Charset: c.name, Input: s}
	}
	out, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, &ErrUnmappable{Charset: c.name, Input: s}
	}
	return out, nil
}

// Decode converts bytes in the negotiated charset to a string.
// Unmappable byte sequences fail loudly rather than being replaced.
func (c *Codec) Decode(b []byte) (string, error) {
	// The x/text UTF-8 decoder substitutes U+FFFD for invalid input
	// instead of failing, so validate up front.
	if c.enc == unicode.UTF8 && !utf8.Valid(b) {
		return "", &ErrUnmappable{Charset: c.name, Input: string(b)}
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", &ErrUnmappable{Charset: c.name, Input: string(b)}
	}
	return string(out), nil
}

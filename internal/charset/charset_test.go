package charset_test

import (
	"testing"

	"github.com/gokrazy/rsync-handshake/internal/charset"
)

func TestRoundtripUTF8(t *testing.T) {
	c, err := charset.New("")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Name(), "UTF-8"; got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
	for _, s := range []string{"", "src/a", "héllo", "日本語", "."} {
		enc, err := c.Encode(s)
		if err != nil {
			t.Fatalf("Encode(%q): %v", s, err)
		}
		dec, err := c.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q): %v", s, err)
		}
		if dec != s {
			t.Errorf("roundtrip(%q) = %q", s, dec)
		}
	}
}

func TestEncodeUnmappable(t *testing.T) {
	c, err := charset.New("ISO-8859-1")
	if err != nil {
		t.Fatal(err)
	}
	// U+65E5 ("日") has no representation in ISO-8859-1.
	if _, err := c.Encode("日"); err == nil {
		t.Fatal("expected error encoding unmappable rune, got nil")
	}
}

func TestUnsupportedCharset(t *testing.T) {
	if _, err := charset.New("BOGUS"); err == nil {
		t.Fatal("expected error for unsupported charset")
	}
}

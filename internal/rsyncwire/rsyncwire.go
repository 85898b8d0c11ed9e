// Package rsyncwire implements the buffered, byte-oriented framing that
// every later stage of the rsync daemon handshake reads and writes
// through: single bytes, little-endian int32s, LF-terminated lines, and
// NUL-terminated byte strings bounded by rsync.MaxBufSize.
package rsyncwire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gokrazy/rsync-handshake"
)

// ErrOversizeArgument is returned by ReadStringUntilNullOrEOF when a
// single NUL-terminated string would exceed rsync.MaxBufSize.
var ErrOversizeArgument = errors.New("rsyncwire: argument exceeds maximum buffer size")

// Conn wraps the handshake's read and write sides. Reader is buffered;
// Writer is whatever the caller assigned. The handshake writes to it
// directly and never swaps in a multiplexing writer.
type Conn struct {
	Reader *bufio.Reader
	Writer io.Writer
}

// NewConn wraps r/w with a buffered reader, ready for handshake use.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		Reader: bufio.NewReaderSize(r, 32*1024),
		Writer: w,
	}
}

// GetByte reads a single byte, translating a clean peer close into
// io.EOF so callers can distinguish "connection closed" from other I/O
// failures.
func (c *Conn) GetByte() (byte, error) {
	b, err := c.Reader.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("rsyncwire: read byte: %w", err)
	}
	return b, nil
}

func (c *Conn) PutByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

func (c *Conn) PutBytes(b []byte) error {
	_, err := c.Writer.Write(b)
	return err
}

// GetInt32LE reads a little-endian int32. The handshake itself does
// not call it: the compat-flags byte and the checksum seed are written
// with PutByte and PutBytes.
func (c *Conn) GetInt32LE() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("rsyncwire: read int32: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (c *Conn) PutInt32LE(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

// ReadLine reads up to and including '\n', returning the bytes before
// it (LF consumed, not returned). Used for the version greeting, module
// name, and AUTHREQ response. The line length is not bounded by
// rsync.MaxBufSize.
func (c *Conn) ReadLine() ([]byte, error) {
	line, err := c.Reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("rsyncwire: read line: %w", err)
	}
	return line[:len(line)-1], nil
}

// ReadStringUntilNullOrEOF accumulates bytes up to (and excluding) a NUL
// byte. It tolerates EOF in place of the NUL — matching upstream
// rsync's lenient argument-reception behavior (see spec's open
// question in §9) — returning whatever was accumulated so far along
// with a flag telling the caller whether EOF (rather than NUL) ended
// the read. A single argument that grows past rsync.MaxBufSize aborts
// with ErrOversizeArgument rather than continuing to buffer.
func (c *Conn) ReadStringUntilNullOrEOF() (s []byte, eof bool, err error) {
	var buf []byte
	for {
		b, err := c.Reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				return buf, true, nil
			}
			return nil, false, fmt.Errorf("rsyncwire: read argument: %w", err)
		}
		if b == 0 {
			return buf, false, nil
		}
		buf = append(buf, b)
		if len(buf) > rsync.MaxBufSize {
			return nil, false, ErrOversizeArgument
		}
	}
}

// Flush pushes any buffered writes. The handshake calls this whenever a
// subsequent read depends on a write already having reached the peer
// (e.g. right after sending the AUTHREQ challenge).
func (c *Conn) Flush() error {
	if f, ok := c.Writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

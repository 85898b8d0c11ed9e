// Package handshake implements the rsync daemon handshake state
// machine (component F): the only component that reads or writes the
// wire during the handshake. It orchestrates the framed byte channel
// (rsyncwire), the character codec (charset), the argument parser
// (rsyncopts), the module registry (modules), and the auth context
// (auth) through the sequence in the protocol's step-by-step
// handshake, producing the frozen TransferConfig the transfer phase
// consumes on success.
package handshake

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gokrazy/rsync-handshake"
	"github.com/gokrazy/rsync-handshake/internal/auth"
	"github.com/gokrazy/rsync-handshake/internal/charset"
	"github.com/gokrazy/rsync-handshake/internal/log"
	"github.com/gokrazy/rsync-handshake/internal/modules"
	"github.com/gokrazy/rsync-handshake/internal/rsyncopts"
	"github.com/gokrazy/rsync-handshake/internal/rsyncwire"
)

// Handler drives one connection's handshake to completion. It is
// constructed once per daemon and reused across connections: the
// module registry is read-only from the handshake's perspective and
// may be shared (spec §5).
type Handler struct {
	Registry *modules.Registry
	Codec    *charset.Codec
	Logger   log.Logger

	// challengeFunc generates the per-connection auth challenge;
	// overridable in tests so auth scenarios can be scripted against a
	// known value instead of crypto/rand's output.
	challengeFunc func() (string, error)
}

// NewHandler returns a Handler with sane defaults (UTF-8 codec,
// discard logger) for fields left zero.
func NewHandler(registry *modules.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{Registry: registry}
	for _, o := range opts {
		o(h)
	}
	if h.Codec == nil {
		h.Codec, _ = charset.New("")
	}
	if h.Logger == nil {
		h.Logger = log.Discard
	}
	if h.challengeFunc == nil {
		h.challengeFunc = auth.NewChallenge
	}
	return h
}

// HandlerOption configures a Handler at construction time.
type HandlerOption func(*Handler)

func WithCodec(c *charset.Codec) HandlerOption { return func(h *Handler) { h.Codec = c } }
func WithLogger(l log.Logger) HandlerOption    { return func(h *Handler) { h.Logger = l } }

// WithChallengeFunc overrides challenge generation. Exposed mainly
// for tests that need to script an auth exchange against a known
// challenge; production callers should leave this unset and get
// crypto/rand-backed challenges.
func WithChallengeFunc(f func() (string, error)) HandlerOption {
	return func(h *Handler) { h.challengeFunc = f }
}

// Handle runs one full handshake over c, returning the resulting
// TransferConfig (with Status set) and, for Io-kind failures that
// could not be reported to the peer, a non-nil error as well. For
// every other outcome after the version greeting — including
// ProtocolError, SecurityError, and ModuleNotFound — the error has
// already been written to the peer as an "@ERROR:" line (when the
// channel allowed it) and is also returned so the caller can log it.
// A failed version greeting is not reported to the peer. TransferConfig.Status
// distinguishes "reported to peer" (Error/Exit) from "ready for
// transfer" (Ok). connID is an opaque per-connection correlation
// string included in log lines so concurrent connections can be told
// apart; callers with no need for correlation may pass "".
func (h *Handler) Handle(c *rsyncwire.Conn, remoteAddr net.Addr, connID string) (result *TransferConfig, err error) {
	tc := &TransferConfig{Charset: h.Codec.Name()}
	defer func() {
		// Unreportable failures return early without tc; hand it back
		// with Status=Error all the same.
		if result == nil {
			tc.Status = StatusError
			result = tc
		}
	}()

	version, err := h.exchangeVersion(c)
	if err != nil {
		// The greeting itself failed: nothing reportable, close silently.
		return nil, err
	}
	tc.ProtocolVersion = version

	moduleName, err := h.readModuleName(c)
	if err != nil {
		return nil, err
	}
	if moduleName == "" {
		if err := h.sendListing(c); err != nil {
			return nil, err
		}
		tc.Status = StatusExit
		return tc, nil
	}
	h.Logger.Printf("[%s] client %v requested module %q", connID, remoteAddr, moduleName)

	mod, herr := h.Registry.Get(moduleName)
	if herr != nil {
		hsErr := newError(ModuleNotFound, "Unknown module %q", moduleName)
		return h.fail(c, tc, hsErr)
	}

	if err := modules.CheckACL(mod.ACL, remoteAddr); err != nil {
		// Deliberately the same message shape as ModuleNotFound: a
		// denied peer must not learn the module exists (§L.2).
		hsErr := newError(ModuleNotFound, "Unknown module %q", moduleName)
		return h.fail(c, tc, hsErr)
	}

	if mod.Restricted {
		ok, aerr := h.authenticate(c, mod)
		if aerr != nil {
			return nil, aerr
		}
		if !ok {
			hsErr := newError(SecurityError, "auth failed")
			return h.fail(c, tc, hsErr)
		}
	}

	if err := h.sendOK(c); err != nil {
		return nil, err
	}

	argv, herr2 := h.readArguments(c)
	if herr2 != nil {
		return h.fail(c, tc, herr2)
	}

	parsed, perr := rsyncopts.Parse(argv)
	if perr != nil {
		hsErr := wrapError(ProtocolError, perr, "parsing arguments")
		return h.fail(c, tc, hsErr)
	}

	if err := applyParsedArgs(tc, mod, parsed); err != nil {
		return h.fail(c, tc, err)
	}

	if err := h.writeCompatFlags(c, tc); err != nil {
		return nil, err
	}

	seed, err := newChecksumSeed()
	if err != nil {
		return nil, wrapError(Io, err, "generating checksum seed")
	}
	tc.ChecksumSeed = seed
	if err := h.writeSeed(c, seed); err != nil {
		return nil, err
	}

	if err := c.Flush(); err != nil {
		return nil, wrapError(Io, err, "flushing final handshake writes")
	}

	tc.Status = StatusOk
	return tc, nil
}

// fail reports hsErr to the peer (when it's a kind the policy allows
// echoing, which by this point in the handshake is always true — see
// spec §7) and returns tc with Status=Error alongside the error, for
// the caller to log.
func (h *Handler) fail(c *rsyncwire.Conn, tc *TransferConfig, hsErr *Error) (*TransferConfig, error) {
	msg := fmt.Sprintf("@ERROR: %s\n", hsErr.wireMessage())
	if werr := c.PutBytes([]byte(msg)); werr == nil {
		c.Flush()
	}
	tc.Status = StatusError
	return tc, hsErr
}

// exchangeVersion implements step 1: both sides send "@RSYNCD:
// <maj>.<min>\n"; the agreed version is the lesser of the two.
func (h *Handler) exchangeVersion(c *rsyncwire.Conn) (int, error) {
	if err := c.PutBytes([]byte(fmt.Sprintf("@RSYNCD: %d.0\n", rsync.ProtocolVersion))); err != nil {
		return 0, wrapError(Io, err, "sending version greeting")
	}
	if err := c.Flush(); err != nil {
		return 0, wrapError(Io, err, "flushing version greeting")
	}
	line, err := c.ReadLine()
	if err != nil {
		return 0, wrapError(Io, err, "reading client version greeting")
	}
	peerMajor, err := parseGreeting(string(line))
	if err != nil {
		return 0, wrapError(ProtocolError, err, "invalid client greeting %q", line)
	}
	agreed := min(rsync.ProtocolVersion, peerMajor)
	if agreed < rsync.MinProtocolVersion {
		return 0, newError(ProtocolError, "protocol version %d below minimum %d", agreed, rsync.MinProtocolVersion)
	}
	return agreed, nil
}

func parseGreeting(line string) (int, error) {
	const prefix = "@RSYNCD: "
	if !strings.HasPrefix(line, prefix) {
		return 0, fmt.Errorf("missing %q prefix", prefix)
	}
	rest := strings.TrimPrefix(line, prefix)
	major := rest
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		major = rest[:idx]
	}
	v, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("non-numeric version %q", major)
	}
	return v, nil
}

// readModuleName implements step 2's read-side: a single line,
// module name or empty.
func (h *Handler) readModuleName(c *rsyncwire.Conn) (string, error) {
	line, err := c.ReadLine()
	if err != nil {
		return "", wrapError(Io, err, "reading module name")
	}
	return strings.TrimSpace(string(line)), nil
}

// sendListing implements step 2's listing-mode write side, using
// Registry.List for the per-module lines so the wire format has one
// implementation, not two.
func (h *Handler) sendListing(c *rsyncwire.Conn) error {
	if err := c.PutBytes([]byte(h.Registry.List())); err != nil {
		return wrapError(Io, err, "writing module listing")
	}
	if err := c.PutBytes([]byte("@RSYNCD: EXIT\n")); err != nil {
		return wrapError(Io, err, "writing listing terminator")
	}
	return c.Flush()
}

// sendOK implements step 5.
func (h *Handler) sendOK(c *rsyncwire.Conn) error {
	if err := c.PutBytes([]byte("@RSYNCD: OK\n")); err != nil {
		return wrapError(Io, err, "sending OK")
	}
	return c.Flush()
}

// authenticate implements step 4: challenge, flush, read "<user>
// <response>", verify constant-time. It returns (true, nil) on
// success, (false, nil) on a clean auth failure (reported by the
// caller as SecurityError), and a non-nil error only for Io failures.
func (h *Handler) authenticate(c *rsyncwire.Conn, mod *modules.Module) (bool, error) {
	challenge, err := h.challengeFunc()
	if err != nil {
		return false, wrapError(Io, err, "generating auth challenge")
	}
	if err := c.PutBytes([]byte(fmt.Sprintf("@RSYNCD: AUTHREQ %s\n", challenge))); err != nil {
		return false, wrapError(Io, err, "sending AUTHREQ")
	}
	if err := c.Flush(); err != nil {
		return false, wrapError(Io, err, "flushing AUTHREQ")
	}
	line, err := c.ReadLine()
	if err != nil {
		return false, wrapError(Io, err, "reading auth response")
	}
	user, response, ok := strings.Cut(strings.TrimSpace(string(line)), " ")
	if !ok {
		return false, nil
	}
	return mod.Authenticate(user, challenge, response), nil
}

// readArguments implements step 6: repeated NUL-terminated strings,
// decoded with the codec, until an empty string or EOF.
func (h *Handler) readArguments(c *rsyncwire.Conn) ([]string, *Error) {
	var argv []string
	for {
		raw, eof, err := c.ReadStringUntilNullOrEOF()
		if err != nil {
			return nil, wrapError(ProtocolError, err, "reading argument")
		}
		if len(raw) > 0 {
			s, derr := h.Codec.Decode(raw)
			if derr != nil {
				return nil, wrapError(CodecError, derr, "decoding argument")
			}
			argv = append(argv, s)
		}
		if eof || len(raw) == 0 {
			break
		}
	}
	return argv, nil
}

// writeCompatFlags implements step 8.
func (h *Handler) writeCompatFlags(c *rsyncwire.Conn, tc *TransferConfig) error {
	var flags byte
	if tc.SafeFileList {
		flags |= rsync.CF_SAFE_FLIST
	}
	if tc.IncrementalRecurse {
		flags |= rsync.CF_INC_RECURSE
	}
	if err := c.PutByte(flags); err != nil {
		return wrapError(Io, err, "writing compatibility flags")
	}
	return nil
}

// writeSeed implements step 9: the 4 seed bytes, written exactly as
// generated (see seed.go for the endianness rationale).
func (h *Handler) writeSeed(c *rsyncwire.Conn, seed [4]byte) error {
	if err := c.PutBytes(seed[:]); err != nil {
		return wrapError(Io, err, "writing checksum seed")
	}
	return nil
}

package handshake_test

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gokrazy/rsync-handshake/internal/auth"
	"github.com/gokrazy/rsync-handshake/internal/handshake"
	"github.com/gokrazy/rsync-handshake/internal/modules"
	"github.com/gokrazy/rsync-handshake/internal/rsyncwire"
)

// clientAddr is a stand-in remote address with no ACL restrictions.
var clientAddr = &net.TCPAddr{IP: net.ParseIP("203.0.113.7"), Port: 4321}

// script builds the bytes a client sends after connecting: a version
// greeting, a module name line, then zero or more already-NUL-joined
// argument sections (each terminated by an extra empty string).
func script(moduleLine string, rest ...string) []byte {
	var b bytes.Buffer
	b.WriteString("@RSYNCD: 29.0\n")
	b.WriteString(moduleLine + "\n")
	for _, s := range rest {
		b.WriteString(s)
	}
	return b.Bytes()
}

func nulJoin(args ...string) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte(0)
	}
	b.WriteByte(0) // empty terminator
	return b.String()
}

func newConn(clientBytes []byte) (*rsyncwire.Conn, *bytes.Buffer) {
	var out bytes.Buffer
	return rsyncwire.NewConn(bytes.NewReader(clientBytes), &out), &out
}

func TestListing(t *testing.T) {
	reg, err := modules.NewRegistry([]modules.Module{
		{Name: "data", Comment: "test data", Path: t.TempDir()},
		{Name: "backup", Path: t.TempDir()},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := handshake.NewHandler(reg)
	c, out := newConn(script(""))
	tc, err := h.Handle(c, clientAddr, "test")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Status != handshake.StatusExit {
		t.Fatalf("Status = %v, want Exit", tc.Status)
	}
	got := out.String()
	if !strings.Contains(got, "data") || !strings.Contains(got, "test data") {
		t.Fatalf("listing output missing module: %q", got)
	}
	if !strings.HasSuffix(got, "@RSYNCD: EXIT\n") {
		t.Fatalf("listing output = %q, want suffix @RSYNCD: EXIT", got)
	}
}

func TestSenderRecursiveSafeList(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"src/a", "src/b"} {
		if err := os.WriteFile(filepath.Join(root, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reg, err := modules.NewRegistry([]modules.Module{{Name: "data", Path: root}})
	if err != nil {
		t.Fatal(err)
	}
	h := handshake.NewHandler(reg)
	args := nulJoin("--server", "--sender", "-r", "-e.if", ".", "src/a", "src/b")
	c, out := newConn(script("data", args))
	tc, err := h.Handle(c, clientAddr, "test")
	if err != nil {
		t.Fatal(err)
	}
	if tc.Status != handshake.StatusOk {
		t.Fatalf("Status = %v, want Ok", tc.Status)
	}
	if tc.Role != handshake.Sender {
		t.Fatalf("Role = %v, want Sender", tc.Role)
	}
	if tc.FileSelection != handshake.Recurse || !tc.IncrementalRecurse || !tc.SafeFileList {
		t.Fatalf("tc = %+v, want Recurse+IncrementalRecurse+SafeFileList", tc)
	}
	wantSrc := []string{filepath.Join(root, "src/a"), filepath.Join(root, "src/b")}
	if len(tc.SourceFiles) != 2 || tc.SourceFiles[0] != wantSrc[0] || tc.SourceFiles[1] != wantSrc[1] {
		t.Fatalf("SourceFiles = %v, want %v", tc.SourceFiles, wantSrc)
	}

	written := out.Bytes()
	idx := bytes.Index(written, []byte("@RSYNCD: OK\n"))
	if idx < 0 {
		t.Fatalf("output missing OK line: %q", written)
	}
	after := written[idx+len("@RSYNCD: OK\n"):]
	if len(after) < 5 {
		t.Fatalf("expected compat flag byte + 4 seed bytes after OK, got %d bytes", len(after))
	}
	if got, want := after[0], byte(0x05); got != want {
		t.Fatalf("compat flags byte = 0x%02x, want 0x%02x", got, want)
	}
	if len(after[1:]) != 4 {
		t.Fatalf("seed length = %d, want 4", len(after[1:]))
	}
}

func TestReceiverModuleNotWritable(t *testing.T) {
	root := t.TempDir()
	reg, err := modules.NewRegistry([]modules.Module{{Name: "ro", Path: root, Writable: false}})
	if err != nil {
		t.Fatal(err)
	}
	h := handshake.NewHandler(reg)
	args := nulJoin("--server", "-e.i", ".", "dest")
	c, out := newConn(script("ro", args))
	tc, err := h.Handle(c, clientAddr, "test")
	if err == nil {
		t.Fatal("expected error for write to read-only module")
	}
	if tc.Status != handshake.StatusError {
		t.Fatalf("Status = %v, want Error", tc.Status)
	}
	if !strings.Contains(out.String(), "@ERROR:") || !strings.Contains(out.String(), "not writable") {
		t.Fatalf("output = %q, want an @ERROR mentioning not writable", out.String())
	}
}

func TestSenderWildcardRejected(t *testing.T) {
	root := t.TempDir()
	reg, err := modules.NewRegistry([]modules.Module{{Name: "data", Path: root}})
	if err != nil {
		t.Fatal(err)
	}
	h := handshake.NewHandler(reg)
	args := nulJoin("--server", "--sender", "-e.if", ".", "src/*.txt")
	c, out := newConn(script("data", args))
	tc, err := h.Handle(c, clientAddr, "test")
	if err == nil {
		t.Fatal("expected error for wildcard source path")
	}
	if tc.Status != handshake.StatusError {
		t.Fatalf("Status = %v, want Error", tc.Status)
	}
	if !strings.Contains(out.String(), "wildcards are not supported") {
		t.Fatalf("output = %q, want a wildcard-rejected message", out.String())
	}
}

func TestAuthSuccessAndFailure(t *testing.T) {
	const challenge = "fixedchallenge"
	derive := func(secret, ch string) string { return secret + ":" + ch }
	verifier := auth.NewVerifier(func(user string) (string, bool) {
		if user != "alice" {
			return "", false
		}
		return "R", true
	}, derive)

	root := t.TempDir()
	reg, err := modules.NewRegistry([]modules.Module{
		{Name: "secure", Path: root, Writable: false, Restricted: true, Authenticate: verifier},
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("success", func(t *testing.T) {
		h := handshake.NewHandler(reg, handshake.WithChallengeFunc(func() (string, error) { return challenge, nil }))
		response := derive("R", challenge)
		args := nulJoin("--server", "--sender", "-e.if", ".", "anything")
		var script bytes.Buffer
		script.WriteString("@RSYNCD: 29.0\n")
		script.WriteString("secure\n")
		script.WriteString(fmt.Sprintf("alice %s\n", response))
		script.WriteString(args)
		c, out := newConn(script.Bytes())
		tc, err := h.Handle(c, clientAddr, "test")
		if err != nil {
			t.Fatalf("unexpected error: %v (output %q)", err, out.String())
		}
		if tc.Status != handshake.StatusOk {
			t.Fatalf("Status = %v, want Ok (output %q)", tc.Status, out.String())
		}
	})

	t.Run("failure", func(t *testing.T) {
		h := handshake.NewHandler(reg, handshake.WithChallengeFunc(func() (string, error) { return challenge, nil }))
		var script bytes.Buffer
		script.WriteString("@RSYNCD: 29.0\n")
		script.WriteString("secure\n")
		script.WriteString("alice WRONG\n")
		c, out := newConn(script.Bytes())
		tc, err := h.Handle(c, clientAddr, "test")
		if err == nil {
			t.Fatal("expected error for wrong auth response")
		}
		if tc.Status != handshake.StatusError {
			t.Fatalf("Status = %v, want Error", tc.Status)
		}
		if !strings.Contains(out.String(), "@ERROR:") {
			t.Fatalf("output = %q, want an @ERROR line", out.String())
		}
		if strings.Contains(out.String(), "WRONG") || strings.Contains(out.String(), derive("R", challenge)) {
			t.Fatalf("output leaked response or secret: %q", out.String())
		}
	})
}

func TestModuleNotFoundAndACLDeniedLookTheSame(t *testing.T) {
	root := t.TempDir()
	reg, err := modules.NewRegistry([]modules.Module{
		{Name: "denied", Path: root, ACL: []string{"deny all"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := handshake.NewHandler(reg)

	c1, out1 := newConn(script("nope"))
	_, err1 := h.Handle(c1, clientAddr, "test")
	c2, out2 := newConn(script("denied"))
	_, err2 := h.Handle(c2, clientAddr, "test")

	if err1 == nil || err2 == nil {
		t.Fatal("expected both lookups to fail")
	}
	// Both must render as "Unknown module" so a scan can't tell "absent"
	// from "present but ACL-denied".
	for _, out := range []string{out1.String(), out2.String()} {
		if !strings.Contains(out, "Unknown module") {
			t.Fatalf("output = %q, want generic Unknown module message", out)
		}
	}
}

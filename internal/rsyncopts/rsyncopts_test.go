package rsyncopts_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gokrazy/rsync-handshake/internal/rsyncopts"
)

func TestServerSenderRecursive(t *testing.T) {
	c, err := rsyncopts.Parse([]string{"--server", "--sender", "-r", "-e.if", ".", "src/a", "src/b"})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Server || !c.Sender {
		t.Fatalf("got %+v, want Server/Sender both true", c)
	}
	if c.FileSelection != rsyncopts.Recurse {
		t.Fatalf("FileSelection = %v, want Recurse", c.FileSelection)
	}
	if !c.IncrementalRecurse || !c.SafeFileList {
		t.Fatalf("capabilities not decoded: %+v", c)
	}
	if got, want := c.Args, []string{".", "src/a", "src/b"}; !equalStrings(got, want) {
		t.Fatalf("Args = %v, want %v", got, want)
	}
}

func TestFullConfigShape(t *testing.T) {
	got, err := rsyncopts.Parse([]string{"--server", "-r", "-e.if", "--delete", "-ltop", ".", "dest"})
	if err != nil {
		t.Fatal(err)
	}
	want := &rsyncopts.Config{
		Server:              true,
		FileSelection:       rsyncopts.Recurse,
		IncrementalRecurse:  true,
		SafeFileList:        true,
		Delete:              true,
		PreserveLinks:       true,
		PreserveTimes:       true,
		PreserveUser:        true,
		PreservePermissions: true,
		RemoteShell:         ".if",
		Args:                []string{".", "dest"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingRequiredServer(t *testing.T) {
	_, err := rsyncopts.Parse([]string{"--sender", "-e.if", "."})
	if err == nil {
		t.Fatal("expected error for missing required --server")
	}
	var missing *rsyncopts.ErrMissingRequired
	if !errorsAs(err, &missing) {
		t.Fatalf("err = %v, want *ErrMissingRequired", err)
	}
	if missing.Long != "server" {
		t.Fatalf("ErrMissingRequired.Long = %q, want %q", missing.Long, "server")
	}
}

func TestMissingRequiredRsh(t *testing.T) {
	_, err := rsyncopts.Parse([]string{"--server", "--sender", "."})
	if err == nil {
		t.Fatal("expected error for missing required --rsh")
	}
	var missing *rsyncopts.ErrMissingRequired
	if !errorsAs(err, &missing) {
		t.Fatalf("err = %v, want *ErrMissingRequired", err)
	}
	if missing.Long != "rsh" {
		t.Fatalf("ErrMissingRequired.Long = %q, want %q", missing.Long, "rsh")
	}
}

func TestNoRAfterRWins(t *testing.T) {
	c, err := rsyncopts.Parse([]string{"--server", "-e.if", "-r", "--no-r"})
	if err != nil {
		t.Fatal(err)
	}
	if c.FileSelection != rsyncopts.Exact {
		t.Fatalf("FileSelection = %v, want Exact", c.FileSelection)
	}
}

func TestRAfterNoRWins(t *testing.T) {
	c, err := rsyncopts.Parse([]string{"--server", "-e.if", "--no-r", "-r"})
	if err != nil {
		t.Fatal(err)
	}
	if c.FileSelection != rsyncopts.Recurse {
		t.Fatalf("FileSelection = %v, want Recurse", c.FileSelection)
	}
}

func TestVerboseRepeats(t *testing.T) {
	c, err := rsyncopts.Parse([]string{"--server", "-e.if", "-v", "-v", "-v"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Verbosity != 3 {
		t.Fatalf("Verbosity = %d, want 3", c.Verbosity)
	}
}

func TestShortOptionCluster(t *testing.T) {
	c, err := rsyncopts.Parse([]string{"--server", "-e.if", "-logtprD"})
	if err != nil {
		t.Fatal(err)
	}
	if !c.PreserveLinks || !c.PreserveUser || !c.PreserveGroup || !c.PreserveTimes ||
		!c.PreservePermissions || c.FileSelection != rsyncopts.Recurse || !c.PreserveDevices || !c.PreserveSpecials {
		t.Fatalf("short option cluster not fully applied: %+v", c)
	}
}

func TestUnknownLongOption(t *testing.T) {
	if _, err := rsyncopts.Parse([]string{"--server", "--bogus-option"}); err == nil {
		t.Fatal("expected error for unknown long option")
	}
}

func TestUnknownCapabilityLetter(t *testing.T) {
	if _, err := rsyncopts.Parse([]string{"--server", "-e.z"}); err == nil {
		t.Fatal("expected error for unknown capability letter")
	}
}

func TestCapabilityTokenMustStartWithDot(t *testing.T) {
	if _, err := rsyncopts.Parse([]string{"--server", "-ei"}); err == nil {
		t.Fatal("expected error for capability token missing leading dot")
	}
}

func TestDoubleDashStopsOptionParsing(t *testing.T) {
	c, err := rsyncopts.Parse([]string{"--server", "-e.if", "-r", "--", "-not-an-option"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Args, []string{"-not-an-option"}; !equalStrings(got, want) {
		t.Fatalf("Args = %v, want %v", got, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func errorsAs(err error, target **rsyncopts.ErrMissingRequired) bool {
	e, ok := err.(*rsyncopts.ErrMissingRequired)
	if !ok {
		return false
	}
	*target = e
	return true
}

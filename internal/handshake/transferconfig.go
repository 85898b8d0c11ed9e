package handshake

import (
	"github.com/gokrazy/rsync-handshake/internal/modules"
	"github.com/gokrazy/rsync-handshake/internal/rsyncopts"
)

// Role mirrors the handshake's role ∈ {Sender, Receiver}.
type Role int

const (
	Receiver Role = iota
	Sender
)

func (r Role) String() string {
	if r == Sender {
		return "Sender"
	}
	return "Receiver"
}

// FileSelection re-exports rsyncopts' tri-state so callers of this
// package never need to import rsyncopts themselves.
type FileSelection = rsyncopts.FileSelection

const (
	Exact        = rsyncopts.Exact
	TransferDirs = rsyncopts.TransferDirs
	Recurse      = rsyncopts.Recurse
)

// Status is the terminal (or intermediate, for AuthReq) signal sent
// to the peer — distinct from Role (spec §3).
type Status int

const (
	StatusOk Status = iota
	StatusExit
	StatusError
	StatusAuthReq
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusExit:
		return "Exit"
	case StatusError:
		return "Error"
	case StatusAuthReq:
		return "AuthReq"
	default:
		return "Unknown"
	}
}

// TransferConfig is the handshake's sole output on success, immutable
// once returned. It is also returned (with Status set to Exit or
// Error) on a listing response or a failure, so the caller always
// gets a value back to decide whether to close or report.
type TransferConfig struct {
	Status Status

	Role               Role
	FileSelection      FileSelection
	IncrementalRecurse bool

	PreserveDevices     bool
	PreserveSpecials    bool
	PreserveLinks       bool
	PreservePermissions bool
	PreserveTimes       bool
	PreserveUser        bool
	PreserveGroup       bool
	NumericIDs          bool
	IgnoreTimes         bool
	Delete              bool

	SafeFileList bool
	Verbosity    int

	Module *modules.Module

	// SourceFiles holds module-rooted, resolved paths (Sender role
	// only; empty otherwise).
	SourceFiles []string

	// ReceiverDestination holds the single, resolved, normalized
	// destination path (Receiver role only).
	ReceiverDestination string

	// ChecksumSeed is the 4-byte per-session nonce, stored in the byte
	// order it will be written to the wire (big-endian reinterpreted;
	// see seed.go).
	ChecksumSeed [4]byte

	Charset         string
	ProtocolVersion int
}

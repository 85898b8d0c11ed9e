// Package rsync holds wire-level constants shared by every layer of the
// rsync daemon handshake: the minimum protocol version this server
// speaks, the compatibility-flag bit assignments exchanged right before
// the checksum seed, and the hard cap on a single NUL-terminated
// argument during argument reception.
//
// These values are normative (see rsync/rsync.h upstream) and must not
// drift from what real rsync and openrsync peers expect.
package rsync

const (
	// ProtocolVersion is the highest protocol version this server
	// offers during the version exchange (§4.6 step 1). The actual
	// negotiated version is the lesser of this and the peer's.
	ProtocolVersion = 29

	// MinProtocolVersion is the oldest protocol version this server
	// accepts after negotiation. Versions predate the safe-file-list
	// capability and are refused (see spec Non-goals).
	MinProtocolVersion = 27
)

// Compatibility flag bits, exchanged as a single byte right after
// "@RSYNCD: OK" / argument parsing and before the checksum seed.
// Bit values match upstream rsync (compat.c) exactly: peers decode this
// byte independently of any higher-level negotiation.
const (
	CF_INC_RECURSE   = 1 << 0 // 0x01
	CF_SYMLINK_TIMES = 1 << 1 // 0x02 (reserved; always 0 here)
	CF_SAFE_FLIST    = 1 << 2 // 0x04
)

// MaxBufSize bounds a single NUL-terminated argument read during
// argument reception, so a hostile or confused peer cannot make the
// daemon buffer one argument without limit. Lines read with
// rsyncwire.Conn.ReadLine are not bounded by it.
const MaxBufSize = 64 * 1024

// ChecksumSeedLen is the fixed wire length of the per-session checksum
// seed (§3 invariant 5).
const ChecksumSeedLen = 4

package handshake

import "crypto/rand"

// newChecksumSeed generates a fresh per-session seed: 4 random bytes,
// the little-endian byte image of some 32-bit value (spec §9
// "Checksum seed endianness"). Those exact 4 bytes are later written
// to the wire unchanged (see writeSeed in handshake.go) — the spec's
// "reinterpreted big-endian" wording describes how a peer that reads
// them as a big-endian int32 will see a different numeric value than
// the one this process generated them as, not that any conversion
// happens here. Writing the bytes as-is, with no endian swap, is what
// preserves that observable quirk.
func newChecksumSeed() ([4]byte, error) {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, err
	}
	return seed, nil
}

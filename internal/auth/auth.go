// Package auth implements the restricted-module challenge/response
// authentication used by component E of the handshake: a random
// challenge is sent with AUTHREQ, the peer replies with a username and
// an MD4-less token the caller verifies in constant time. Neither the
// challenge nor the secret is ever returned in an error, and nothing
// here logs above the handshake's "fine" level (see §7): a failed
// auth attempt only ever reports "auth failed", never why.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// ChallengeLen is the number of random bytes generated per connection,
// base64-encoded onto the wire (the stdlib has no ecosystem-library
// replacement more idiomatic than crypto/rand for this: the value
// never leaves the process except as an opaque, already-random token).
const ChallengeLen = 16

// NewChallenge returns a fresh, base64-encoded random challenge
// suitable for embedding in an "@RSYNCD: AUTHREQ <challenge>" line. It
// contains no newline or NUL so it is always safe to place on a single
// wire line.
func NewChallenge() (string, error) {
	buf := make([]byte, ChallengeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Verifier checks a peer's claimed response against the expected
// token for a given user, without ever revealing the secret that
// produced it.
type Verifier func(user, challenge, response string) bool

// NewVerifier returns a Verifier backed by a lookup of per-user
// secrets and a response function (the token derivation itself — e.g.
// a keyed hash of challenge+secret — is supplied by the caller so this
// package stays agnostic of which digest the registry configured).
func NewVerifier(secretFor func(user string) (string, bool), derive func(secret, challenge string) string) Verifier {
	return func(user, challenge, response string) bool {
		secret, ok := secretFor(user)
		if !ok {
			// Still derive against a dummy secret so a valid-vs-unknown
			// username doesn't leak through response-time differences.
			derive("", challenge)
			return false
		}
		want := derive(secret, challenge)
		return subtle.ConstantTimeCompare([]byte(want), []byte(response)) == 1
	}
}

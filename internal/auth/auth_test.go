package auth_test

import (
	"strings"
	"testing"

	"github.com/gokrazy/rsync-handshake/internal/auth"
)

func derive(secret, challenge string) string {
	return secret + ":" + challenge
}

func TestNewChallengeShapeAndUniqueness(t *testing.T) {
	a, err := auth.NewChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(a, "\n\x00") {
		t.Fatalf("challenge contains newline or NUL: %q", a)
	}
	b, err := auth.NewChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two challenges collided: %q", a)
	}
}

func TestVerifierAcceptsCorrectResponse(t *testing.T) {
	secrets := map[string]string{"alice": "hunter2"}
	v := auth.NewVerifier(func(user string) (string, bool) {
		s, ok := secrets[user]
		return s, ok
	}, derive)

	if !v("alice", "chal123", derive("hunter2", "chal123")) {
		t.Fatal("expected valid response to verify")
	}
}

func TestVerifierRejectsWrongResponse(t *testing.T) {
	secrets := map[string]string{"alice": "hunter2"}
	v := auth.NewVerifier(func(user string) (string, bool) {
		s, ok := secrets[user]
		return s, ok
	}, derive)

	if v("alice", "chal123", derive("wrongsecret", "chal123")) {
		t.Fatal("expected wrong response to be rejected")
	}
}

func TestVerifierRejectsUnknownUser(t *testing.T) {
	v := auth.NewVerifier(func(user string) (string, bool) {
		return "", false
	}, derive)

	if v("ghost", "chal123", derive("anything", "chal123")) {
		t.Fatal("expected unknown user to be rejected")
	}
}

package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndParseJWT(t *testing.T) {
	tok, err := SignJWT(42, "secret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	uid, err := ParseJWT(tok, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uid != 42 {
		t.Fatalf("unexpected uid: %d", uid)
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	good, _ := SignJWT(7, "secret", time.Hour)
	expired, _ := SignJWT(7, "secret", -time.Minute)

	cases := map[string]struct {
		token  string
		secret string
	}{
		"wrong secret": {good, "other"},
		"expired":      {expired, "secret"},
		"garbage":      {"not-a-token", "secret"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseJWT(tc.token, tc.secret); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(h, "hunter2") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(h, "hunter3") {
		t.Fatalf("expected wrong password to be rejected")
	}
}

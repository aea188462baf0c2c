package auth

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avelar/chatd/internal/store"
)

func testAuthenticator(t *testing.T) (*Authenticator, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New("test-secret", time.Hour, db), db
}

func TestMintAndVerify(t *testing.T) {
	a, db := testAuthenticator(t)
	if err := db.CreateUser(&store.User{ID: "alice", Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	token := a.Mint("alice", time.Now())
	user, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if user.ID != "alice" {
		t.Errorf("user.ID = %q, want alice", user.ID)
	}
}

func TestVerifyMissing(t *testing.T) {
	a, _ := testAuthenticator(t)
	if _, err := a.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("error = %v, want ErrMissingToken", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	a, db := testAuthenticator(t)
	if err := db.CreateUser(&store.User{ID: "alice", Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	token := a.Mint("alice", time.Now())
	// Flip a character in the signature.
	last := token[len(token)-1]
	flip := byte('0')
	if last == '0' {
		flip = '1'
	}
	tampered := token[:len(token)-1] + string(flip)

	if _, err := a.Verify(tampered); !errors.Is(err, ErrBadSignature) {
		t.Errorf("error = %v, want ErrBadSignature", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	a, db := testAuthenticator(t)
	if err := db.CreateUser(&store.User{ID: "alice", Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	other := New("other-secret", time.Hour, db)
	token := other.Mint("alice", time.Now())

	if _, err := a.Verify(token); !errors.Is(err, ErrBadSignature) {
		t.Errorf("error = %v, want ErrBadSignature", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	a, db := testAuthenticator(t)
	if err := db.CreateUser(&store.User{ID: "alice", Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	token := a.Mint("alice", time.Now().Add(-2*time.Hour))
	if _, err := a.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyUnknownSubject(t *testing.T) {
	a, _ := testAuthenticator(t)

	token := a.Mint("ghost", time.Now())
	if _, err := a.Verify(token); !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("error = %v, want ErrUnknownSubject", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	a, _ := testAuthenticator(t)

	for _, token := range []string{"garbage", "a.b", "a.b.c.d", "!!!.123.abc"} {
		if _, err := a.Verify(token); err == nil {
			t.Errorf("Verify(%q) expected error", token)
		} else if strings.Contains(err.Error(), "lookup subject") {
			t.Errorf("Verify(%q) reached the store: %v", token, err)
		}
	}
}

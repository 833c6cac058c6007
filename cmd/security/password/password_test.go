package password

import (
	"errors"
	"strings"
	"testing"
)

// cheap keeps argon2 fast enough for unit tests.
func cheap() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := cheap()

	h, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", h)
	}

	ok, err := cfg.Verify(h, "correct horse battery")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	cfg := cheap()

	a, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := cheap()

	h, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "wrong horse battery")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := cheap()

	for _, in := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
	} {
		ok, err := cfg.Verify(in, "whatever")
		if !errors.Is(err, ErrInvalidHash) || ok {
			t.Fatalf("%q: expected ErrInvalidHash, got ok=%v err=%v", in, ok, err)
		}
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	big := cheap()
	big.Params.Iterations = 10

	h, err := big.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if _, err := cheap().Verify(h, "correct horse battery"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	cfg := cheap()
	h, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if cfg.NeedsRehash(h) {
		t.Fatalf("fresh hash must not need rehash")
	}

	stronger := cfg
	stronger.Params.Iterations = 2
	if !stronger.NeedsRehash(h) {
		t.Fatalf("expected rehash after cost change")
	}
	if !cfg.NeedsRehash("garbage") {
		t.Fatalf("garbage must need rehash")
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	for _, weak := range []string{"password", "11111111", "aaaaaaaaaa", "QWERTY123", "98765432"} {
		if err := cfg.Validate(weak); err != ErrWeakPassword {
			t.Fatalf("%q: expected ErrWeakPassword, got %v", weak, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

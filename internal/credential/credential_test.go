package credential

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/scribe/internal/store"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer()
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"simple api key", "sk-1234567890abcdef"},
		{"long key", strings.Repeat("a", 1000)},
		{"unicode content", "api-key-日本語-🔑"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := s.Seal(tc.plaintext)
			if err != nil {
				t.Fatalf("seal failed: %v", err)
			}
			if tc.plaintext == "" {
				if sealed != "" {
					t.Errorf("empty string should stay empty, got %q", sealed)
				}
				return
			}
			if !IsSealed(sealed) {
				t.Errorf("sealed value should have prefix, got %q", sealed)
			}

			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if opened != tc.plaintext {
				t.Errorf("got %q, want %q", opened, tc.plaintext)
			}
		})
	}
}

func TestSealer_RandomNonce(t *testing.T) {
	s, _ := NewSealer()
	a, _ := s.Seal("same-key")
	b, _ := s.Seal("same-key")
	if a == b {
		t.Error("same plaintext should produce different ciphertext")
	}
}

func TestSealer_OpenPlaintextPassesThrough(t *testing.T) {
	s, _ := NewSealer()
	got, err := s.Open("sk-not-sealed")
	if err != nil || got != "sk-not-sealed" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestSealer_OpenInvalid(t *testing.T) {
	s, _ := NewSealer()

	if _, err := s.Open(SealedPrefix + "not-valid-base64!!!"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	if _, err := s.Open(SealedPrefix + "YWJj"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat for short input, got %v", err)
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a, _ := NewSealerWithKey([]byte(strings.Repeat("a", 32)))
	b, _ := NewSealerWithKey([]byte(strings.Repeat("b", 32)))

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("expected ErrOpenFailed, got %v", err)
	}
}

func TestNewSealerWithKey_BadLength(t *testing.T) {
	if _, err := NewSealerWithKey([]byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestVault(t *testing.T) {
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "vault.db"), filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	sealer, _ := NewSealer()
	v := NewVault(db, sealer)
	v.getenv = func(k string) string {
		if k == "TEST_OPENAI_KEY" {
			return "from-env"
		}
		return ""
	}

	t.Run("Put stores sealed value", func(t *testing.T) {
		if err := v.Put("openai", "sk-stored-secret"); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		raw, _ := db.GetConfig("credential.openai")
		if !IsSealed(raw) || strings.Contains(raw, "sk-stored-secret") {
			t.Errorf("stored value is not sealed: %q", raw)
		}
	})

	t.Run("Get opens value", func(t *testing.T) {
		got, err := v.Get("openai")
		if err != nil || got != "sk-stored-secret" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("Get unset", func(t *testing.T) {
		got, err := v.Get("missing")
		if err != nil || got != "" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("Resolve prefers env", func(t *testing.T) {
		got, _ := v.Resolve("openai", "UNSET_VAR", "TEST_OPENAI_KEY")
		if got != "from-env" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("Resolve falls back to store", func(t *testing.T) {
		got, _ := v.Resolve("openai", "UNSET_VAR")
		if got != "sk-stored-secret" {
			t.Errorf("got %q", got)
		}
	})
}

func TestMask(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "****"},
		{"12345678", "****"},
		{"123456789", "1234...6789"},
		{"sk-1234567890abcdef", "sk-1...cdef"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := Mask(tc.input); got != tc.expected {
				t.Errorf("Mask(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

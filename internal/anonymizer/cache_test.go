package anonymizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func TestTokenCache(t *testing.T) {
	t.Run("CountersStartAtOne", func(t *testing.T) {
		cache := NewTokenCache()
		if got := cache.Token("PERSON", "Alice Johnson"); got != "<PERSON_1>" {
			t.Errorf("First token = %q, want <PERSON_1>", got)
		}
	})

	t.Run("SameValueSameToken", func(t *testing.T) {
		cache := NewTokenCache()
		first := cache.Token("PERSON", "Alice Johnson")
		cache.Token("PERSON", "Bob Smith")
		again := cache.Token("PERSON", "Alice Johnson")
		if first != again {
			t.Errorf("Repeated value got different tokens: %q vs %q", first, again)
		}
	})

	t.Run("DistinctValuesIncrement", func(t *testing.T) {
		cache := NewTokenCache()
		cache.Token("PERSON", "Alice Johnson")
		if got := cache.Token("PERSON", "Bob Smith"); got != "<PERSON_2>" {
			t.Errorf("Second distinct value = %q, want <PERSON_2>", got)
		}
	})

	t.Run("CountersPerEntityType", func(t *testing.T) {
		cache := NewTokenCache()
		cache.Token("PERSON", "Alice Johnson")
		if got := cache.Token("EMAIL_ADDRESS", "a@example.com"); got != "<EMAIL_ADDRESS_1>" {
			t.Errorf("Each entity type counts independently, got %q", got)
		}
	})

	t.Run("KeysAreCaseSensitive", func(t *testing.T) {
		cache := NewTokenCache()
		upper := cache.Token("PERSON", "Alice")
		lower := cache.Token("PERSON", "alice")
		if upper == lower {
			t.Error("Differently-cased values must get distinct tokens")
		}
	})

	t.Run("NoTrimming", func(t *testing.T) {
		cache := NewTokenCache()
		plain := cache.Token("PERSON", "Alice")
		padded := cache.Token("PERSON", " Alice ")
		if plain == padded {
			t.Error("Whitespace-padded value must get a distinct token")
		}
	})

	t.Run("SameValueDifferentTypes", func(t *testing.T) {
		cache := NewTokenCache()
		person := cache.Token("PERSON", "Paris")
		location := cache.Token("LOCATION", "Paris")
		if person == location {
			t.Error("Same value under different entity types must differ")
		}
	})

	t.Run("Len", func(t *testing.T) {
		cache := NewTokenCache()
		cache.Token("PERSON", "Alice")
		cache.Token("PERSON", "Alice")
		cache.Token("PERSON", "Bob")
		if cache.Len() != 2 {
			t.Errorf("Len = %d, want 2", cache.Len())
		}
	})
}

func TestHashToken(t *testing.T) {
	cache := NewTokenCache()

	sum := sha256.Sum256([]byte("john@example.com"))
	want := fmt.Sprintf("<EMAIL_ADDRESS_%s>", hex.EncodeToString(sum[:])[:8])

	got := cache.HashToken("EMAIL_ADDRESS", "john@example.com")
	if got != want {
		t.Errorf("HashToken = %q, want %q", got, want)
	}

	// Pure function: identical across fresh caches
	other := NewTokenCache()
	if other.HashToken("EMAIL_ADDRESS", "john@example.com") != got {
		t.Error("Hash token must be identical across requests")
	}

	if cache.HashToken("EMAIL_ADDRESS", "jane@example.com") == got {
		t.Error("Different values must hash differently")
	}
}

package kid

import (
	"strings"
	"testing"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

func TestNew(t *testing.T) {
	now := time.Date(2026, 7, 30, 13, 4, 5, 0, time.UTC)

	t.Run("embeds the domain and formatted timestamp", func(t *testing.T) {
		k := New(vaultinternal.Domain("EXAMPLE.COM"), now)
		want := "EXAMPLE.COM-20260730-130405-"
		if !strings.HasPrefix(string(k), want) {
			t.Fatalf("expected kid to start with %q, got %q", want, k)
		}
	})

	t.Run("normalizes the timestamp to UTC", func(t *testing.T) {
		loc := time.FixedZone("TEST", 9*60*60)
		local := time.Date(2026, 7, 30, 22, 4, 5, 0, loc)
		k := New(vaultinternal.Domain("EXAMPLE.COM"), local)
		want := "EXAMPLE.COM-20260730-130405-"
		if !strings.HasPrefix(string(k), want) {
			t.Fatalf("expected UTC-normalized kid prefix %q, got %q", want, k)
		}
	})

	t.Run("two kids minted in the same second for the same domain differ", func(t *testing.T) {
		a := New(vaultinternal.Domain("EXAMPLE.COM"), now)
		b := New(vaultinternal.Domain("EXAMPLE.COM"), now)
		if a == b {
			t.Fatalf("expected distinct kids, got identical %q", a)
		}
	})

	t.Run("random suffix is eight hex characters", func(t *testing.T) {
		k := New(vaultinternal.Domain("EXAMPLE.COM"), now)
		parts := strings.Split(string(k), "-")
		suffix := parts[len(parts)-1]
		if len(suffix) != 8 {
			t.Fatalf("expected an 8-character suffix, got %q (%d chars)", suffix, len(suffix))
		}
	})
}

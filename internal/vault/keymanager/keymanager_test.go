package keymanager

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"testing"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/janitor"
	"go.keyforge.dev/vault/internal/vault/reaper"
	"go.keyforge.dev/vault/internal/vault/storage/memory"
)

func newTestManager() *Manager {
	logger := slog.Default()
	mem := memory.New()
	lock := memory.NewLock()

	j := janitor.New(mem, mem, mem, nil, logger)
	rp := reaper.New(mem, mem, j, 0, 0, logger)
	m := New(mem, mem, mem, mem, lock, rp, 0, logger)
	return m
}

func TestSignRequiresAnActiveKey(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.Sign(ctx, "EXAMPLE.COM", map[string]any{"sub": "user-1"})
	if err == nil {
		t.Fatal("expected an error signing with no active key")
	}
	var missing *vaultinternal.MissingKeyError
	if !asMissingKeyError(err, &missing) {
		t.Fatalf("expected *MissingKeyError, got %T: %v", err, err)
	}
}

func TestSignRejectsEmptyDomain(t *testing.T) {
	m := newTestManager()
	_, err := m.Sign(context.Background(), "", map[string]any{"sub": "user-1"})
	if err == nil {
		t.Fatal("expected a validation error for an empty domain")
	}
}

func TestRotateThenSignProducesAVerifiableJWT(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")

	kid, outcome, err := m.Rotate(ctx, domain)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if outcome != RotationApplied {
		t.Fatalf("expected RotationApplied, got %v", outcome)
	}
	if kid == "" {
		t.Fatal("expected a non-empty kid from rotation")
	}

	token, err := m.Sign(ctx, domain, map[string]any{"sub": "user-1"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a three-segment JWT, got %d segments", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if !strings.Contains(string(headerJSON), string(kid)) {
		t.Fatalf("expected JWT header to carry kid %q, got %s", kid, headerJSON)
	}
}

func TestSecondRotationArchivesThePreviousKey(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")

	firstKid, _, err := m.Rotate(ctx, domain)
	if err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	secondKid, _, err := m.Rotate(ctx, domain)
	if err != nil {
		t.Fatalf("second Rotate: %v", err)
	}
	if firstKid == secondKid {
		t.Fatal("expected rotation to mint a new kid")
	}

	jwks, err := m.GetJwks(ctx, domain)
	if err != nil {
		t.Fatalf("GetJwks: %v", err)
	}
	if !strings.Contains(string(jwks), string(firstKid)) {
		t.Fatalf("expected jwks to still include the archived key %q, got %s", firstKid, jwks)
	}
	if !strings.Contains(string(jwks), string(secondKid)) {
		t.Fatalf("expected jwks to include the active key %q, got %s", secondKid, jwks)
	}
}

func TestRotateSkipsWhenLockIsHeld(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")

	token, err := m.locks.Acquire(ctx, domain, RotationLockTTLSeconds)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if token == "" {
		t.Fatal("expected to acquire the lock in the test setup")
	}

	_, outcome, err := m.Rotate(ctx, domain)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if outcome != RotationSkippedLocked {
		t.Fatalf("expected RotationSkippedLocked, got %v", outcome)
	}
}

func TestClearSigningCacheForcesAReimport(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")

	if _, _, err := m.Rotate(ctx, domain); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, _, err := m.GetSigningKey(ctx, domain); err != nil {
		t.Fatalf("GetSigningKey: %v", err)
	}

	m.mu.Lock()
	_, cached := m.signCache[domain]
	m.mu.Unlock()
	if !cached {
		t.Fatal("expected the signing key to be cached after first use")
	}

	m.ClearSigningCache(domain)

	m.mu.Lock()
	_, cached = m.signCache[domain]
	m.mu.Unlock()
	if cached {
		t.Fatal("expected ClearSigningCache to evict the cached entry")
	}
}

func asMissingKeyError(err error, target **vaultinternal.MissingKeyError) bool {
	if e, ok := err.(*vaultinternal.MissingKeyError); ok {
		*target = e
		return true
	}
	return false
}

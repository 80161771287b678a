package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

func TestKeyStoreRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	kid := vaultinternal.Kid("k1")

	if err := s.Save(ctx, domain, kid, []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	priv, err := s.LoadPrivate(ctx, domain, kid)
	if err != nil || string(priv) != "priv" {
		t.Fatalf("LoadPrivate: %q, %v", priv, err)
	}

	if err := s.DeletePrivate(ctx, domain, kid); err != nil {
		t.Fatalf("DeletePrivate: %v", err)
	}
	if _, err := s.LoadPrivate(ctx, domain, kid); err == nil {
		t.Fatal("expected LoadPrivate to fail after delete")
	}
}

func TestLoadPrivateWrongDomainIsMissing(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Save(ctx, "A.COM", "k1", []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.LoadPrivate(ctx, "B.COM", "k1"); err == nil {
		t.Fatal("expected loading a key under the wrong domain to fail")
	}
}

func TestGarbageStoreCreateReplacesExistingPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	now := time.Now()

	first := vaultinternal.GarbageRecord{ID: "id-1", Domain: domain, Status: vaultinternal.GarbageStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second := vaultinternal.GarbageRecord{ID: "id-2", Domain: domain, Status: vaultinternal.GarbageStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	pending, err := s.FindPending(ctx)
	if err != nil {
		t.Fatalf("FindPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "id-2" {
		t.Fatalf("expected only the second pending record to survive, got %+v", pending)
	}
}

func TestGarbageStoreMarkCleanedAndMarkCritical(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	record := vaultinternal.GarbageRecord{ID: "id-1", Domain: "EXAMPLE.COM", Status: vaultinternal.GarbageStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.MarkCritical(ctx, "id-1", "boom"); err != nil {
		t.Fatalf("MarkCritical: %v", err)
	}
	pending, err := s.FindPending(ctx)
	if err != nil {
		t.Fatalf("FindPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected a CRITICAL record to drop out of FindPending, got %+v", pending)
	}
}

func TestRotationPolicyGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	policy := vaultinternal.RotationPolicy{Domain: "EXAMPLE.COM", Enabled: true, ActiveKid: "k1"}

	require.NoError(t, s.Put(ctx, policy))

	got, err := s.Get(ctx, "EXAMPLE.COM")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, policy, *got)
}

func TestRotationPolicyGetAvailableDomainsOnlyReturnsEnabled(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, vaultinternal.RotationPolicy{Domain: "ENABLED.COM", Enabled: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, vaultinternal.RotationPolicy{Domain: "DISABLED.COM", Enabled: false}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	domains, err := s.GetAvailableDomains(ctx)
	if err != nil {
		t.Fatalf("GetAvailableDomains: %v", err)
	}
	if len(domains) != 1 || domains[0] != "ENABLED.COM" {
		t.Fatalf("expected only ENABLED.COM, got %v", domains)
	}
}

package collector

import (
	"context"
	"testing"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/snapshotbuilder"
	"go.keyforge.dev/vault/internal/vault/storage/memory"
)

func setupDomainWithStaleKey(t *testing.T, mem *memory.Store, domain vaultinternal.Domain) {
	t.Helper()
	ctx := context.Background()

	activeKid := vaultinternal.Kid("active")
	if err := mem.Save(ctx, domain, activeKid, []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save active: %v", err)
	}
	if err := mem.WriteOrigin(ctx, vaultinternal.OriginMeta{Kid: activeKid, Domain: domain, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("WriteOrigin: %v", err)
	}
	if err := mem.Put(ctx, vaultinternal.RotationPolicy{Domain: domain, Enabled: true, ActiveKid: activeKid}); err != nil {
		t.Fatalf("Put policy: %v", err)
	}

	staleKid := vaultinternal.Kid("stale")
	if err := mem.Save(ctx, domain, staleKid, []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save stale: %v", err)
	}
	if err := mem.WriteOrigin(ctx, vaultinternal.OriginMeta{Kid: staleKid, Domain: domain, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("WriteOrigin stale: %v", err)
	}
}

func TestRunRecordsGarbageWhenADomainHasStaleKeys(t *testing.T) {
	mem := memory.New()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	setupDomainWithStaleKey(t, mem, domain)

	builder := snapshotbuilder.New(mem, mem, mem)
	c := New(builder, mem, mem, memory.NewLock(), nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	record, err := mem.FindPendingByDomain(context.Background(), domain)
	if err != nil {
		t.Fatalf("FindPendingByDomain: %v", err)
	}
	if record == nil {
		t.Fatal("expected a pending garbage record for the domain with a stale key")
	}
	if len(record.GarbageSet.PrivateKeys) == 0 && len(record.GarbageSet.OriginMeta) == 0 {
		t.Fatalf("expected the stale key to appear in the garbage set, got %+v", record.GarbageSet)
	}
}

func TestRunIsIdempotentWhenNothingChanged(t *testing.T) {
	mem := memory.New()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	setupDomainWithStaleKey(t, mem, domain)

	builder := snapshotbuilder.New(mem, mem, mem)
	c := New(builder, mem, mem, memory.NewLock(), nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, err := mem.FindPendingByDomain(context.Background(), domain)
	if err != nil {
		t.Fatalf("FindPendingByDomain: %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, err := mem.FindPendingByDomain(context.Background(), domain)
	if err != nil {
		t.Fatalf("FindPendingByDomain: %v", err)
	}

	if first == nil || second == nil {
		t.Fatal("expected a pending record after both runs")
	}
	if first.ID != second.ID {
		t.Fatalf("expected the unchanged snapshot to leave the pending record alone, got a new id %q vs %q", second.ID, first.ID)
	}
}

func TestRunSkipsADomainWhoseLockIsHeld(t *testing.T) {
	mem := memory.New()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	setupDomainWithStaleKey(t, mem, domain)

	lock := memory.NewLock()
	ctx := context.Background()
	token, err := lock.Acquire(ctx, domain, LockTTLSeconds)
	if err != nil || token == "" {
		t.Fatalf("expected to acquire the lock in test setup, token=%q err=%v", token, err)
	}

	builder := snapshotbuilder.New(mem, mem, mem)
	c := New(builder, mem, mem, lock, nil)

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	record, err := mem.FindPendingByDomain(ctx, domain)
	if err != nil {
		t.Fatalf("FindPendingByDomain: %v", err)
	}
	if record != nil {
		t.Fatal("expected no garbage record to be created while the domain's lock is held")
	}
}

package snapshotbuilder

import (
	"context"
	"testing"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/storage/memory"
)

func TestBuildAssemblesEveryStorePort(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	now := time.Now().UTC()

	activeKid := vaultinternal.Kid("active")
	if err := mem.Save(ctx, domain, activeKid, []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mem.WriteOrigin(ctx, vaultinternal.OriginMeta{Kid: activeKid, Domain: domain, CreatedAt: now}); err != nil {
		t.Fatalf("WriteOrigin: %v", err)
	}
	if err := mem.Put(ctx, vaultinternal.RotationPolicy{Domain: domain, Enabled: true, ActiveKid: activeKid}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	archivedKid := vaultinternal.Kid("archived")
	if err := mem.Save(ctx, domain, archivedKid, []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save archived: %v", err)
	}
	if err := mem.WriteArchive(ctx, vaultinternal.ArchivedMeta{Kid: archivedKid, Domain: domain, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	b := New(mem, mem, mem)
	snap, err := b.Build(ctx, domain)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if snap.ActiveKid != activeKid {
		t.Fatalf("expected active kid %q, got %q", activeKid, snap.ActiveKid)
	}
	if _, ok := snap.PrivateKeys[activeKid]; !ok {
		t.Fatal("expected active private key present")
	}
	if _, ok := snap.OriginMeta[activeKid]; !ok {
		t.Fatal("expected active origin meta present")
	}
	if _, ok := snap.ArchivedMeta[archivedKid]; !ok {
		t.Fatal("expected archived meta present")
	}
	if _, ok := snap.PublicKeys[archivedKid]; !ok {
		t.Fatal("expected archived public key present")
	}
}

func TestBuildOnAnUnknownDomainIsEmptyButNotAnError(t *testing.T) {
	mem := memory.New()
	b := New(mem, mem, mem)
	snap, err := b.Build(context.Background(), "NEVER-SEEN.COM")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if snap.ActiveKid != "" {
		t.Fatalf("expected no active kid, got %q", snap.ActiveKid)
	}
	if len(snap.PrivateKeys) != 0 {
		t.Fatalf("expected no private keys, got %v", snap.PrivateKeys)
	}
}

package filemeta

import (
	"context"
	"testing"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

func TestOriginRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")
	kid := vaultinternal.Kid("k1")
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.WriteOrigin(ctx, vaultinternal.OriginMeta{Kid: kid, Domain: domain, CreatedAt: now}); err != nil {
		t.Fatalf("WriteOrigin: %v", err)
	}

	m, err := s.ReadOrigin(ctx, domain, kid)
	if err != nil {
		t.Fatalf("ReadOrigin: %v", err)
	}
	if m == nil || m.Kid != kid || !m.CreatedAt.Equal(now) {
		t.Fatalf("unexpected origin meta: %+v", m)
	}

	if err := s.DeleteOrigin(ctx, domain, kid); err != nil {
		t.Fatalf("DeleteOrigin: %v", err)
	}
	m, err = s.ReadOrigin(ctx, domain, kid)
	if err != nil {
		t.Fatalf("ReadOrigin after delete: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil origin meta after delete")
	}
}

func TestReadOriginForAnUnknownKidReturnsNilNotError(t *testing.T) {
	s := New(t.TempDir())
	m, err := s.ReadOrigin(context.Background(), "EXAMPLE.COM", "never-existed")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil, got %+v", m)
	}
}

func TestArchivedMetaListingFiltersByDomain(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.WriteArchive(ctx, vaultinternal.ArchivedMeta{Kid: "a1", Domain: "ONE.COM", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("WriteArchive a1: %v", err)
	}
	if err := s.WriteArchive(ctx, vaultinternal.ArchivedMeta{Kid: "a2", Domain: "TWO.COM", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("WriteArchive a2: %v", err)
	}

	metas, err := s.ListArchivedMetas(ctx, "ONE.COM")
	if err != nil {
		t.Fatalf("ListArchivedMetas: %v", err)
	}
	if len(metas) != 1 || metas[0].Kid != "a1" {
		t.Fatalf("expected only ONE.COM's archived meta, got %+v", metas)
	}
}

func TestListOriginKidsOnAnEmptyDomainIsEmpty(t *testing.T) {
	s := New(t.TempDir())
	kids, err := s.ListOriginKids(context.Background(), "NEVER-SEEN.COM")
	if err != nil {
		t.Fatalf("ListOriginKids: %v", err)
	}
	if len(kids) != 0 {
		t.Fatalf("expected no kids, got %v", kids)
	}
}

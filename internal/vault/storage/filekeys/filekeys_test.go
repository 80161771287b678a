package filekeys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

func TestSaveLoadDeleteRoundTrip(t *testing.T) {
	s := New(t.TempDir())
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
	pub, err := s.LoadPublic(ctx, domain, kid)
	if err != nil || string(pub) != "pub" {
		t.Fatalf("LoadPublic: %q, %v", pub, err)
	}

	if err := s.DeletePrivate(ctx, domain, kid); err != nil {
		t.Fatalf("DeletePrivate: %v", err)
	}
	if _, err := s.LoadPrivate(ctx, domain, kid); err == nil {
		t.Fatal("expected LoadPrivate to fail after delete")
	}

	if err := s.DeletePublic(ctx, domain, kid); err != nil {
		t.Fatalf("DeletePublic: %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	if err := s.DeletePrivate(ctx, "EXAMPLE.COM", "never-existed"); err != nil {
		t.Fatalf("expected deleting an absent kid not to error, got %v", err)
	}
}

func TestListKidsReflectsWhatWasSaved(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	domain := vaultinternal.Domain("EXAMPLE.COM")

	if err := s.Save(ctx, domain, "k1", []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save k1: %v", err)
	}
	if err := s.Save(ctx, domain, "k2", []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save k2: %v", err)
	}

	privKids, err := s.ListPrivateKids(ctx, domain)
	if err != nil {
		t.Fatalf("ListPrivateKids: %v", err)
	}
	if len(privKids) != 2 {
		t.Fatalf("expected 2 private kids, got %v", privKids)
	}
}

func TestListKidsOnAnUnknownDomainIsEmpty(t *testing.T) {
	s := New(t.TempDir())
	kids, err := s.ListPrivateKids(context.Background(), "NEVER-SEEN.COM")
	if err != nil {
		t.Fatalf("ListPrivateKids: %v", err)
	}
	if len(kids) != 0 {
		t.Fatalf("expected no kids, got %v", kids)
	}
}

func TestJwksUpsertFindDelete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	kid := vaultinternal.Kid("k1")

	if _, ok, err := s.Find(ctx, kid); err != nil || ok {
		t.Fatalf("expected no cached jwk yet, ok=%v err=%v", ok, err)
	}

	if err := s.Upsert(ctx, kid, []byte(`{"kid":"k1"}`)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	raw, ok, err := s.Find(ctx, kid)
	if err != nil || !ok || string(raw) != `{"kid":"k1"}` {
		t.Fatalf("Find: %q ok=%v err=%v", raw, ok, err)
	}

	if err := s.Delete(ctx, kid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Find(ctx, kid); err != nil || ok {
		t.Fatalf("expected no cached jwk after delete, ok=%v err=%v", ok, err)
	}
}

func TestCleanTmpResidueRemovesOnlyTmpFiles(t *testing.T) {
	base := t.TempDir()
	s := New(base)
	ctx := context.Background()

	if err := s.Save(ctx, "EXAMPLE.COM", "k1", []byte("pub"), []byte("priv")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tmpPath := filepath.Join(base, "keys", "EXAMPLE.COM", "private", "k2.pem.tmp")
	if err := os.WriteFile(tmpPath, []byte("leftover"), 0o600); err != nil {
		t.Fatalf("write tmp residue: %v", err)
	}

	if err := s.CleanTmpResidue(ctx); err != nil {
		t.Fatalf("CleanTmpResidue: %v", err)
	}

	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Fatalf("expected the .tmp file to be removed, stat err=%v", err)
	}
	if _, err := s.LoadPrivate(ctx, "EXAMPLE.COM", "k1"); err != nil {
		t.Fatalf("expected the real key to survive, got %v", err)
	}
}

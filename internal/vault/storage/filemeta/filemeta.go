// Package filemeta implements store.MetadataStore over JSON files:
//
//	<base>/meta/<DOMAIN>/<kid>.meta     mode 0644  (origin meta)
//	<base>/meta/archived/<kid>.meta     mode 0644  (archived meta)
package filemeta

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

const (
	metaDirMode  = 0o755
	metaFileMode = 0o644
)

type originRecord struct {
	Kid       string     `json:"kid"`
	Domain    string     `json:"domain"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type archivedRecord struct {
	Kid       string    `json:"kid"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store is a filesystem-backed MetadataStore rooted at Base.
type Store struct {
	Base string
}

// New builds a Store rooted at base.
func New(base string) *Store {
	return &Store{Base: base}
}

func (s *Store) originDir(domain vaultinternal.Domain) string {
	return filepath.Join(s.Base, "meta", string(domain))
}

func (s *Store) archivedDir() string {
	return filepath.Join(s.Base, "meta", "archived")
}

func (s *Store) WriteOrigin(_ context.Context, m vaultinternal.OriginMeta) error {
	dir := s.originDir(m.Domain)
	if err := os.MkdirAll(dir, metaDirMode); err != nil {
		return err
	}
	rec := originRecord{Kid: string(m.Kid), Domain: string(m.Domain), CreatedAt: m.CreatedAt, ExpiresAt: nil}
	return writeJSON(filepath.Join(dir, string(m.Kid)+".meta"), rec)
}

func (s *Store) ReadOrigin(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) (*vaultinternal.OriginMeta, error) {
	var rec originRecord
	ok, err := readJSON(filepath.Join(s.originDir(domain), string(kid)+".meta"), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vaultinternal.OriginMeta{
		Kid:       vaultinternal.Kid(rec.Kid),
		Domain:    vaultinternal.Domain(rec.Domain),
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *Store) DeleteOrigin(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) error {
	return removeIdempotent(filepath.Join(s.originDir(domain), string(kid)+".meta"))
}

func (s *Store) ListOriginKids(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.Kid, error) {
	return listMetaKids(s.originDir(domain))
}

func (s *Store) WriteArchive(_ context.Context, m vaultinternal.ArchivedMeta) error {
	dir := s.archivedDir()
	if err := os.MkdirAll(dir, metaDirMode); err != nil {
		return err
	}
	rec := archivedRecord{Kid: string(m.Kid), Domain: string(m.Domain), CreatedAt: m.CreatedAt, ExpiresAt: m.ExpiresAt}
	return writeJSON(filepath.Join(dir, string(m.Kid)+".meta"), rec)
}

func (s *Store) ReadArchive(_ context.Context, kid vaultinternal.Kid) (*vaultinternal.ArchivedMeta, error) {
	var rec archivedRecord
	ok, err := readJSON(filepath.Join(s.archivedDir(), string(kid)+".meta"), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vaultinternal.ArchivedMeta{
		Kid:       vaultinternal.Kid(rec.Kid),
		Domain:    vaultinternal.Domain(rec.Domain),
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Store) DeleteArchive(_ context.Context, kid vaultinternal.Kid) error {
	return removeIdempotent(filepath.Join(s.archivedDir(), string(kid)+".meta"))
}

func (s *Store) ListArchivedMetas(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.ArchivedMeta, error) {
	kids, err := listMetaKids(s.archivedDir())
	if err != nil {
		return nil, err
	}

	var metas []vaultinternal.ArchivedMeta
	for _, kid := range kids {
		m, err := s.ReadArchive(context.Background(), kid)
		if err != nil || m == nil {
			continue
		}
		if m.Domain == domain {
			metas = append(metas, *m)
		}
	}
	return metas, nil
}

func listMetaKids(dir string) ([]vaultinternal.Kid, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var kids []vaultinternal.Kid
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta") {
			continue
		}
		kids = append(kids, vaultinternal.Kid(strings.TrimSuffix(entry.Name(), ".meta")))
	}
	return kids, nil
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, metaFileMode)
}

func readJSON(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, v)
}

func removeIdempotent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Package filekeys implements store.KeyStore and store.JwksStore over a
// directory tree:
//
//	<base>/keys/<DOMAIN>/private/<kid>.pem   mode 0600
//	<base>/keys/<DOMAIN>/public/<kid>.pem    mode 0644
//	<base>/jwks/<kid>.jwk                    mode 0644
//
// File I/O has no idiomatic third-party replacement in the example corpus;
// this package is stdlib-only by necessity (see DESIGN.md).
package filekeys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

const (
	privateDirMode  = 0o700
	publicDirMode   = 0o755
	privateFileMode = 0o600
	publicFileMode  = 0o644
	jwksDirMode     = 0o755
	jwksFileMode    = 0o644
)

// Store is a filesystem-backed KeyStore rooted at Base.
type Store struct {
	Base string
}

// New builds a Store rooted at base. base is created lazily per domain.
func New(base string) *Store {
	return &Store{Base: base}
}

func (s *Store) privateDir(domain vaultinternal.Domain) string {
	return filepath.Join(s.Base, "keys", string(domain), "private")
}

func (s *Store) publicDir(domain vaultinternal.Domain) string {
	return filepath.Join(s.Base, "keys", string(domain), "public")
}

func (s *Store) ListPrivateKids(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.Kid, error) {
	return listPEMKids(s.privateDir(domain))
}

func (s *Store) ListPublicKids(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.Kid, error) {
	return listPEMKids(s.publicDir(domain))
}

func listPEMKids(dir string) ([]vaultinternal.Kid, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var kids []vaultinternal.Kid
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pem") {
			continue
		}
		kids = append(kids, vaultinternal.Kid(strings.TrimSuffix(entry.Name(), ".pem")))
	}
	return kids, nil
}

func (s *Store) LoadPrivate(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.privateDir(domain), string(kid)+".pem"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &vaultinternal.MissingKeyError{Domain: domain}
	}
	return b, err
}

func (s *Store) LoadPublic(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.publicDir(domain), string(kid)+".pem"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &vaultinternal.MissingKeyError{Domain: domain}
	}
	return b, err
}

func (s *Store) Save(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid, publicPEM, privatePEM []byte) error {
	if err := os.MkdirAll(s.privateDir(domain), privateDirMode); err != nil {
		return err
	}
	if err := os.MkdirAll(s.publicDir(domain), publicDirMode); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.privateDir(domain), string(kid)+".pem"), privatePEM, privateFileMode); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.publicDir(domain), string(kid)+".pem"), publicPEM, publicFileMode)
}

func (s *Store) DeletePrivate(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) error {
	return removeIdempotent(filepath.Join(s.privateDir(domain), string(kid)+".pem"))
}

func (s *Store) DeletePublic(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) error {
	return removeIdempotent(filepath.Join(s.publicDir(domain), string(kid)+".pem"))
}

func removeIdempotent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) jwksDir() string {
	return filepath.Join(s.Base, "jwks")
}

// Upsert implements store.JwksStore, caching a published JWK next to the
// key files so the manager doesn't have to re-derive JWKs from PEM on every
// JWKS request.
func (s *Store) Upsert(_ context.Context, kid vaultinternal.Kid, jwk []byte) error {
	if err := os.MkdirAll(s.jwksDir(), jwksDirMode); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.jwksDir(), string(kid)+".jwk"), jwk, jwksFileMode)
}

func (s *Store) Find(_ context.Context, kid vaultinternal.Kid) ([]byte, bool, error) {
	b, err := os.ReadFile(filepath.Join(s.jwksDir(), string(kid)+".jwk"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Delete(_ context.Context, kid vaultinternal.Kid) error {
	return removeIdempotent(filepath.Join(s.jwksDir(), string(kid)+".jwk"))
}

// CleanTmpResidue removes any *.tmp files left behind by an interrupted
// write under Base — an optional capability the cleaner checks for via
// type assertion.
func (s *Store) CleanTmpResidue(_ context.Context) error {
	var errs []error
	err := filepath.WalkDir(s.Base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".tmp") {
			if rmErr := os.Remove(path); rmErr != nil {
				errs = append(errs, rmErr)
			}
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

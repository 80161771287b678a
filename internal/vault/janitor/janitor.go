// Package janitor implements the vault's only delete path: every removal of
// a private key, public key, origin meta, or archived meta record flows
// through here so cache invalidation and store writes stay ordered the same
// way everywhere.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/store"
)

// CacheInvalidator lets the janitor tell the key manager a kid it may have
// cached is gone, without the janitor package importing keymanager.
type CacheInvalidator interface {
	ClearSigningCache(domain vaultinternal.Domain)
	InvalidateJWK(kid vaultinternal.Kid)
}

// Janitor performs the write-then-invalidate deletes described in the
// key-lifecycle engine: the source of truth is updated first, so a failure
// after the write still leaves caches pointing at data that exists.
type Janitor struct {
	keys        store.KeyStore
	meta        store.MetadataStore
	jwks        store.JwksStore
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// New builds a Janitor. invalidator may be nil (tests exercising the janitor
// in isolation don't need a live KeyManager to invalidate).
func New(keys store.KeyStore, meta store.MetadataStore, jwks store.JwksStore, invalidator CacheInvalidator, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{keys: keys, meta: meta, jwks: jwks, invalidator: invalidator, logger: logger}
}

// DeletePrivate removes a private key and clears any cached signing key for
// domain, since the deleted kid might be the one currently imported.
func (j *Janitor) DeletePrivate(ctx context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) error {
	if err := j.keys.DeletePrivate(ctx, domain, kid); err != nil {
		return &vaultinternal.StoreError{Op: "deletePrivate", Err: err}
	}
	if j.invalidator != nil {
		j.invalidator.ClearSigningCache(domain)
	}
	return nil
}

// DeletePublic removes a public key, invalidates any cached JWK for kid, and
// best-effort evicts it from the JWKS store.
func (j *Janitor) DeletePublic(ctx context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) error {
	if err := j.keys.DeletePublic(ctx, domain, kid); err != nil {
		return &vaultinternal.StoreError{Op: "deletePublic", Err: err}
	}
	if j.invalidator != nil {
		j.invalidator.InvalidateJWK(kid)
	}
	if j.jwks != nil {
		if err := j.jwks.Delete(ctx, kid); err != nil {
			j.logger.WarnContext(ctx, "best-effort jwks evict failed", slog.String("kid", string(kid)), slog.Any("error", err))
		}
	}
	return nil
}

// DeleteOriginMetadata passes through to the metadata store.
func (j *Janitor) DeleteOriginMetadata(ctx context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) error {
	if err := j.meta.DeleteOrigin(ctx, domain, kid); err != nil {
		return &vaultinternal.StoreError{Op: "deleteOriginMetadata", Err: err}
	}
	return nil
}

// DeleteArchivedMetadata passes through to the metadata store.
func (j *Janitor) DeleteArchivedMetadata(ctx context.Context, kid vaultinternal.Kid) error {
	if err := j.meta.DeleteArchive(ctx, kid); err != nil {
		return &vaultinternal.StoreError{Op: "deleteArchivedMetadata", Err: err}
	}
	return nil
}

// CleanDomain is the ExpiredKeyReaper's sweep target: every archived meta
// whose expiry has passed loses its public key and archived record. Errors
// for individual kids are logged and do not stop the sweep.
func (j *Janitor) CleanDomain(ctx context.Context, domain vaultinternal.Domain, now time.Time) error {
	metas, err := j.meta.ListArchivedMetas(ctx, domain)
	if err != nil {
		return &vaultinternal.StoreError{Op: "listArchivedMetas", Err: err}
	}

	var errs []error
	for _, m := range metas {
		if m.ExpiresAt.After(now) {
			continue
		}
		if err := j.DeletePublic(ctx, domain, m.Kid); err != nil {
			j.logger.WarnContext(ctx, "expired public key delete failed", slog.String("kid", string(m.Kid)), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if err := j.DeleteArchivedMetadata(ctx, m.Kid); err != nil {
			j.logger.WarnContext(ctx, "expired archived meta delete failed", slog.String("kid", string(m.Kid)), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

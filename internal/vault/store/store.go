// Package store declares the capability interfaces the vault core depends
// on. They're thin ports over key files, metadata files, JWKS records,
// garbage records, rotation policies, and a distributed lock — concrete
// backends (filesystem, Postgres, in-memory) live under
// internal/vault/storage.
package store

import (
	"context"

	"go.keyforge.dev/vault/internal/vault"
)

// KeyStore is the required capability every key-material backend must
// implement. Absent-kid deletes are idempotent (no error).
type KeyStore interface {
	ListPrivateKids(ctx context.Context, domain vault.Domain) ([]vault.Kid, error)
	ListPublicKids(ctx context.Context, domain vault.Domain) ([]vault.Kid, error)
	LoadPrivate(ctx context.Context, domain vault.Domain, kid vault.Kid) ([]byte, error)
	LoadPublic(ctx context.Context, domain vault.Domain, kid vault.Kid) ([]byte, error)
	Save(ctx context.Context, domain vault.Domain, kid vault.Kid, publicPEM, privatePEM []byte) error
	DeletePrivate(ctx context.Context, domain vault.Domain, kid vault.Kid) error
	DeletePublic(ctx context.Context, domain vault.Domain, kid vault.Kid) error
}

// TmpResidueCleaner is an optional capability some KeyStore backends
// implement (file-backed storage, for interrupted-write leftovers). The
// cleaner type-asserts a KeyStore to this interface after draining pending
// records, rather than requiring every backend to implement it.
type TmpResidueCleaner interface {
	CleanTmpResidue(ctx context.Context) error
}

// MetadataStore manages origin and archived metadata records.
type MetadataStore interface {
	WriteOrigin(ctx context.Context, m vault.OriginMeta) error
	ReadOrigin(ctx context.Context, domain vault.Domain, kid vault.Kid) (*vault.OriginMeta, error)
	DeleteOrigin(ctx context.Context, domain vault.Domain, kid vault.Kid) error
	ListOriginKids(ctx context.Context, domain vault.Domain) ([]vault.Kid, error)

	WriteArchive(ctx context.Context, m vault.ArchivedMeta) error
	ReadArchive(ctx context.Context, kid vault.Kid) (*vault.ArchivedMeta, error)
	DeleteArchive(ctx context.Context, kid vault.Kid) error
	ListArchivedMetas(ctx context.Context, domain vault.Domain) ([]vault.ArchivedMeta, error)
}

// JwksStore caches published JWKs (marshaled JSON) so repeated JWKS
// requests don't have to re-derive them from PEM on every call. The
// vault/crypto package produces the JSON this interface stores.
type JwksStore interface {
	Upsert(ctx context.Context, kid vault.Kid, jwk []byte) error
	Find(ctx context.Context, kid vault.Kid) ([]byte, bool, error)
	Delete(ctx context.Context, kid vault.Kid) error
}

// GarbageStore persists GarbageCollector findings and GarbageCleaner
// progress. Domain is unique: Create on an already-pending domain updates
// the existing record.
type GarbageStore interface {
	FindPending(ctx context.Context) ([]vault.GarbageRecord, error)
	FindPendingByDomain(ctx context.Context, domain vault.Domain) (*vault.GarbageRecord, error)
	Create(ctx context.Context, record vault.GarbageRecord) error
	MarkCleaned(ctx context.Context, id string) error
	MarkCritical(ctx context.Context, id string, reason string) error
	IncrementRetry(ctx context.Context, id string, reason string) error
}

// RotationPolicyStore is CRUD over per-domain rotation policies, plus the
// "which domains participate in scheduled rotation" query.
type RotationPolicyStore interface {
	GetAvailableDomains(ctx context.Context) ([]vault.Domain, error)
	Get(ctx context.Context, domain vault.Domain) (*vault.RotationPolicy, error)
	Put(ctx context.Context, policy vault.RotationPolicy) error
}

// RotationLock is a short-lived distributed lease, NX+EX semantics on
// acquire, token-guarded compare-and-delete on release.
type RotationLock interface {
	// Acquire returns a non-empty token on success, or "" if the lock is
	// already held (LockUnavailable — not an error).
	Acquire(ctx context.Context, domain vault.Domain, ttlSeconds int) (token string, err error)
	// Release is a no-op (not an error) if token doesn't match the current
	// holder.
	Release(ctx context.Context, domain vault.Domain, token string) error
}

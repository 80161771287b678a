// Package vault implements the multi-tenant signing vault's key-lifecycle
// engine: DomainSnapshot, KeyManager, Janitor, the garbage collection and
// cleaning pipelines, and the store ports they depend on. Transport
// (gRPC/HTTP), the persistent database driver, and the filesystem/object
// store choice are all external collaborators that satisfy the interfaces
// declared in the store subpackage.
package vault

import (
	"strings"
	"time"
)

// Domain is a tenant identifier. Callers should pass it through
// NormalizeDomain before using it as a policy lookup key.
type Domain string

// NormalizeDomain trims whitespace and upper-cases a domain so lookups are
// stable regardless of how a caller capitalized it.
func NormalizeDomain(d string) Domain {
	return Domain(strings.ToUpper(strings.TrimSpace(d)))
}

// Kid is an opaque key identifier, unique per domain by construction:
// "<domain>-<YYYYMMDD>-<HHMMSS>-<8 hex chars>".
type Kid string

// OriginMeta is the first-class record of a live (un-archived) key pair.
// ExpiresAt is always nil while the record lives here; a key transitions to
// ArchivedMeta (with a concrete expiry) once it's rotated out.
type OriginMeta struct {
	Kid       Kid
	Domain    Domain
	CreatedAt time.Time
}

// ArchivedMeta is the record of a retired key pair still inside its
// verification grace window. It is keyed by kid alone, not by domain: a
// kid is globally unique, so lookups never need the domain to disambiguate.
type ArchivedMeta struct {
	Kid       Kid
	Domain    Domain
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RotationPolicy is the per-domain rotation schedule and current active key
// pointer.
type RotationPolicy struct {
	Domain           Domain
	RotationInterval time.Duration
	RotatedAt        time.Time
	NextRotationAt   time.Time
	Enabled          bool
	ActiveKid        Kid
}

// AllowedRotationIntervals enumerates the rotation cadences a domain's
// policy may select.
var AllowedRotationIntervals = []time.Duration{
	24 * time.Hour,
	7 * 24 * time.Hour,
	30 * 24 * time.Hour,
	90 * 24 * time.Hour,
	180 * 24 * time.Hour,
	365 * 24 * time.Hour,
}

// GarbageStatus is the lifecycle state of a GarbageRecord.
type GarbageStatus string

const (
	GarbageStatusPending  GarbageStatus = "PENDING"
	GarbageStatusCleaning GarbageStatus = "CLEANING"
	GarbageStatusCleaned  GarbageStatus = "CLEANED"
	GarbageStatusCritical GarbageStatus = "CRITICAL"
)

// GarbageSet is the four-way partition of kids eligible for removal from a
// single domain.
type GarbageSet struct {
	PrivateKeys  []Kid
	PublicKeys   []Kid
	OriginMeta   []Kid
	ArchivedMeta []Kid
}

// Empty reports whether every partition of the set is empty.
func (g GarbageSet) Empty() bool {
	return len(g.PrivateKeys) == 0 && len(g.PublicKeys) == 0 &&
		len(g.OriginMeta) == 0 && len(g.ArchivedMeta) == 0
}

// GarbageRecord tracks one domain's pending/cleaning/cleaned/critical
// garbage collection cycle. Domain is unique: a new PENDING record for an
// already-pending domain overwrites the prior one (see GarbageStore.Create).
type GarbageRecord struct {
	ID           string
	Domain       Domain
	SnapshotHash string
	GarbageSet   GarbageSet
	Status       GarbageStatus
	Retries      int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}


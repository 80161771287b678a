package vault

import (
	"sort"
	"time"
)

// DomainSnapshot is an immutable, point-in-time materialization of every
// kid-indexed fact for one domain. It is a pure value: collectGarbage,
// simulateCleanup, and isHealthy never touch a store.
type DomainSnapshot struct {
	Domain       Domain
	ActiveKid    Kid
	PrivateKeys  map[Kid]struct{}
	PublicKeys   map[Kid]struct{}
	OriginMeta   map[Kid]struct{}
	ArchivedMeta map[Kid]time.Time // kid -> expiresAt
}

// NewDomainSnapshot builds an empty snapshot for a domain; callers populate
// it via the With* helpers or direct field assignment when a
// SnapshotBuilder assembles one from stores.
func NewDomainSnapshot(domain Domain) *DomainSnapshot {
	return &DomainSnapshot{
		Domain:       domain,
		PrivateKeys:  map[Kid]struct{}{},
		PublicKeys:   map[Kid]struct{}{},
		OriginMeta:   map[Kid]struct{}{},
		ArchivedMeta: map[Kid]time.Time{},
	}
}

// Clone returns a deep copy so callers may mutate the result without
// affecting the snapshot it was cloned from.
func (s *DomainSnapshot) Clone() *DomainSnapshot {
	clone := NewDomainSnapshot(s.Domain)
	clone.ActiveKid = s.ActiveKid
	for k := range s.PrivateKeys {
		clone.PrivateKeys[k] = struct{}{}
	}
	for k := range s.PublicKeys {
		clone.PublicKeys[k] = struct{}{}
	}
	for k := range s.OriginMeta {
		clone.OriginMeta[k] = struct{}{}
	}
	for k, v := range s.ArchivedMeta {
		clone.ArchivedMeta[k] = v
	}
	return clone
}

// CollectGarbage computes the set of keys and metadata that have fallen out
// of the domain's active window. It is deterministic and uses only the
// snapshot's own fields.
func (s *DomainSnapshot) CollectGarbage(now time.Time) GarbageSet {
	var g GarbageSet

	for k := range s.PrivateKeys {
		if k != s.ActiveKid || s.ActiveKid == "" {
			g.PrivateKeys = append(g.PrivateKeys, k)
		}
	}

	for k := range s.OriginMeta {
		if k != s.ActiveKid || s.ActiveKid == "" {
			g.OriginMeta = append(g.OriginMeta, k)
		}
	}

	for k, expiresAt := range s.ArchivedMeta {
		if !expiresAt.After(now) {
			g.ArchivedMeta = append(g.ArchivedMeta, k)
		}
	}

	for k := range s.PublicKeys {
		_, inOrigin := s.OriginMeta[k]
		expiresAt, inArchive := s.ArchivedMeta[k]

		expired := inArchive && !expiresAt.After(now)
		orphaned := k != s.ActiveKid && !inOrigin && !inArchive

		if orphaned || expired {
			g.PublicKeys = append(g.PublicKeys, k)
		}
	}

	sortKids(g.PrivateKeys)
	sortKids(g.PublicKeys)
	sortKids(g.OriginMeta)
	sortKids(g.ArchivedMeta)

	return g
}

// SimulateCleanup returns a clone with the garbage sets subtracted. It never
// calls a store; it is the pure "what would the world look like" function
// the cleaner's health gate evaluates.
func (s *DomainSnapshot) SimulateCleanup(g GarbageSet) *DomainSnapshot {
	sim := s.Clone()
	for _, k := range g.PrivateKeys {
		delete(sim.PrivateKeys, k)
	}
	for _, k := range g.PublicKeys {
		delete(sim.PublicKeys, k)
	}
	for _, k := range g.OriginMeta {
		delete(sim.OriginMeta, k)
	}
	for _, k := range g.ArchivedMeta {
		delete(sim.ArchivedMeta, k)
	}
	return sim
}

// IsHealthy evaluates the domain's core consistency invariants against this
// snapshot: the active key must be present everywhere it's required, and
// every key that exists in one store must have its counterparts in the
// others. An absent ActiveKid makes this false: a domain snapshot with no
// active key is unhealthy by construction.
func (s *DomainSnapshot) IsHealthy() bool {
	if s.ActiveKid == "" {
		return false
	}

	// 1. activeKid exists => private, public, origin-meta all contain it.
	if _, ok := s.PrivateKeys[s.ActiveKid]; !ok {
		return false
	}
	if _, ok := s.PublicKeys[s.ActiveKid]; !ok {
		return false
	}
	if _, ok := s.OriginMeta[s.ActiveKid]; !ok {
		return false
	}

	// 2. every origin-meta kid has both private and public key files.
	for k := range s.OriginMeta {
		if _, ok := s.PrivateKeys[k]; !ok {
			return false
		}
		if _, ok := s.PublicKeys[k]; !ok {
			return false
		}
	}

	// 3. every archived-meta kid has a public key but no private key.
	for k := range s.ArchivedMeta {
		if _, ok := s.PublicKeys[k]; !ok {
			return false
		}
		if _, ok := s.PrivateKeys[k]; ok {
			return false
		}
	}

	// 4. |publicKeys| == |originMeta| + |archivedMeta|.
	if len(s.PublicKeys) != len(s.OriginMeta)+len(s.ArchivedMeta) {
		return false
	}

	// 5. a kid is in exactly one of {originMeta, archivedMeta}.
	for k := range s.OriginMeta {
		if _, ok := s.ArchivedMeta[k]; ok {
			return false
		}
	}

	// 6. no kid appears in archived-meta with expiresAt <= now (must have
	// already been collected).
	now := timeNow()
	for _, expiresAt := range s.ArchivedMeta {
		if !expiresAt.After(now) {
			return false
		}
	}

	return true
}

// CanonicalSnapshot is the stable, order-independent-over-sets /
// order-defined-over-archived-meta form used for hashing.
type CanonicalSnapshot struct {
	Domain       string               `json:"domain"`
	ActiveKid    string               `json:"activeKid"`
	PrivateKeys  []string             `json:"privateKeys"`
	PublicKeys   []string             `json:"publicKeys"`
	OriginMeta   []string             `json:"originMeta"`
	ArchivedMeta []canonicalArchiveRow `json:"archivedMeta"`
}

type canonicalArchiveRow struct {
	Kid       string `json:"kid"`
	ExpiresAt string `json:"expiresAt"`
}

// Canonicalize produces a form with sorted sets and ISO-8601 timestamps
// suitable for stable hashing. Any divergence here destroys the idempotence
// the garbage collector relies on to skip unchanged domains.
func (s *DomainSnapshot) Canonicalize() CanonicalSnapshot {
	c := CanonicalSnapshot{
		Domain:    string(s.Domain),
		ActiveKid: string(s.ActiveKid),
	}
	for k := range s.PrivateKeys {
		c.PrivateKeys = append(c.PrivateKeys, string(k))
	}
	for k := range s.PublicKeys {
		c.PublicKeys = append(c.PublicKeys, string(k))
	}
	for k := range s.OriginMeta {
		c.OriginMeta = append(c.OriginMeta, string(k))
	}
	for k, exp := range s.ArchivedMeta {
		c.ArchivedMeta = append(c.ArchivedMeta, canonicalArchiveRow{
			Kid:       string(k),
			ExpiresAt: exp.UTC().Format(time.RFC3339Nano),
		})
	}

	sort.Strings(c.PrivateKeys)
	sort.Strings(c.PublicKeys)
	sort.Strings(c.OriginMeta)
	sort.Slice(c.ArchivedMeta, func(i, j int) bool {
		return c.ArchivedMeta[i].Kid < c.ArchivedMeta[j].Kid
	})

	return c
}

func sortKids(kids []Kid) {
	sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
}

// timeNow is a var so tests can freeze the clock without threading a clock
// interface through every call site in this file; collectGarbage/ and the
// pipelines that drive IsHealthy always pass their own "now" explicitly.
var timeNow = time.Now

// Package memory implements every vault store port over plain Go maps. It
// exists for tests and local development; nothing here is durable across a
// process restart.
package memory

import (
	"context"
	"sync"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

type keyRecord struct {
	domain vaultinternal.Domain
	pem    []byte
}

// Store implements store.KeyStore, store.MetadataStore, store.JwksStore,
// store.GarbageStore, and store.RotationPolicyStore over in-memory maps
// guarded by a single mutex.
type Store struct {
	mu sync.Mutex

	privateKeys map[vaultinternal.Kid]keyRecord
	publicKeys  map[vaultinternal.Kid]keyRecord
	origin      map[vaultinternal.Kid]vaultinternal.OriginMeta
	archived    map[vaultinternal.Kid]vaultinternal.ArchivedMeta
	jwks        map[vaultinternal.Kid][]byte
	garbage     map[string]vaultinternal.GarbageRecord
	policies    map[vaultinternal.Domain]vaultinternal.RotationPolicy
}

// New builds an empty in-memory Store.
func New() *Store {
	return &Store{
		privateKeys: map[vaultinternal.Kid]keyRecord{},
		publicKeys:  map[vaultinternal.Kid]keyRecord{},
		origin:      map[vaultinternal.Kid]vaultinternal.OriginMeta{},
		archived:    map[vaultinternal.Kid]vaultinternal.ArchivedMeta{},
		jwks:        map[vaultinternal.Kid][]byte{},
		garbage:     map[string]vaultinternal.GarbageRecord{},
		policies:    map[vaultinternal.Domain]vaultinternal.RotationPolicy{},
	}
}

// --- KeyStore ---

func (s *Store) ListPrivateKids(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.Kid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kids []vaultinternal.Kid
	for k, rec := range s.privateKeys {
		if rec.domain == domain {
			kids = append(kids, k)
		}
	}
	return kids, nil
}

func (s *Store) ListPublicKids(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.Kid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kids []vaultinternal.Kid
	for k, rec := range s.publicKeys {
		if rec.domain == domain {
			kids = append(kids, k)
		}
	}
	return kids, nil
}

func (s *Store) LoadPrivate(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.privateKeys[kid]
	if !ok || rec.domain != domain {
		return nil, &vaultinternal.MissingKeyError{Domain: domain}
	}
	return rec.pem, nil
}

func (s *Store) LoadPublic(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.publicKeys[kid]
	if !ok || rec.domain != domain {
		return nil, &vaultinternal.MissingKeyError{Domain: domain}
	}
	return rec.pem, nil
}

func (s *Store) Save(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid, publicPEM, privatePEM []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privateKeys[kid] = keyRecord{domain: domain, pem: privatePEM}
	s.publicKeys[kid] = keyRecord{domain: domain, pem: publicPEM}
	return nil
}

func (s *Store) DeletePrivate(_ context.Context, _ vaultinternal.Domain, kid vaultinternal.Kid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.privateKeys, kid)
	return nil
}

func (s *Store) DeletePublic(_ context.Context, _ vaultinternal.Domain, kid vaultinternal.Kid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.publicKeys, kid)
	return nil
}

// --- MetadataStore ---

func (s *Store) WriteOrigin(_ context.Context, m vaultinternal.OriginMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin[m.Kid] = m
	return nil
}

func (s *Store) ReadOrigin(_ context.Context, domain vaultinternal.Domain, kid vaultinternal.Kid) (*vaultinternal.OriginMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.origin[kid]
	if !ok || m.Domain != domain {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) DeleteOrigin(_ context.Context, _ vaultinternal.Domain, kid vaultinternal.Kid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.origin, kid)
	return nil
}

func (s *Store) ListOriginKids(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.Kid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kids []vaultinternal.Kid
	for k, m := range s.origin {
		if m.Domain == domain {
			kids = append(kids, k)
		}
	}
	return kids, nil
}

func (s *Store) WriteArchive(_ context.Context, m vaultinternal.ArchivedMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived[m.Kid] = m
	return nil
}

func (s *Store) ReadArchive(_ context.Context, kid vaultinternal.Kid) (*vaultinternal.ArchivedMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.archived[kid]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) DeleteArchive(_ context.Context, kid vaultinternal.Kid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.archived, kid)
	return nil
}

func (s *Store) ListArchivedMetas(_ context.Context, domain vaultinternal.Domain) ([]vaultinternal.ArchivedMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var metas []vaultinternal.ArchivedMeta
	for _, m := range s.archived {
		if m.Domain == domain {
			metas = append(metas, m)
		}
	}
	return metas, nil
}

// --- JwksStore ---

func (s *Store) Upsert(_ context.Context, kid vaultinternal.Kid, jwk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jwks[kid] = jwk
	return nil
}

func (s *Store) Find(_ context.Context, kid vaultinternal.Kid) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jwk, ok := s.jwks[kid]
	return jwk, ok, nil
}

func (s *Store) Delete(_ context.Context, kid vaultinternal.Kid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jwks, kid)
	return nil
}

// --- GarbageStore ---

func (s *Store) FindPending(_ context.Context) ([]vaultinternal.GarbageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []vaultinternal.GarbageRecord
	for _, r := range s.garbage {
		if r.Status == vaultinternal.GarbageStatusPending || r.Status == vaultinternal.GarbageStatusCleaning {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *Store) FindPendingByDomain(_ context.Context, domain vaultinternal.Domain) (*vaultinternal.GarbageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.garbage {
		if r.Domain == domain && (r.Status == vaultinternal.GarbageStatusPending || r.Status == vaultinternal.GarbageStatusCleaning) {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *Store) Create(_ context.Context, record vaultinternal.GarbageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.garbage {
		if r.Domain == record.Domain && r.Status == vaultinternal.GarbageStatusPending {
			delete(s.garbage, id)
		}
	}
	s.garbage[record.ID] = record
	return nil
}

func (s *Store) MarkCleaned(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.garbage[id]
	if !ok {
		return nil
	}
	r.Status = vaultinternal.GarbageStatusCleaned
	s.garbage[id] = r
	return nil
}

func (s *Store) MarkCritical(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.garbage[id]
	if !ok {
		return nil
	}
	r.Status = vaultinternal.GarbageStatusCritical
	r.LastError = reason
	s.garbage[id] = r
	return nil
}

func (s *Store) IncrementRetry(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.garbage[id]
	if !ok {
		return nil
	}
	r.Retries++
	r.LastError = reason
	s.garbage[id] = r
	return nil
}

// --- RotationPolicyStore ---

func (s *Store) GetAvailableDomains(_ context.Context) ([]vaultinternal.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var domains []vaultinternal.Domain
	for d, p := range s.policies {
		if p.Enabled {
			domains = append(domains, d)
		}
	}
	return domains, nil
}

func (s *Store) Get(_ context.Context, domain vaultinternal.Domain) (*vaultinternal.RotationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[domain]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) Put(_ context.Context, policy vaultinternal.RotationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.Domain] = policy
	return nil
}

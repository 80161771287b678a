// Package snapshotbuilder assembles a vault.DomainSnapshot by reading every
// store port for one domain. The collector and cleaner both start a cycle
// by calling Build; the snapshot itself is then a pure value.
package snapshotbuilder

import (
	"context"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/store"
)

// Builder reads the key and metadata stores to materialize a snapshot.
type Builder struct {
	keys     store.KeyStore
	meta     store.MetadataStore
	policies store.RotationPolicyStore
}

// New builds a Builder.
func New(keys store.KeyStore, meta store.MetadataStore, policies store.RotationPolicyStore) *Builder {
	return &Builder{keys: keys, meta: meta, policies: policies}
}

// Build materializes the current DomainSnapshot for domain.
func (b *Builder) Build(ctx context.Context, domain vaultinternal.Domain) (*vaultinternal.DomainSnapshot, error) {
	snap := vaultinternal.NewDomainSnapshot(domain)

	policy, err := b.policies.Get(ctx, domain)
	if err != nil {
		return nil, &vaultinternal.StoreError{Op: "getRotationPolicy", Err: err}
	}
	if policy != nil {
		snap.ActiveKid = policy.ActiveKid
	}

	privateKids, err := b.keys.ListPrivateKids(ctx, domain)
	if err != nil {
		return nil, &vaultinternal.StoreError{Op: "listPrivateKids", Err: err}
	}
	for _, k := range privateKids {
		snap.PrivateKeys[k] = struct{}{}
	}

	publicKids, err := b.keys.ListPublicKids(ctx, domain)
	if err != nil {
		return nil, &vaultinternal.StoreError{Op: "listPublicKids", Err: err}
	}
	for _, k := range publicKids {
		snap.PublicKeys[k] = struct{}{}
	}

	originKids, err := b.meta.ListOriginKids(ctx, domain)
	if err != nil {
		return nil, &vaultinternal.StoreError{Op: "listOriginKids", Err: err}
	}
	for _, k := range originKids {
		snap.OriginMeta[k] = struct{}{}
	}

	archived, err := b.meta.ListArchivedMetas(ctx, domain)
	if err != nil {
		return nil, &vaultinternal.StoreError{Op: "listArchivedMetas", Err: err}
	}
	for _, m := range archived {
		snap.ArchivedMeta[m.Kid] = m.ExpiresAt
	}

	return snap, nil
}

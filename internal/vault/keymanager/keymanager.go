// Package keymanager implements the vault's authoritative facade: signing,
// rotation, and JWKS publication, backed by a per-domain single-slot
// signing-key cache and a monotonic kid-to-JWK cache.
package keymanager

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	vaultcrypto "go.keyforge.dev/vault/internal/vault/crypto"
	"go.keyforge.dev/vault/internal/vault/kid"
	"go.keyforge.dev/vault/internal/vault/metrics"
	"go.keyforge.dev/vault/internal/vault/reaper"
	"go.keyforge.dev/vault/internal/vault/store"
)

const (
	// DefaultMaxPayloadBytes caps the size of a Sign request payload.
	DefaultMaxPayloadBytes = 4 * 1024
	// RotationLockTTLSeconds is the lock lease held across a rotate cycle.
	RotationLockTTLSeconds = 300
)

// RotationOutcome reports what TriggerDomainRotation actually did.
type RotationOutcome int

const (
	RotationApplied RotationOutcome = iota
	RotationSkippedLocked
)

func (o RotationOutcome) String() string {
	switch o {
	case RotationApplied:
		return "applied"
	case RotationSkippedLocked:
		return "skipped_locked"
	default:
		return "unknown"
	}
}

type cachedSigningKey struct {
	kid vaultinternal.Kid
	key *rsa.PrivateKey
}

// Manager is the KeyManager facade: it owns signing-key caching, JWKS
// assembly, and rotation for every tenant domain.
type Manager struct {
	keys     store.KeyStore
	meta     store.MetadataStore
	jwks     store.JwksStore
	policies store.RotationPolicyStore
	locks    store.RotationLock
	reaper   *reaper.Reaper

	maxPayloadBytes int
	logger          *slog.Logger

	mu         sync.Mutex
	signCache  map[vaultinternal.Domain]*cachedSigningKey
	jwkCacheMu sync.RWMutex
	jwkCache   map[vaultinternal.Kid][]byte
}

// New builds a Manager. maxPayloadBytes <= 0 uses DefaultMaxPayloadBytes.
func New(
	keys store.KeyStore,
	meta store.MetadataStore,
	jwks store.JwksStore,
	policies store.RotationPolicyStore,
	locks store.RotationLock,
	rp *reaper.Reaper,
	maxPayloadBytes int,
	logger *slog.Logger,
) *Manager {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		keys:            keys,
		meta:            meta,
		jwks:            jwks,
		policies:        policies,
		locks:           locks,
		reaper:          rp,
		maxPayloadBytes: maxPayloadBytes,
		logger:          logger,
		signCache:       map[vaultinternal.Domain]*cachedSigningKey{},
		jwkCache:        map[vaultinternal.Kid][]byte{},
	}
}

// ClearSigningCache implements janitor.CacheInvalidator: drop the cached
// signing key for domain so the next sign re-imports from the store.
func (m *Manager) ClearSigningCache(domain vaultinternal.Domain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.signCache, domain)
}

// InvalidateJWK implements janitor.CacheInvalidator.
func (m *Manager) InvalidateJWK(kid vaultinternal.Kid) {
	m.jwkCacheMu.Lock()
	defer m.jwkCacheMu.Unlock()
	delete(m.jwkCache, kid)
}

// GetSigningKey resolves the active kid and private key for domain, using
// the single-slot cache when it's still fresh for the active kid.
func (m *Manager) GetSigningKey(ctx context.Context, domain vaultinternal.Domain) (vaultinternal.Kid, *rsa.PrivateKey, error) {
	policy, err := m.policies.Get(ctx, domain)
	if err != nil {
		return "", nil, &vaultinternal.StoreError{Op: "getRotationPolicy", Err: err}
	}
	if policy == nil || policy.ActiveKid == "" {
		return "", nil, &vaultinternal.MissingKeyError{Domain: domain}
	}

	m.mu.Lock()
	cached, ok := m.signCache[domain]
	m.mu.Unlock()
	if ok && cached.kid == policy.ActiveKid {
		return cached.kid, cached.key, nil
	}

	pemBytes, err := m.keys.LoadPrivate(ctx, domain, policy.ActiveKid)
	if err != nil {
		return "", nil, &vaultinternal.StoreError{Op: "loadPrivate", Err: err}
	}
	privKey, err := vaultcrypto.ParsePrivateKey(policy.ActiveKid, pemBytes)
	if err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	m.signCache[domain] = &cachedSigningKey{kid: policy.ActiveKid, key: privKey}
	m.mu.Unlock()

	return policy.ActiveKid, privKey, nil
}

// Sign builds and signs a three-segment RS256 JWT over payload, which must
// already be a JSON object no larger than the manager's payload cap.
func (m *Manager) Sign(ctx context.Context, domain vaultinternal.Domain, payload map[string]any) (string, error) {
	ctx, span := otel.Tracer("").Start(ctx, "vault.keymanager.Sign", trace.WithAttributes(
		attribute.String("vault.domain", string(domain)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.SignLatencySeconds.WithLabelValues(string(domain)).Observe(time.Since(start).Seconds())
	}()

	if domain == "" {
		err := &vaultinternal.ValidationError{Reason: "domain is required"}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	body := map[string]any{}
	for k, v := range payload {
		body[k] = v
	}
	body["iat"] = time.Now().UTC().Unix()

	payloadJSON, err := json.Marshal(body)
	if err != nil {
		err = &vaultinternal.ValidationError{Reason: "payload is not serializable: " + err.Error()}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(payloadJSON) > m.maxPayloadBytes {
		err := &vaultinternal.ValidationError{Reason: fmt.Sprintf("payload exceeds %d byte cap", m.maxPayloadBytes)}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	activeKid, privKey, err := m.GetSigningKey(ctx, domain)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	header := map[string]any{"alg": "RS256", "typ": "JWT", "kid": string(activeKid)}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	segment := encodeSegment(headerJSON) + "." + encodeSegment(payloadJSON)
	sig, err := vaultcrypto.Sign(activeKid, privKey, []byte(segment))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return segment + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Rotate performs one full rotation cycle for domain under the rotation
// lock. It returns RotationSkippedLocked (not an error) if another process
// holds the lock.
func (m *Manager) Rotate(ctx context.Context, domain vaultinternal.Domain) (vaultinternal.Kid, RotationOutcome, error) {
	ctx, span := otel.Tracer("").Start(ctx, "vault.keymanager.Rotate", trace.WithAttributes(
		attribute.String("vault.domain", string(domain)),
	))
	defer span.End()

	token, err := m.locks.Acquire(ctx, domain, RotationLockTTLSeconds)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", RotationApplied, &vaultinternal.StoreError{Op: "acquireRotationLock", Err: err}
	}
	if token == "" {
		metrics.RotationLockContendedTotal.WithLabelValues(string(domain)).Inc()
		return "", RotationSkippedLocked, nil
	}
	defer func() {
		if err := m.locks.Release(ctx, domain, token); err != nil {
			m.logger.WarnContext(ctx, "rotation lock release failed", slog.String("domain", string(domain)), slog.Any("error", err))
		}
	}()

	now := time.Now().UTC()

	pair, err := vaultcrypto.GenerateKeyPair()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", RotationApplied, err
	}
	newKid := kid.New(domain, now)

	if err := m.keys.Save(ctx, domain, newKid, pair.PublicPEM, pair.PrivatePEM); err != nil {
		err = &vaultinternal.StoreError{Op: "saveKeyPair", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return "", RotationApplied, err
	}
	if err := m.meta.WriteOrigin(ctx, vaultinternal.OriginMeta{Kid: newKid, Domain: domain, CreatedAt: now}); err != nil {
		err = &vaultinternal.StoreError{Op: "writeOrigin", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return "", RotationApplied, err
	}

	policy, err := m.policies.Get(ctx, domain)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", RotationApplied, &vaultinternal.StoreError{Op: "getRotationPolicy", Err: err}
	}

	var prevKid vaultinternal.Kid
	interval := 24 * time.Hour
	enabled := true
	if policy != nil {
		prevKid = policy.ActiveKid
		if policy.RotationInterval > 0 {
			interval = policy.RotationInterval
		}
		enabled = policy.Enabled
	}

	if prevKid != "" {
		if err := m.reaper.Archive(ctx, domain, prevKid, now); err != nil {
			m.logger.WarnContext(ctx, "archiving previous key failed", slog.String("domain", string(domain)), slog.String("kid", string(prevKid)), slog.Any("error", err))
		}
	}

	newPolicy := vaultinternal.RotationPolicy{
		Domain:           domain,
		RotationInterval: interval,
		RotatedAt:        now,
		NextRotationAt:   now.Add(interval),
		Enabled:          enabled,
		ActiveKid:        newKid,
	}
	if err := m.policies.Put(ctx, newPolicy); err != nil {
		err = &vaultinternal.StoreError{Op: "putRotationPolicy", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return "", RotationApplied, err
	}

	m.ClearSigningCache(domain)
	metrics.KeyRotationsTotal.WithLabelValues(string(domain)).Inc()

	return newKid, RotationApplied, nil
}

// GetJwks assembles the {"keys":[...]} JWKS document for domain from every
// current public key, using a monotonic per-kid JWK cache.
func (m *Manager) GetJwks(ctx context.Context, domain vaultinternal.Domain) ([]byte, error) {
	ctx, span := otel.Tracer("").Start(ctx, "vault.keymanager.GetJwks", trace.WithAttributes(
		attribute.String("vault.domain", string(domain)),
	))
	defer span.End()

	kids, err := m.keys.ListPublicKids(ctx, domain)
	if err != nil {
		err = &vaultinternal.StoreError{Op: "listPublicKids", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	jwks := make([][]byte, 0, len(kids))
	for _, k := range kids {
		raw, err := m.jwkFor(ctx, domain, k)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		jwks = append(jwks, raw)
	}

	set, err := vaultcrypto.BuildJWKSet(jwks)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return set, nil
}

func (m *Manager) jwkFor(ctx context.Context, domain vaultinternal.Domain, k vaultinternal.Kid) ([]byte, error) {
	m.jwkCacheMu.RLock()
	cached, ok := m.jwkCache[k]
	m.jwkCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	pemBytes, err := m.keys.LoadPublic(ctx, domain, k)
	if err != nil {
		return nil, &vaultinternal.StoreError{Op: "loadPublic", Err: err}
	}
	pub, err := vaultcrypto.ParsePublicKey(k, pemBytes)
	if err != nil {
		return nil, err
	}
	raw, err := vaultcrypto.ToJWK(k, pub)
	if err != nil {
		return nil, err
	}

	m.jwkCacheMu.Lock()
	m.jwkCache[k] = raw
	m.jwkCacheMu.Unlock()

	if m.jwks != nil {
		if err := m.jwks.Upsert(ctx, k, raw); err != nil {
			m.logger.WarnContext(ctx, "best-effort jwks cache upsert failed", slog.String("kid", string(k)), slog.Any("error", err))
		}
	}

	return raw, nil
}

// TriggerDomainRotation is the public entry point the scheduler and the
// rotate-now CLI subcommand call for a single domain.
func (m *Manager) TriggerDomainRotation(ctx context.Context, domain vaultinternal.Domain) (vaultinternal.Kid, RotationOutcome, error) {
	return m.Rotate(ctx, domain)
}

// TriggerImmediateRotation rotates every enabled domain, sequentially, and
// logs (but does not abort on) per-domain failures.
func (m *Manager) TriggerImmediateRotation(ctx context.Context) error {
	domains, err := m.policies.GetAvailableDomains(ctx)
	if err != nil {
		return &vaultinternal.StoreError{Op: "getAvailableDomains", Err: err}
	}
	for _, domain := range domains {
		if _, _, err := m.Rotate(ctx, domain); err != nil {
			m.logger.ErrorContext(ctx, "immediate rotation failed", slog.String("domain", string(domain)), slog.Any("error", err))
		}
	}
	return nil
}

// ScheduleRotation rotates every domain whose policy says it's due. It's the
// body of the scheduler's "key-rotation" task.
func (m *Manager) ScheduleRotation(ctx context.Context, now time.Time) error {
	domains, err := m.policies.GetAvailableDomains(ctx)
	if err != nil {
		return &vaultinternal.StoreError{Op: "getAvailableDomains", Err: err}
	}

	for _, domain := range domains {
		policy, err := m.policies.Get(ctx, domain)
		if err != nil {
			m.logger.WarnContext(ctx, "read rotation policy failed", slog.String("domain", string(domain)), slog.Any("error", err))
			continue
		}
		if policy != nil && policy.ActiveKid != "" && now.Before(policy.NextRotationAt) {
			continue
		}
		if _, outcome, err := m.Rotate(ctx, domain); err != nil {
			m.logger.ErrorContext(ctx, "scheduled rotation failed", slog.String("domain", string(domain)), slog.Any("error", err))
		} else if outcome == RotationSkippedLocked {
			m.logger.InfoContext(ctx, "scheduled rotation skipped, lock held", slog.String("domain", string(domain)), slog.Any("error", vaultinternal.ErrLockUnavailable))
		}
	}
	return nil
}

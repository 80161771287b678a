// Package validate holds the request-shape checks transport handlers run
// before calling into the key-lifecycle engine: domain presence and
// payload well-formedness. It replaces field-specific protobuf validation
// with checks that work against the plain Go request types this vault
// exposes over gRPC and HTTP.
package validate

import (
	"encoding/json"
	"strings"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

// MaxDomainLength bounds tenant identifiers to a sane limit before they're
// used as store keys or filesystem path segments.
const MaxDomainLength = 253

// Domain rejects an empty, oversize, or path-hostile domain string. It does
// not normalize — callers call vault.NormalizeDomain separately once a
// domain passes validation.
func Domain(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &vaultinternal.ValidationError{Reason: "domain is required"}
	}
	if len(trimmed) > MaxDomainLength {
		return &vaultinternal.ValidationError{Reason: "domain exceeds maximum length"}
	}
	if strings.ContainsAny(trimmed, "/\\\x00") {
		return &vaultinternal.ValidationError{Reason: "domain contains illegal characters"}
	}
	return nil
}

// SignPayload parses raw as a JSON object and enforces the size cap. It
// returns the decoded object so the caller (KeyManager.Sign) can merge in
// its own claims.
func SignPayload(raw []byte, maxBytes int) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, &vaultinternal.ValidationError{Reason: "payload is required"}
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, &vaultinternal.ValidationError{Reason: "payload exceeds maximum size"}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &vaultinternal.ValidationError{Reason: "payload is not a JSON object: " + err.Error()}
	}
	return obj, nil
}

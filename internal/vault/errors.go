package vault

import "fmt"

// ValidationError signals a bad caller input (missing domain, non-object
// payload, oversize payload). It is surfaced to the caller, never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Reason }

// MissingKeyError signals there is no active signing key for a domain. It is
// surfaced to the caller and never retried by the core.
type MissingKeyError struct {
	Domain Domain
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("no active signing key for domain %q", e.Domain)
}

// CryptoImportError signals that importing a PEM-encoded key into a usable
// signing key failed. The message must never embed key material.
type CryptoImportError struct {
	Kid    Kid
	Reason string
}

func (e *CryptoImportError) Error() string {
	return fmt.Sprintf("failed to import key %q: %s", e.Kid, e.Reason)
}

// SigningFailedError signals that the RSASSA-PKCS1-v1_5/SHA-256 signing
// primitive itself failed.
type SigningFailedError struct {
	Kid    Kid
	Reason string
}

func (e *SigningFailedError) Error() string {
	return fmt.Sprintf("failed to sign with key %q: %s", e.Kid, e.Reason)
}

// StoreError wraps a transient I/O/DB failure from one of the store ports.
// Inside the collector/cleaner pipelines it causes an IncrementRetry; on the
// sign path it is surfaced directly.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store error during %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// HealthGateFailure is terminal for a garbage record: the cleaner refuses to
// apply a cleanup that would leave the domain's snapshot unhealthy.
type HealthGateFailure struct {
	Domain Domain
	Reason string
}

func (e *HealthGateFailure) Error() string {
	return fmt.Sprintf("cleanup simulation breaks domain health for %q: %s", e.Domain, e.Reason)
}

// ErrLockUnavailable is not an error condition in the usual sense — it's a
// signal that a caller lost the race for a domain's rotation lock and
// should skip this cycle.
var ErrLockUnavailable = fmt.Errorf("rotation lock unavailable")

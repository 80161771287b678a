// Package kid mints key identifiers in the vault's canonical format:
// "<domain>-<YYYYMMDD>-<HHMMSS>-<8 hex chars>".
package kid

import (
	"strings"
	"time"

	"github.com/google/uuid"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

// New mints a kid for domain at instant now. The random suffix comes from a
// v4 UUID's first 8 hex characters, which is enough entropy to make
// same-second collisions for one domain practically impossible.
func New(domain vaultinternal.Domain, now time.Time) vaultinternal.Kid {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return vaultinternal.Kid(strings.Join([]string{
		string(domain),
		now.UTC().Format("20060102"),
		now.UTC().Format("150405"),
		suffix,
	}, "-"))
}

package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New generates a ULID string. IDs generated by one process are strictly increasing,
// so they double as a stable tie-breaker for rows created in the same millisecond.
func New() string {
	return NewAt(time.Now())
}

// NewAt generates a ULID whose timestamp component is t.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Prefixed returns prefix + "_" + a new ULID, e.g. "grp_01J...".
func Prefixed(prefix string) string {
	return prefix + "_" + New()
}

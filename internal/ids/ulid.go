// ABOUTME: Centralizes identifier generation for every kernel entity.
// ABOUTME: Workers, swarms, spawn items, and messages share one time-sortable ID scheme.
package ids

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string using crypto/rand entropy. ULIDs sort
// lexicographically by creation millisecond (IDs minted within the same
// millisecond are not ordered among themselves), which lets storage queries order by
// ID as a stable tiebreaker after createdAt without a secondary column.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Package idgen generates the 64-bit integer identifiers used for every
// entity in this service (requests, decisions, holds, spending windows) and
// folds idempotency keys into a stable deterministic hash.
package idgen

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// NewID returns a positive int64 identifier derived from a UUIDv7. The
// 128-bit UUID is folded into 63 bits (upper half XOR lower half, sign bit
// cleared) so it fits a Postgres BIGINT. The XOR mixes the timestamp bits
// with the UUID's random bits, so IDs are not ordered by creation time.
func NewID() int64 {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the runtime's random source is broken;
		// fall back to a pure-random v4 rather than panic.
		id = uuid.New()
	}
	return fold(id)
}

func fold(id uuid.UUID) int64 {
	hi := uint64(0)
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(id[i])
	}
	lo := uint64(0)
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(id[i])
	}
	folded := hi ^ lo
	// Clear the sign bit so the result fits a signed int64 / BIGINT column.
	folded &= math.MaxInt64
	return int64(folded)
}

// FoldIdempotencyKey derives a stable int64 requestId-space key from a
// caller-supplied idempotency key, used to detect repeated submissions of
// the same logical authorization request before it has been assigned a
// RequestID. xxhash.Sum64 is used instead of a simple string hash fold to
// keep collision probability negligible at service scale.
func FoldIdempotencyKey(idempotencyKey string) int64 {
	h := xxhash.Sum64String(idempotencyKey)
	return int64(h & math.MaxInt64)
}

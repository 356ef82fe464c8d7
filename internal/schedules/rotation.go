// Package schedules materializes automated inspection assignments using a
// deterministic round-robin rotation over persisted pools.
package schedules

import "github.com/google/uuid"

// PickNext selects the next member of an ordered pool. The selection is
// pool[lastIndex mod len(pool)] and the returned cursor points one past it,
// wrapping at the pool boundary. An empty pool yields no selection and
// leaves the cursor unchanged.
func PickNext(pool []uuid.UUID, lastIndex int) (uuid.UUID, int, bool) {
	if len(pool) == 0 {
		return uuid.Nil, lastIndex, false
	}
	idx := lastIndex % len(pool)
	if idx < 0 {
		idx += len(pool)
	}
	next := (idx + 1) % len(pool)
	return pool[idx], next, true
}

package queue

import "errors"

// ErrCapacityExceeded is returned by Enqueue when the store already holds the
// configured maximum number of entries. Existing entries are never evicted to
// make room.
var ErrCapacityExceeded = errors.New("queue capacity exceeded")

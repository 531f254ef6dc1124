// Package delivery drains the durable queue against the remote snippet
// store.
//
// Each entry moves through pending -> delivering -> removed on success,
// back to pending with an exponential backoff timer on a transient failure,
// or to failed once the retry budget is exhausted or the store rejects the
// snippet outright. An in-flight id set makes re-triggering an entry that is
// already being delivered a no-op, and every terminal outcome is broadcast
// to attached observers.
package delivery

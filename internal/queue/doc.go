// Package queue persists captured snippets awaiting delivery to the remote
// store.
//
// The store is the single source of truth for queue entries: enqueue assigns
// the id, success removes the row, and everything in between is a status
// mutation. Capacity is enforced at enqueue time so the queue cannot outgrow
// the session's storage budget.
package queue

// Package daemon wires the save-queue services into a long-running process:
// single-instance locking, the HTTP capture/control API, the connectivity
// monitor, and startup recovery.
package daemon

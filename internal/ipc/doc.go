// Package ipc carries CLI commands to the daemon over JSON-RPC on a Unix
// domain socket.
package ipc

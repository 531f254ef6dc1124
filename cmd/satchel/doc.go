// Package main hosts the satchel CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: capture submission, queue inspection and maintenance,
// health diagnostics, and configuration scaffolding. It centralizes
// configuration resolution and socket discovery so subcommands can focus on
// user experience instead of wiring.
package main

// Package notifications delivers queue events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Only events that need a human (a capture permanently failing)
// push; routine delivery traffic stays in the logs and the broadcast hub.
//
// Extend this package if you need alternative transports; callers depend only
// on the simple Service interface.
package notifications

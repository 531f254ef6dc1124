// Package config loads, validates, and normalizes satchel's TOML
// configuration, including the .env overlay used for secrets.
package config

// Package config loads and validates the gateway's YAML configuration.
//
// Configuration is validated fail-fast at load time: malformed access rules,
// unknown key source types, unknown rate limit key resolvers and unknown bus
// kinds are rejected before the gateway starts serving. A file watcher
// supports live reload of the static file.
package config

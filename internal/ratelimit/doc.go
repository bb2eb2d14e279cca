// Package ratelimit enforces per-route token-bucket quotas against a shared
// Redis store. The check-and-decrement runs as a single atomic Lua script;
// on store failure the limiter fails open so a quota outage never becomes a
// full gateway outage.
package ratelimit

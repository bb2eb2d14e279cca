// Package bus consumes change-notification events that drive cache
// invalidation: full reloads, single-source key reloads, and targeted client
// config invalidations. Redis pub/sub and Kafka subscriber implementations
// are provided; the refresh coordinator probes channel health and falls back
// to polling when the channel is down.
package bus

// Package keys implements the public key registry used to verify signed
// caller credentials: format-specific source loaders, a concurrent key cache,
// and a refresh coordinator driven by change-notification events with a
// polling fallback.
package keys

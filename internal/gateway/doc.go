// Package gateway assembles the HTTP server that runs the admission
// pipeline: correlation id, credential verification, access rules and rate
// limiting, in that order, in front of a per-route upstream forwarder.
package gateway

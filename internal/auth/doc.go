// Package auth verifies signed caller credentials against the key registry
// and validates the resulting claims. Unknown key ids and signature
// mismatches are reported as distinct error kinds so the pipeline can audit
// them separately while still answering the caller uniformly.
package auth

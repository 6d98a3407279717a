// Package validation holds the input guardrails shared across the HTTP
// surface. Limits live here so the middleware stack and individual
// handlers cap the same things the same way.
package validation

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	// Every payload on this surface is a small JSON document; anything
	// larger is hostile or a bug.
	MaxBodySize = 64 * 1024
)

// Header value limits
const (
	// MaxUserAgentLength is the longest User-Agent prefix kept for device
	// summaries on the audit trail. Longer headers are truncated, not
	// rejected: the summary is forensic metadata, never an authorization
	// input.
	MaxUserAgentLength = 512
)

// TruncateHeader clips a header value to max bytes.
func TruncateHeader(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max]
}

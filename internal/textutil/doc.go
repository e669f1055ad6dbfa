// Package textutil provides text helpers shared by the evidence, validator and
// dedupe stages.
//
// The primary use cases are:
//   - Turning vendor recency hints ("3 hours ago", RFC 3339 stamps) into times
//   - Extracting a publication date embedded in an article URL
//   - Normalizing incident titles so near-identical headlines compare equal
package textutil

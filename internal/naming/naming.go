// Package naming canonicalizes bucket names and object search terms so that
// lookups do not depend on how a caller formatted them.
package naming

import "strings"

// Bucket is a normalized bucket name. Values of this type are produced by
// NormalizeBucket; resolvers and operations accept nothing else.
type Bucket string

// String returns the bucket name.
func (b Bucket) String() string { return string(b) }

var bucketReplacer = strings.NewReplacer("_", "-", " ", "-")

// NormalizeBucket lower-cases and trims raw, then replaces underscores and
// spaces with hyphens. NormalizeBucket(NormalizeBucket(x)) == NormalizeBucket(x).
func NormalizeBucket(raw string) Bucket {
	return Bucket(bucketReplacer.Replace(strings.TrimSpace(strings.ToLower(raw))))
}

// SearchTerm reduces a name to the form used for extension-insensitive
// object matching: lower-cased, trimmed, and cut at the first ".".
func SearchTerm(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

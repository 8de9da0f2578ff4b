// Package op provides the foundational operation types for attest.
//
// This package contains type definitions and the fingerprint codec only.
// All other internal packages import op; op imports nothing internal. This
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Fingerprints are SHA-256 digests with domain separation
//   - Variable-length fields are length-prefixed before hashing, never
//     concatenated (injectivity of the encoding is load-bearing)
//   - Invalid tuples are rejected at construction, not silently hashed
package op

// Package ir provides the value representation shared by every stage of
// the translator: bound parameters, SQL literals, update payloads and
// insert records all become ir.Value before compilation.
//
// This package imports nothing internal. All other internal packages
// import ir, which keeps it the foundational layer with no cycles.
//
// Key design constraints:
//   - Value is sealed; type switches over it are exhaustive
//   - No float types; non-integral numbers are decimals (Number)
//   - Canonical JSON (MarshalCanonical) is the only encoding used for
//     fingerprints and golden snapshots
package ir

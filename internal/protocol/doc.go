// Package protocol owns the host <-> embedded frame wire contract.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - tlv payload primitives (tlv)
// - per-kind field requirements (schema)
// - the Message envelope and NavigationEvent shape (this package)
package protocol

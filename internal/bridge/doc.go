// Package bridge owns the host side of the host <-> embedded frame
// message channel.
//
// Ownership boundary:
// - handshake (hello / ready) and readiness state
// - FIFO queue of navigate commands issued before readiness
// - inbound navigate notifications, delivered in arrival order
// - rejection of stale or foreign messages by channel id
// - teardown
package bridge

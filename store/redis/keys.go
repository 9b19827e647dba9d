package redis

// Redis key naming conventions for pulse data.
// All keys are prefixed with "pulse:" to avoid collisions.

const keyPrefix = "pulse:"

// ── Node keys ──

// nodeKey returns the key for a node hash: pulse:node:{id}
func nodeKey(id string) string { return keyPrefix + "node:" + id }

// nodeIDsKey is the Set tracking all node IDs for enumeration.
const nodeIDsKey = keyPrefix + "node_ids"

// ── Query cancellation keys ──

// cancelKey returns the marker key a running query polls to learn it has
// been cancelled: pulse:cancel:{trace_id}
func cancelKey(traceID string) string { return keyPrefix + "cancel:" + traceID }

// cancelChannel is the pub/sub channel cancellation events are published
// on, for executors that prefer push over polling.
const cancelChannel = keyPrefix + "cancel_events"

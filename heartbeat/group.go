package heartbeat

import (
	"context"
	"time"
)

// ReplyOutcome is what the Reply Router hands to a Group after a send
// completes: either the per-group entry of a successful batched reply, or
// the error that the send failed with (transport failure, inner-deadline
// elapsed).
type ReplyOutcome struct {
	Entry *HBReplyEntry
	Err   error
}

// Group is the narrow contract the heartbeat core requires from a
// consensus-group instance. Everything about the group's log, term,
// voting and snapshot state lives behind this interface; the core never
// reaches past it.
type Group interface {
	// GroupID identifies this group for diagnostics and registry lookup.
	GroupID() GroupID

	// NTP returns an opaque diagnostic identity (namespace/topic/partition
	// in systems that shard by those, otherwise any stable label).
	NTP() string

	// IsLeader reports whether heartbeats should be emitted for this
	// group in the current term.
	IsLeader() bool

	// Self returns the local leader's identity for this group.
	Self() VNode

	// ForEachVoter enumerates the current voter set, including self.
	ForEachVoter(fn func(VNode))

	// Meta returns the append-entries preamble as of now.
	Meta() GroupMeta

	// HeartbeatsSuppressed reports whether a prior in-flight heartbeat or
	// replication RPC to this follower has not yet completed.
	HeartbeatsSuppressed(v VNode) bool

	// LastAppendTimestamp is when the most recent successful append
	// (heartbeat or data) to this follower was last observed.
	LastAppendTimestamp(v VNode) time.Time

	// NextFollowerSequence allocates the next per-follower send sequence
	// number. Values handed to a given follower must be strictly
	// increasing for the lifetime of the group handle.
	NextFollowerSequence(v VNode) Seq

	// UpdateSuppressHeartbeats sets or clears the suppression flag for v.
	UpdateSuppressHeartbeats(v VNode, seq Seq, on bool)

	// ShouldReconnectFollower reports whether v's consecutive failures
	// exceed a policy threshold.
	ShouldReconnectFollower(v VNode) bool

	// UpdateHeartbeatStatus records a success/failure observation for v,
	// feeding the reconnect heuristic.
	UpdateHeartbeatStatus(v VNode, ok bool)

	// ProcessAppendEntriesReply integrates a reply (or its absence, as an
	// error) into the group's state. seq and dirtyOffset let the group
	// discard a reply superseded by a later send.
	ProcessAppendEntriesReply(ctx context.Context, origin NodeID, outcome ReplyOutcome, seq Seq, dirtyOffset uint64)

	// BumpHeartbeatRequestErrors increments the group's
	// heartbeat_request_error counter.
	BumpHeartbeatRequestErrors()
}

// Package heartbeat implements the leader heartbeat coordination core for
// a fleet of co-located Raft consensus groups: it batches append-entries
// heartbeats by destination node, fans them out concurrently with bounded
// per-send deadlines, and demultiplexes the replies back into per-group
// state updates.
//
// The core never touches the Raft log, voting or snapshot machinery
// itself; it only calls the narrow Group contract in group.go and the
// Transport contract in transport.go. Both are supplied by the caller.
package heartbeat

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// GroupID names a consensus group. It is opaque, hashable and totally
// ordered (by its underlying byte representation, not by any semantic
// meaning; see Less). Registry iteration and batching do not use this
// order: they follow registry insertion order.
type GroupID uuid.UUID

// NewGroupID generates a fresh, random group identifier.
func NewGroupID() GroupID {
	return GroupID(uuid.New())
}

// String returns the canonical textual form of the identifier.
func (g GroupID) String() string {
	return uuid.UUID(g).String()
}

// Less reports whether g sorts before other. It defines the total order
// required of GroupID; the ordering itself carries no meaning beyond
// determinism.
func (g GroupID) Less(other GroupID) bool {
	return bytes.Compare(g[:], other[:]) < 0
}

// MarshalText renders the identifier the way encoding/json (and anything
// else using the TextMarshaler convention) expects: as its canonical
// string form, not as a raw 16-byte array.
func (g GroupID) MarshalText() ([]byte, error) {
	return uuid.UUID(g).MarshalText()
}

// UnmarshalText parses the canonical string form produced by
// MarshalText.
func (g *GroupID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(g).UnmarshalText(data)
}

// NodeID names a physical peer in the cluster, e.g. its cluster address.
type NodeID string

// VNode identifies a specific incarnation of a node within a group's
// voter configuration. Two VNodes sharing a NodeID but differing in
// Revision are distinct followers: a configuration change produced a new
// incarnation of that slot.
type VNode struct {
	NodeID   NodeID
	Revision uint64
}

// Seq is a per-follower, strictly increasing send sequence number used to
// reject stale replies.
type Seq uint64

// GroupMeta is the append-entries preamble for one group as of now.
type GroupMeta struct {
	Group        GroupID
	PrevLogIndex uint64
	PrevLogTerm  uint64
	CommitIndex  uint64
	CurrentTerm  uint64
}

// HBMeta is the per-group, per-follower, per-tick heartbeat payload
// carried inside a batched request.
type HBMeta struct {
	GroupMeta
	SourceVNode VNode
	TargetVNode VNode
}

// HBRequest is a batched heartbeat request addressed to a single
// destination node: an ordered sequence of HBMeta, each for a distinct
// group whose leader lives locally and whose follower on that node is
// due. Order is insertion order and must be preserved end to end so a
// deterministic registry iteration yields a deterministic batch.
type HBRequest struct {
	Entries []HBMeta
}

// FollowerReqMeta is the in-flight bookkeeping kept for one
// (destination node, group) pair of a batched send.
type FollowerReqMeta struct {
	Seq           Seq
	DirtyOffset   uint64
	FollowerVNode VNode
}

// NodeHeartbeat is a node-addressed batch: the request sent to Target,
// and the bookkeeping needed to route each reply entry back to the
// group that asked for it. The domain of Metas must equal the set of
// groups present in Request.
type NodeHeartbeat struct {
	Target  NodeID
	Request HBRequest
	Metas   map[GroupID]FollowerReqMeta
}

// HBReplyEntry is one group's worth of a batched reply.
type HBReplyEntry struct {
	Group  GroupID
	NodeID NodeID
}

// HBReply is the batched reply to an HBRequest.
type HBReply struct {
	Entries []HBReplyEntry
}

// HeartbeatOptions carries the per-call knobs for a single transport
// send.
type HeartbeatOptions struct {
	Deadline           time.Time
	Compression        bool
	MinCompressionBytes int
}

package heartbeat

import (
	"context"

	"github.com/canonical/raftbeat/logger"
)

// Router demultiplexes one dispatch outcome — a batched reply or a
// transport failure, both addressed by origin node — back into
// per-group state updates on the owning Group handle. It never gates on
// seq itself; seq is threaded through so the group can discard a stale
// reply.
type Router struct {
	registry *Registry
}

// NewRouter builds a Router bound to reg. reg must be the same registry
// the Manager mutates; lookups are only valid while the Manager's mutex
// protects against concurrent Insert/Erase — but Dispatch (and hence
// routing) itself runs entirely within a single dispatch cycle, which
// holds that mutex for its whole duration (§5).
func NewRouter(reg *Registry) *Router {
	return &Router{registry: reg}
}

// RouteError integrates a transport failure (connection error, inner
// deadline elapsed) into every group named by metas.
func (r *Router) RouteError(ctx context.Context, origin NodeID, metas map[GroupID]FollowerReqMeta, sendErr error) {
	for groupID, meta := range metas {
		g, ok := r.registry.Get(groupID)
		if !ok {
			logger.Error("Cannot find consensus group for heartbeat reply", logger.Ctx{"group": groupID, "node": origin})
			continue
		}

		g.UpdateHeartbeatStatus(meta.FollowerVNode, false)
		g.UpdateSuppressHeartbeats(meta.FollowerVNode, meta.Seq, false)
		g.ProcessAppendEntriesReply(ctx, origin, ReplyOutcome{Err: sendErr}, meta.Seq, meta.DirtyOffset)
		g.BumpHeartbeatRequestErrors()
	}
}

// RouteSuccess integrates a successful batched reply. Each reply entry
// is matched against the FollowerReqMeta recorded at send time by group;
// a group missing from the registry (deregistered mid-flight) is logged
// and skipped, same as RouteError.
//
// Per the open question in the design notes: routing always uses the
// FollowerVNode recorded in metas at send time, never any field carried
// in the reply itself, even if the group's configuration changed
// between send and reply.
func (r *Router) RouteSuccess(ctx context.Context, origin NodeID, metas map[GroupID]FollowerReqMeta, reply HBReply) {
	for i := range reply.Entries {
		entry := &reply.Entries[i]

		meta, ok := metas[entry.Group]
		if !ok {
			logger.Error("Reply names a group absent from this send's batch", logger.Ctx{"group": entry.Group, "node": origin})
			continue
		}

		g, ok := r.registry.Get(entry.Group)
		if !ok {
			logger.Error("Cannot find consensus group for heartbeat reply", logger.Ctx{"group": entry.Group, "node": origin})
			continue
		}

		g.UpdateHeartbeatStatus(meta.FollowerVNode, true)
		g.UpdateSuppressHeartbeats(meta.FollowerVNode, meta.Seq, false)
		g.ProcessAppendEntriesReply(ctx, origin, ReplyOutcome{Entry: entry}, meta.Seq, meta.DirtyOffset)
	}
}

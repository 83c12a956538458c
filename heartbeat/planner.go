package heartbeat

import "time"

// Plan is a pure function: given the current time, a registry snapshot
// and the heartbeat interval, it produces the per-node
// batched requests to send this tick and the set of nodes that need a
// forced reconnect before sending. It performs no I/O and must be called
// with the registry stable (i.e. under the Manager's mutex) so the
// snapshot it observes is coherent — see §5 of the design notes.
func Plan(now time.Time, reg *Registry, interval time.Duration) ([]*NodeHeartbeat, map[NodeID]struct{}) {
	lastHeartbeatThreshold := now.Add(-interval)

	pending := make(map[NodeID]*NodeHeartbeat)
	order := make([]NodeID, 0)
	reconnect := make(map[NodeID]struct{})

	pendingFor := func(node NodeID) *NodeHeartbeat {
		nh, ok := pending[node]
		if !ok {
			nh = &NodeHeartbeat{
				Target: node,
				Metas:  make(map[GroupID]FollowerReqMeta),
			}
			pending[node] = nh
			order = append(order, node)
		}

		return nh
	}

	reg.ForEach(func(g Group) {
		if !g.IsLeader() {
			return
		}

		self := g.Self()
		meta := g.Meta()

		g.ForEachVoter(func(v VNode) {
			if v.NodeID == self.NodeID && v.Revision == self.Revision {
				// Self-beat: always sent, never suppressed, seq is always
				// zero since there is no follower sequence to allocate.
				nh := pendingFor(v.NodeID)
				nh.Request.Entries = append(nh.Request.Entries, HBMeta{
					GroupMeta:   meta,
					SourceVNode: self,
					TargetVNode: v,
				})
				nh.Metas[g.GroupID()] = FollowerReqMeta{
					Seq:           0,
					DirtyOffset:   meta.PrevLogIndex,
					FollowerVNode: v,
				}

				return
			}

			if g.HeartbeatsSuppressed(v) {
				return
			}

			if g.LastAppendTimestamp(v).After(lastHeartbeatThreshold) {
				// Piggyback elision: a group that is actively replicating
				// data to v does not also emit an empty heartbeat.
				return
			}

			seq := g.NextFollowerSequence(v)
			g.UpdateSuppressHeartbeats(v, seq, true)

			nh := pendingFor(v.NodeID)
			nh.Request.Entries = append(nh.Request.Entries, HBMeta{
				GroupMeta:   meta,
				SourceVNode: self,
				TargetVNode: v,
			})
			nh.Metas[g.GroupID()] = FollowerReqMeta{
				Seq:           seq,
				DirtyOffset:   meta.PrevLogIndex,
				FollowerVNode: v,
			}

			if g.ShouldReconnectFollower(v) {
				reconnect[v.NodeID] = struct{}{}
			}
		})
	})

	batches := make([]*NodeHeartbeat, 0, len(order))
	for _, node := range order {
		batches = append(batches, pending[node])
	}

	return batches, reconnect
}

package heartbeat

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/canonical/raftbeat/logger"
)

// Dispatcher fans the planner's output out to the transport and routes
// every outcome back into the Reply Router. Concurrency here follows the
// same errgroup fan-out-and-join shape the teacher uses to notify every
// cluster member at once (lxd/cluster/cluster_link.go).
type Dispatcher struct {
	transport  Transport
	selfNodeID NodeID
	timeout    time.Duration
	interval   time.Duration
	router     *Router
}

// NewDispatcher builds a Dispatcher. interval is also the outer
// deadline applied to each non-self send (§4.4): one hung peer must
// never delay the next tick by more than one interval.
func NewDispatcher(transport Transport, selfNodeID NodeID, timeout, interval time.Duration, router *Router) *Dispatcher {
	return &Dispatcher{
		transport:  transport,
		selfNodeID: selfNodeID,
		timeout:    timeout,
		interval:   interval,
		router:     router,
	}
}

// Dispatch issues the forced disconnects sequentially, then fans out the
// batched sends concurrently, waiting for all of them to settle (or be
// abandoned past the outer deadline) before returning.
func (d *Dispatcher) Dispatch(ctx context.Context, batches []*NodeHeartbeat, reconnect map[NodeID]struct{}) {
	for node := range reconnect {
		disconnected, err := d.transport.EnsureDisconnect(ctx, node)
		if err != nil {
			logger.Debug("Forced disconnect failed", logger.Ctx{"node": node, "err": err})
			continue
		}

		if disconnected {
			logger.Info("Forced disconnect of unresponsive node", logger.Ctx{"node": node})
		}
	}

	// Deliberately errgroup.Group, not errgroup.WithContext: the latter's
	// derived context is cancelled the moment Wait returns, which would
	// cancel the RPC context of any send this cycle just abandoned past
	// its outer deadline — exactly the cancellation-on-abandon bug the
	// outer deadline must not cause. ctx itself is passed straight
	// through to every send instead.
	var g errgroup.Group

	for _, nh := range batches {
		nh := nh

		g.Go(func() error {
			d.send(ctx, nh)
			return nil
		})
	}

	// errgroup.Wait never returns an error here: send() never returns one,
	// it always routes the outcome itself. The group only exists to join
	// the goroutines.
	_ = g.Wait()
}

func (d *Dispatcher) send(ctx context.Context, nh *NodeHeartbeat) {
	if nh.Target == d.selfNodeID {
		d.router.RouteSuccess(ctx, nh.Target, nh.Metas, selfReply(nh))
		return
	}

	innerDeadline := time.Now().Add(d.timeout)

	type result struct {
		reply HBReply
		err   error
	}

	// The RPC's own context is derived from ctx alone, never from the
	// outer deadline below: the outer deadline bounds how long the
	// dispatcher waits to observe this send, not the send itself. A
	// transport that hangs past its own deadline is tolerated to complete
	// later with no observer, per the design notes.
	done := make(chan result, 1)
	go func() {
		reply, err := d.transport.Heartbeat(ctx, nh.Target, nh.Request, HeartbeatOptions{
			Deadline:            innerDeadline,
			Compression:         true,
			MinCompressionBytes: 512,
		})
		done <- result{reply: reply, err: err}
	}()

	// Outer deadline: an escape hatch for a transport that hangs past its
	// own deadline. If it elapses first, the send is abandoned silently —
	// no reply is routed, no group state is touched, and the goroutine
	// above is left to finish on its own with its result discarded. Must
	// not be "fixed" by cancelling the RPC's own context or by routing as
	// a failure: either would double-clear suppression and could race
	// with an eventual real reply (see design notes).
	outerTimer := time.NewTimer(d.interval)
	defer outerTimer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			d.router.RouteError(ctx, nh.Target, nh.Metas, r.err)
			return
		}

		d.router.RouteSuccess(ctx, nh.Target, nh.Metas, r.reply)

	case <-outerTimer.C:
		logger.Debug("Abandoning heartbeat send past outer deadline", logger.Ctx{"node": nh.Target})
		return

	case <-ctx.Done():
		logger.Debug("Abandoning heartbeat send: manager shutting down", logger.Ctx{"node": nh.Target})
		return
	}
}

// selfReply fabricates a reply whose per-group entries each carry a
// success status for the leader's own VNode, so a single-node group
// still makes progress without an RPC ever being issued.
func selfReply(nh *NodeHeartbeat) HBReply {
	entries := make([]HBReplyEntry, 0, len(nh.Metas))
	for group, meta := range nh.Metas {
		entries = append(entries, HBReplyEntry{
			Group:  group,
			NodeID: meta.FollowerVNode.NodeID,
		})
	}

	return HBReply{Entries: entries}
}

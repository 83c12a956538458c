package heartbeat_test

import (
	"context"
	"sync"
	"time"

	"github.com/canonical/raftbeat/heartbeat"
)

// fakeGroup is a test double for heartbeat.Group. It records every call
// the core makes so tests can assert on ordering and arguments.
type fakeGroup struct {
	mu sync.Mutex

	id       heartbeat.GroupID
	ntp      string
	isLeader bool
	self     heartbeat.VNode
	voters   []heartbeat.VNode
	meta     heartbeat.GroupMeta

	suppressed map[heartbeat.VNode]bool
	lastAppend map[heartbeat.VNode]time.Time
	nextSeq    map[heartbeat.VNode]heartbeat.Seq
	reconnect  map[heartbeat.VNode]bool

	statusUpdates   []statusUpdate
	suppressUpdates []suppressUpdate
	replies         []replyRecord
	errorBumps      int
}

type statusUpdate struct {
	v  heartbeat.VNode
	ok bool
}

type suppressUpdate struct {
	v   heartbeat.VNode
	seq heartbeat.Seq
	on  bool
}

type replyRecord struct {
	origin      heartbeat.NodeID
	outcome     heartbeat.ReplyOutcome
	seq         heartbeat.Seq
	dirtyOffset uint64
}

func newFakeGroup(id heartbeat.GroupID, self heartbeat.VNode, voters []heartbeat.VNode) *fakeGroup {
	return &fakeGroup{
		id:         id,
		ntp:        id.String(),
		isLeader:   true,
		self:       self,
		voters:     voters,
		meta:       heartbeat.GroupMeta{Group: id},
		suppressed: make(map[heartbeat.VNode]bool),
		lastAppend: make(map[heartbeat.VNode]time.Time),
		nextSeq:    make(map[heartbeat.VNode]heartbeat.Seq),
		reconnect:  make(map[heartbeat.VNode]bool),
	}
}

func (g *fakeGroup) GroupID() heartbeat.GroupID { return g.id }
func (g *fakeGroup) NTP() string                { return g.ntp }

func (g *fakeGroup) IsLeader() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isLeader
}

func (g *fakeGroup) Self() heartbeat.VNode { return g.self }

func (g *fakeGroup) ForEachVoter(fn func(heartbeat.VNode)) {
	g.mu.Lock()
	voters := append([]heartbeat.VNode(nil), g.voters...)
	g.mu.Unlock()

	for _, v := range voters {
		fn(v)
	}
}

func (g *fakeGroup) Meta() heartbeat.GroupMeta {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.meta
}

func (g *fakeGroup) HeartbeatsSuppressed(v heartbeat.VNode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed[v]
}

func (g *fakeGroup) LastAppendTimestamp(v heartbeat.VNode) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAppend[v]
}

func (g *fakeGroup) NextFollowerSequence(v heartbeat.VNode) heartbeat.Seq {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextSeq[v]++
	return g.nextSeq[v]
}

func (g *fakeGroup) UpdateSuppressHeartbeats(v heartbeat.VNode, seq heartbeat.Seq, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suppressed[v] = on
	g.suppressUpdates = append(g.suppressUpdates, suppressUpdate{v: v, seq: seq, on: on})
}

func (g *fakeGroup) ShouldReconnectFollower(v heartbeat.VNode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reconnect[v]
}

func (g *fakeGroup) UpdateHeartbeatStatus(v heartbeat.VNode, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusUpdates = append(g.statusUpdates, statusUpdate{v: v, ok: ok})
}

func (g *fakeGroup) ProcessAppendEntriesReply(ctx context.Context, origin heartbeat.NodeID, outcome heartbeat.ReplyOutcome, seq heartbeat.Seq, dirtyOffset uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replyRecord{origin: origin, outcome: outcome, seq: seq, dirtyOffset: dirtyOffset})
}

func (g *fakeGroup) BumpHeartbeatRequestErrors() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorBumps++
}

func (g *fakeGroup) setSuppressed(v heartbeat.VNode, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suppressed[v] = on
}

func (g *fakeGroup) setLastAppend(v heartbeat.VNode, ts time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastAppend[v] = ts
}

func (g *fakeGroup) setReconnect(v heartbeat.VNode, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reconnect[v] = on
}

func (g *fakeGroup) snapshot() (statusUpdates []statusUpdate, suppressUpdates []suppressUpdate, replies []replyRecord, errorBumps int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]statusUpdate(nil), g.statusUpdates...),
		append([]suppressUpdate(nil), g.suppressUpdates...),
		append([]replyRecord(nil), g.replies...),
		g.errorBumps
}

// fakeTransport is a test double for heartbeat.Transport.
type fakeTransport struct {
	mu sync.Mutex

	sends       []sendRecord
	disconnects []heartbeat.NodeID

	reply     map[heartbeat.NodeID]heartbeat.HBReply
	err       map[heartbeat.NodeID]error
	delay     map[heartbeat.NodeID]time.Duration
	ignoreCtx map[heartbeat.NodeID]bool
	ctxErrs   map[heartbeat.NodeID]error
}

type sendRecord struct {
	target heartbeat.NodeID
	req    heartbeat.HBRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reply:     make(map[heartbeat.NodeID]heartbeat.HBReply),
		err:       make(map[heartbeat.NodeID]error),
		delay:     make(map[heartbeat.NodeID]time.Duration),
		ignoreCtx: make(map[heartbeat.NodeID]bool),
		ctxErrs:   make(map[heartbeat.NodeID]error),
	}
}

func (t *fakeTransport) Heartbeat(ctx context.Context, target heartbeat.NodeID, req heartbeat.HBRequest, opts heartbeat.HeartbeatOptions) (heartbeat.HBReply, error) {
	t.mu.Lock()
	t.sends = append(t.sends, sendRecord{target: target, req: req})
	delay := t.delay[target]
	ignoreCtx := t.ignoreCtx[target]
	reply := t.reply[target]
	sendErr := t.err[target]
	t.mu.Unlock()

	if delay > 0 {
		if ignoreCtx {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				t.recordCtxErr(target, ctx.Err())
				return heartbeat.HBReply{}, ctx.Err()
			}
		}
	}

	// Recorded regardless of outcome so a test can assert that a send
	// still abandoned by the dispatcher's outer deadline was never
	// actually cancelled: its own context only errors here if the caller
	// (not the dispatcher's outer timeout) cancelled it.
	t.recordCtxErr(target, ctx.Err())

	return reply, sendErr
}

func (t *fakeTransport) recordCtxErr(target heartbeat.NodeID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctxErrs[target] = err
}

func (t *fakeTransport) ctxErrsSnapshot() map[heartbeat.NodeID]error {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[heartbeat.NodeID]error, len(t.ctxErrs))
	for k, v := range t.ctxErrs {
		out[k] = v
	}
	return out
}

func (t *fakeTransport) EnsureDisconnect(ctx context.Context, target heartbeat.NodeID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects = append(t.disconnects, target)
	return true, nil
}

func (t *fakeTransport) setReply(target heartbeat.NodeID, reply heartbeat.HBReply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reply[target] = reply
}

func (t *fakeTransport) setErr(target heartbeat.NodeID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err[target] = err
}

func (t *fakeTransport) setDelay(target heartbeat.NodeID, d time.Duration, ignoreCtx bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay[target] = d
	t.ignoreCtx[target] = ignoreCtx
}

func (t *fakeTransport) snapshot() ([]sendRecord, []heartbeat.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sendRecord(nil), t.sends...), append([]heartbeat.NodeID(nil), t.disconnects...)
}

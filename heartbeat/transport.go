package heartbeat

import (
	"context"
	"errors"
)

// ErrTransport is the sentinel a Transport implementation can wrap its
// send failures in, so callers can recognize them with errors.Is; the
// reference httptransport wraps every failure with it. The Reply Router
// does not inspect errors and passes them to the Group unchanged.
var ErrTransport = errors.New("heartbeat: transport failure")

// Transport is the external collaborator that ships batched heartbeat
// RPCs to remote peers. The heartbeat core never serializes or frames
// anything itself; it only calls these two operations.
type Transport interface {
	// Heartbeat sends req to target and waits for a batched reply or a
	// transport-level failure, bounded by opts.Deadline.
	Heartbeat(ctx context.Context, target NodeID, req HBRequest, opts HeartbeatOptions) (HBReply, error)

	// EnsureDisconnect forces the underlying connection to target to
	// tear down, returning whether a connection was actually torn down.
	EnsureDisconnect(ctx context.Context, target NodeID) (bool, error)
}

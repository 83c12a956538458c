package heartbeat

import "errors"

// ErrStopped is returned by RegisterGroup/DeregisterGroup once the
// Manager has been stopped: no further registry mutation is accepted
// after stop() closes the gate.
var ErrStopped = errors.New("heartbeat: manager is stopped")

// ErrAlreadyStarted is returned by Start if called more than once.
var ErrAlreadyStarted = errors.New("heartbeat: manager already started")

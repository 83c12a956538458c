// Command raftbeatd is illustrative wiring: it starts a heartbeat
// Manager backed by the reference HTTP transport and an in-memory group
// registry, the way github.com/canonical/lxd ships small cmd/ binaries
// around its lxd/cluster package. It is not part of the tested core.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canonical/raftbeat/heartbeat"
	"github.com/canonical/raftbeat/httptransport"
	"github.com/canonical/raftbeat/logger"
)

func main() {
	selfAddr := flag.String("address", "127.0.0.1:8443", "this node's cluster address")
	interval := flag.Duration("interval", 150*time.Millisecond, "heartbeat interval")
	timeout := flag.Duration("timeout", 2*time.Second, "per-RPC heartbeat timeout")
	flag.Parse()

	transport := httptransport.New(nil, "/internal/raftbeat/heartbeat")

	manager := heartbeat.NewManager(heartbeat.Config{
		HeartbeatInterval: *interval,
		HeartbeatTimeout:  *timeout,
		SelfNodeID:        heartbeat.NodeID(*selfAddr),
	}, transport)

	if err := manager.Start(); err != nil {
		logger.Error("Failed to start heartbeat manager", logger.Ctx{"err": err})
		os.Exit(1)
	}

	logger.Info("Heartbeat manager started", logger.Ctx{"address": *selfAddr, "interval": *interval})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := manager.Stop(stopCtx); err != nil {
		logger.Error("Heartbeat manager did not stop cleanly", logger.Ctx{"err": err})
		os.Exit(1)
	}

	logger.Info("Heartbeat manager stopped", logger.Ctx{})
}

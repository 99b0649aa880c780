// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package net

import (
	"github.com/jbenet/goprocess"
)

// driver is the swarm-driver task handle described in spec.md §4.3. The
// rust original's driver polls a shared Swarm state machine behind a
// waker/mutex pair because libp2p-rust's Swarm is itself a synchronous,
// single-threaded poll loop. go-libp2p's host.Host has no equivalent
// poll loop to drive: every sub-protocol (DHT, pubsub, the TCP/yamux
// transport) already runs its own background goroutines internally, and
// Behaviour's methods are safe for concurrent use on their own (mu
// in behaviour.go). So here the "driver" owns no event loop; it is the
// process handle spec.md's abort-on-drop semantics map onto, using
// goprocess the way the teacher wires goprocess.WithParent/Go for its own
// background workers.
type driver struct {
	proc goprocess.Process
	b    *Behaviour
}

// newDriver starts the driver process. Its background goroutine does
// nothing but wait for a close signal; the actual work happens inside the
// libp2p host's own goroutines and inside each façade call's dedicated
// query goroutine (net/queries.go, net/behaviour_exchange.go).
func newDriver(b *Behaviour) *driver {
	d := &driver{b: b}
	d.proc = goprocess.Go(func(proc goprocess.Process) {
		<-proc.Closing()
		b.close()
	})
	return d
}

// wake is a no-op retained for parity with spec.md's wake protocol
// ("every façade method that mutates swarm state ... calls waker.wake()").
// Every mutation here already takes effect synchronously under Behaviour's
// own mutex, and every query spawns its own goroutine at submission time,
// so there is no parked poller to wake. Kept as an explicit call site in
// service.go so the façade's shape mirrors spec.md's three method shapes
// exactly, and so a future goroutine-draining driver could be reintroduced
// without touching every call site.
func (d *driver) wake() {}

// Close aborts the driver process, tearing down the behaviour and host on
// the next (and only) run of its goroutine. Idempotent via goprocess's own
// Close semantics.
func (d *driver) Close() error {
	return d.proc.Close()
}

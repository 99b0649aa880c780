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
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.opentelemetry.io/otel/metric/instrument/asyncint64"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"

	"github.com/keplernet/orbitd/errors"
)

// metrics holds every instrument register_metrics installs, grounded on
// spec.md's SUPPLEMENTED FEATURES entry for register_metrics (see
// SPEC_FULL.md): connected-peer gauge, queries-submitted/queries-failed
// counters, and bytes exchanged.
type metrics struct {
	queriesSubmitted syncint64.Counter
	queriesFailed    syncint64.Counter
	bytesSent        syncint64.Counter
	bytesReceived    syncint64.Counter
	connectedPeers   asyncint64.Gauge
}

// registerMetrics installs the behaviour's instruments against provider,
// and wires the connected-peer gauge's async callback to the number of
// open connections reported by b.Connections(), per
// spec.md's "node process reports liveness and peer-count metrics to an
// operator-supplied collector" supplement.
func registerMetrics(b *Behaviour, provider metric.MeterProvider) (*metrics, error) {
	meter := provider.Meter("orbitd.net")

	qs, err := meter.SyncInt64().Counter("orbitd_queries_submitted_total")
	if err != nil {
		return nil, errors.Wrap("failed to create queries_submitted counter", err)
	}
	qf, err := meter.SyncInt64().Counter("orbitd_queries_failed_total")
	if err != nil {
		return nil, errors.Wrap("failed to create queries_failed counter", err)
	}
	bs, err := meter.SyncInt64().Counter("orbitd_bytes_sent_total")
	if err != nil {
		return nil, errors.Wrap("failed to create bytes_sent counter", err)
	}
	br, err := meter.SyncInt64().Counter("orbitd_bytes_received_total")
	if err != nil {
		return nil, errors.Wrap("failed to create bytes_received counter", err)
	}
	cp, err := meter.AsyncInt64().Gauge("orbitd_connected_peers")
	if err != nil {
		return nil, errors.Wrap("failed to create connected_peers gauge", err)
	}

	m := &metrics{
		queriesSubmitted: qs,
		queriesFailed:    qf,
		bytesSent:        bs,
		bytesReceived:    br,
		connectedPeers:   cp,
	}

	if err := meter.RegisterCallback([]instrument.Asynchronous{cp}, func(ctx context.Context) {
		cp.Observe(ctx, int64(len(b.Connections())))
	}); err != nil {
		return nil, errors.Wrap("failed to register connected_peers callback", err)
	}

	return m, nil
}

// observeQuery increments the submitted counter, and the failed counter if
// err is non-nil.
func (m *metrics) observeQuery(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.queriesSubmitted.Add(ctx, 1)
	if err != nil {
		m.queriesFailed.Add(ctx, 1)
	}
}

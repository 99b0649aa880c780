// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// orbitd runs one orbit's networking service: a peer-to-peer overlay node
// holding a content-addressed block store, exposed to the rest of the
// system (authorization, object service, HTTP surface) through the
// interfaces net.NetworkService exposes.
package main

import (
	"context"
	"os"

	"github.com/keplernet/orbitd/cli"
	"github.com/keplernet/orbitd/config"
)

func main() {
	cfg := config.Default()
	ctx := context.Background()
	root := cli.NewOrbitCommand(cfg)
	if err := cli.Execute(ctx, root); err != nil {
		os.Exit(1)
	}
}

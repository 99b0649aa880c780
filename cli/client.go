// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package cli wires the networking core into an operator-facing cobra
// command tree, mirroring the teacher's cli package: a root command with
// persistent --rootdir flag, and subcommands that bind flags into the
// shared viper-backed config.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/keplernet/orbitd/config"
	"github.com/keplernet/orbitd/logging"
	"github.com/keplernet/orbitd/net"
)

var log = logging.MustNewLogger("cli")

// NewOrbitCommand builds the root command, analogous to the teacher's
// NewDefraCommand: a persistent --rootdir flag plus the start subcommand.
func NewOrbitCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "orbitd",
		Short: "orbitd is a decentralized, authorization-gated object storage node",
	}
	root.PersistentFlags().StringVar(&cfg.Rootdir, "rootdir", defaultRootDir(), "directory for persisted identity, config and block store")
	root.AddCommand(MakeStartCommand(cfg))
	return root
}

// Execute runs cmd to completion against ctx, matching the teacher's
// defraCmd.Execute(ctx) call shape in cmd/defradb/main.go.
func Execute(ctx context.Context, cmd *cobra.Command) error {
	cmd.SetContext(ctx)
	return cmd.Execute()
}

func errKV(err error) logging.KV {
	return logging.NewKV("Error", err)
}

func peerKV(svc *net.NetworkService) logging.KV {
	return logging.NewKV("PeerID", svc.LocalPeerID().String())
}

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orbitd"
	}
	return home + "/.orbitd"
}

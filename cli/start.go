// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ds "github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"

	"github.com/keplernet/orbitd/config"
	"github.com/keplernet/orbitd/net"
)

// MakeStartCommand builds the "start" command, mirroring the teacher's
// two-phase PersistentPreRunE (load an existing config, else create one)
// and its load-or-create rootdir handling.
func MakeStartCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an orbit node",
		Long:  "Start a new instance of an orbit's networking service.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.ConfigFileExists() {
				if err := cfg.LoadWithRootdir(true); err != nil {
					return config.NewErrLoadingConfig(err)
				}
			} else {
				if err := cfg.LoadWithRootdir(false); err != nil {
					return config.NewErrLoadingConfig(err)
				}
				if config.FolderExists(cfg.Rootdir) {
					if err := cfg.WriteConfigFile(); err != nil {
						return err
					}
					log.FeedbackInfo(cmd.Context(), "Configuration loaded from orbit directory "+cfg.Rootdir)
				} else {
					if err := cfg.CreateRootDirAndConfigFile(); err != nil {
						return err
					}
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := start(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return wait(cmd.Context(), svc)
		},
	}

	cmd.Flags().String("peers", cfg.Net.Peers, "List of bootstrap peer multiaddrs to connect to")
	bindFlag(cmd, cfg, "net.peers", "peers")

	cmd.Flags().String("p2paddr", cfg.Net.P2PAddress, "Listener address for the p2p network (libp2p multiaddr)")
	bindFlag(cmd, cfg, "net.p2paddress", "p2paddr")

	cmd.Flags().String("relayaddr", cfg.Net.RelayAddr, "Relay-circuit address used as a fallback dial route")
	bindFlag(cmd, cfg, "net.relayaddr", "relayaddr")

	cmd.Flags().Bool("pubsub", cfg.Net.PubSub, "Enable the gossip pubsub sub-protocol")
	bindFlag(cmd, cfg, "net.pubsub", "pubsub")

	return cmd
}

func bindFlag(cmd *cobra.Command, cfg *config.Config, key, flagName string) {
	if err := cfg.BindFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
		log.FeedbackFatalE(context.Background(), "Could not bind "+key, err)
	}
}

// start constructs the networking service for one orbit, per spec.md §4.4
// and §6 ("Persisted state"). The block store itself belongs to the
// object-storage collaborator (spec.md §1's "Out of scope"); start hands the
// service an in-process datastore so the networking core has something to
// exchange and sync blocks against when run standalone.
func start(ctx context.Context, cfg *config.Config) (*net.NetworkService, error) {
	listenAddr, err := ma.NewMultiaddr(cfg.Net.P2PAddress)
	if err != nil {
		return nil, err
	}

	var relayAddr ma.Multiaddr
	if cfg.Net.RelayAddr != "" {
		relayAddr, err = ma.NewMultiaddr(cfg.Net.RelayAddr)
		if err != nil {
			return nil, err
		}
	}

	svc, err := net.New(ctx, net.Config{
		RootDir:     cfg.Rootdir,
		ListenAddrs: []ma.Multiaddr{listenAddr},
		RelayAddr:   relayAddr,
		NodeName:    cfg.Rootdir,
		Blockstore:  blockstore.NewBlockstore(ds.NewMapDatastore()),
	})
	if err != nil {
		return nil, err
	}

	if peers := strings.TrimSpace(cfg.Net.Peers); peers != "" {
		for _, addr := range strings.Split(peers, ",") {
			dialSeedPeer(ctx, svc, addr)
		}
	}

	log.FeedbackInfo(ctx, "Orbit node listening", peerKV(svc))
	return svc, nil
}

// dialSeedPeer adds addr as a user-sourced address and dials it, logging but
// not failing start on a single bad seed peer.
func dialSeedPeer(ctx context.Context, svc *net.NetworkService, addr string) {
	maddr, err := ma.NewMultiaddr(strings.TrimSpace(addr))
	if err != nil {
		log.Error(ctx, "invalid seed peer address", errKV(err))
		return
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		log.Error(ctx, "invalid seed peer address", errKV(err))
		return
	}
	for _, a := range info.Addrs {
		svc.AddAddress(info.ID, a, net.AddressSourceUser)
	}
	if err := svc.Dial(ctx, info.ID); err != nil {
		log.Error(ctx, "failed dialling seed peer", errKV(err))
	}
}

// wait blocks until SIGINT/SIGTERM, then closes the service, mirroring the
// teacher's start command's own signal-driven shutdown wait.
func wait(ctx context.Context, svc *net.NetworkService) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	log.FeedbackInfo(ctx, "Shutting down orbit node")
	return svc.Close()
}

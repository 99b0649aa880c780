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
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/keplernet/orbitd/errors"
)

// identityFileName is the name of the file, relative to an orbit directory,
// that holds the node's persisted private key. Matches spec.md §6: "kp —
// raw identity key bytes."
const identityFileName = "kp"

// PeerIdentity is the node's stable cryptographic identity. It is generated
// once per orbit directory and is immutable for the lifetime of the node.
type PeerIdentity struct {
	PrivateKey crypto.PrivKey
	ID         peer.ID
}

// loadOrCreateIdentity reads dir/kp if present, decoding it as a protobuf
// private key; otherwise it generates a fresh Ed25519 keypair and persists
// it. This mirrors the teacher's load-or-create pattern (cli/start.go's
// config bootstrap) applied to key material instead of config files.
func loadOrCreateIdentity(dir string) (*PeerIdentity, error) {
	path := filepath.Join(dir, identityFileName)

	if bytes, err := os.ReadFile(path); err == nil {
		priv, err := crypto.UnmarshalPrivateKey(bytes)
		if err != nil {
			return nil, errors.Wrap("failed to decode persisted identity", err)
		}
		return identityFromKey(priv)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap("failed to read identity file", err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, errors.Wrap("failed to generate identity", err)
	}
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap("failed to encode identity", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap("failed to create orbit directory", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, errors.Wrap("failed to persist identity", err)
	}
	return identityFromKey(priv)
}

func identityFromKey(priv crypto.PrivKey) (*PeerIdentity, error) {
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap("failed to derive peer id from identity", err)
	}
	return &PeerIdentity{PrivateKey: priv, ID: id}, nil
}

// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package config loads and binds the node's viper-backed configuration,
// mirroring the two-phase "load existing, else create" pattern the teacher's
// cli/start.go PersistentPreRunE implements.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keplernet/orbitd/errors"
)

// NetConfig holds the networking-service section of the config file.
type NetConfig struct {
	P2PAddress  string `mapstructure:"p2paddress"`
	Peers       string `mapstructure:"peers"`
	RelayAddr   string `mapstructure:"relayaddr"`
	PubSub      bool   `mapstructure:"pubsub"`
	RPCAddress  string `mapstructure:"rpcaddress"`
	RPCMaxConns int    `mapstructure:"rpcmaxconns"`
}

// DatastoreConfig holds the block-store / record-store backing options.
type DatastoreConfig struct {
	Store         string      `mapstructure:"store"`
	MaxTxnRetries int         `mapstructure:"maxtxnretries"`
	Badger        BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig mirrors the subset of dgraph-io/badger/v3.Options exposed to
// operators.
type BadgerConfig struct {
	ValueLogFileSize int64 `mapstructure:"valuelogfilesize"`
}

// Config is the root configuration object, bound into viper by BindFlag.
type Config struct {
	Rootdir   string
	Net       NetConfig       `mapstructure:"net"`
	Datastore DatastoreConfig `mapstructure:"datastore"`

	v *viper.Viper
}

// Default returns a Config with the networking core's defaults, matching
// the constants the teacher wires through cli/start.go's flag defaults.
func Default() *Config {
	v := viper.New()
	v.SetEnvPrefix("ORBITD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Net: NetConfig{
			P2PAddress:  "/ip4/0.0.0.0/tcp/9171",
			RPCAddress:  "0.0.0.0:9161",
			RPCMaxConns: 100,
			PubSub:      true,
		},
		Datastore: DatastoreConfig{
			Store:         "badger",
			MaxTxnRetries: 5,
			Badger: BadgerConfig{
				ValueLogFileSize: 1 << 30,
			},
		},
		v: v,
	}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	c.v.SetDefault("net.p2paddress", c.Net.P2PAddress)
	c.v.SetDefault("net.peers", c.Net.Peers)
	c.v.SetDefault("net.relayaddr", c.Net.RelayAddr)
	c.v.SetDefault("net.pubsub", c.Net.PubSub)
	c.v.SetDefault("net.rpcaddress", c.Net.RPCAddress)
	c.v.SetDefault("net.rpcmaxconns", c.Net.RPCMaxConns)
	c.v.SetDefault("datastore.store", c.Datastore.Store)
	c.v.SetDefault("datastore.maxtxnretries", c.Datastore.MaxTxnRetries)
	c.v.SetDefault("datastore.badger.valuelogfilesize", c.Datastore.Badger.ValueLogFileSize)
}

// BindFlag binds a cobra/pflag flag into viper under key, so that CLI flags
// override config-file values and env vars in the usual viper precedence
// order. Mirrors every cfg.BindFlag(...) call in the teacher's cli package.
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	if err := c.v.BindPFlag(key, flag); err != nil {
		return errors.Wrap("failed to bind flag "+key, err)
	}
	return nil
}

// ConfigFileExists reports whether a config.yaml already exists under
// Rootdir.
func (c *Config) ConfigFileExists() bool {
	_, err := os.Stat(filepath.Join(c.Rootdir, "config.yaml"))
	return err == nil
}

// LoadWithRootdir reads config.yaml from Rootdir. If load is false the
// method only prepares viper for a fresh write (used on first start, before
// CreateRootDirAndConfigFile).
func (c *Config) LoadWithRootdir(load bool) error {
	c.v.SetConfigName("config")
	c.v.SetConfigType("yaml")
	c.v.AddConfigPath(c.Rootdir)
	if load {
		if err := c.v.ReadInConfig(); err != nil {
			return errors.Wrap("failed to read config file", err)
		}
	}
	return c.v.Unmarshal(c)
}

// WriteConfigFile persists the current configuration to Rootdir/config.yaml.
func (c *Config) WriteConfigFile() error {
	if err := os.MkdirAll(c.Rootdir, 0o755); err != nil {
		return errors.Wrap("failed to create root dir", err)
	}
	path := filepath.Join(c.Rootdir, "config.yaml")
	if err := c.v.WriteConfigAs(path); err != nil {
		return errors.Wrap("failed to write config file", err)
	}
	return nil
}

// CreateRootDirAndConfigFile creates Rootdir (if missing) and writes a fresh
// config.yaml with defaults.
func (c *Config) CreateRootDirAndConfigFile() error {
	if err := os.MkdirAll(c.Rootdir, 0o755); err != nil {
		return errors.Wrap("failed to create root dir", err)
	}
	return c.WriteConfigFile()
}

// FolderExists reports whether dir exists and is a directory.
func FolderExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// EnvKey converts a dotted viper key into the SCREAMING_SNAKE form used for
// environment-variable overrides, grounded on the teacher's use of
// iancoleman/strcase for config key casing.
func EnvKey(key string) string {
	return strings.ToUpper(strcase.ToSnake(strings.ReplaceAll(key, ".", "_")))
}

// NewErrLoadingConfig wraps a config-loading failure for the CLI layer.
func NewErrLoadingConfig(err error) error {
	return errors.Wrap("loading config", err)
}

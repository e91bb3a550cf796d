// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/horizenofficial/sctest/scconf"
	"github.com/horizenofficial/sctest/scrpc"
	"github.com/horizenofficial/sctest/sctest"
	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

func TestValidLogLevel(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error", "critical"} {
		require.True(t, validLogLevel(level), level)
	}
	require.False(t, validLogLevel("verbose"))
	require.False(t, validLogLevel(""))
}

func TestParseAndSetDebugLevels(t *testing.T) {
	require.NoError(t, parseAndSetDebugLevels("debug"))
	require.NoError(t, parseAndSetDebugLevels("SCTS=trace,RPCC=warn"))
	require.NoError(t, parseAndSetDebugLevels("info"))

	require.Error(t, parseAndSetDebugLevels("loud"))
	require.Error(t, parseAndSetDebugLevels("SCTS=trace,RPCC"))
	require.Error(t, parseAndSetDebugLevels("NOPE=trace"))
	require.Error(t, parseAndSetDebugLevels("SCTS=loud"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "net")
	configFile := filepath.Join(dir, "scbootstrap.conf")
	conf := "[Application Options]\n" +
		"datadir=" + dataDir + "\n" +
		"default=2\n" +
		"timeout=5s\n"
	require.NoError(t, os.WriteFile(configFile, []byte(conf), 0600))

	cfg, err := loadConfig([]string{"--configfile=" + configFile, "--timeout=9s", "--start"})
	require.NoError(t, err)
	require.Equal(t, dataDir, cfg.DataDir)
	require.Equal(t, 2, cfg.Default)
	require.Equal(t, 9*time.Second, cfg.Timeout)
	require.True(t, cfg.Start)
	require.Equal(t, scrpc.DefaultUser, cfg.RPCUser)

	_, err = loadConfig([]string{"--configfile=" + filepath.Join(dir, "missing.conf"), "--default=1"})
	require.Error(t, err)

	_, err = loadConfig([]string{"--configfile=" + configFile, "extra"})
	require.Error(t, err)
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", defaultConfigFilename)
	require.NoError(t, createDefaultConfigFile(path))

	var cfg config
	parser := flags.NewParser(&cfg, flags.None)
	require.NoError(t, flags.NewIniParser(parser).ParseFile(path))
	require.Zero(t, cfg.Default)
}

func TestValidateConfig(t *testing.T) {
	valid := config{Default: 1, Timeout: sctest.DefaultTimeout}
	require.NoError(t, validateConfig(&valid))

	tests := []struct {
		name   string
		mutate func(c *config)
	}{
		{"no source", func(c *config) { c.Default = 0 }},
		{"both sources", func(c *config) { c.NetworkFile = "net.yaml" }},
		{"negative count", func(c *config) { c.Default = -1 }},
		{"connect without start", func(c *config) { c.Connect = true }},
		{"zero timeout", func(c *config) { c.Timeout = 0 }},
	}
	for _, test := range tests {
		c := valid
		test.mutate(&c)
		require.Error(t, validateConfig(&c), test.name)
	}
}

func TestMainchainConfig(t *testing.T) {
	mc := &scconf.Mainchain{Host: "mc:1", User: "u", Pass: "p"}

	c, err := mainchainConfig(&config{}, mc)
	require.NoError(t, err)
	require.Equal(t, "mc:1", c.Host)
	require.Equal(t, "u", c.User)
	require.False(t, c.EnableTLS)

	c, err = mainchainConfig(&config{MCRPCServer: "mc:2", MCRPCPass: "q"}, mc)
	require.NoError(t, err)
	require.Equal(t, "mc:2", c.Host)
	require.Equal(t, "u", c.User)
	require.Equal(t, "q", c.Pass)

	c, err = mainchainConfig(&config{}, &scconf.Mainchain{})
	require.NoError(t, err)
	require.Equal(t, defaultMCRPCServer, c.Host)

	cert := filepath.Join(t.TempDir(), "rpc.cert")
	require.NoError(t, os.WriteFile(cert, []byte("PEM"), 0600))
	c, err = mainchainConfig(&config{MCRPCCert: cert}, mc)
	require.NoError(t, err)
	require.True(t, c.EnableTLS)
	require.Equal(t, []byte("PEM"), c.Certificates)

	_, err = mainchainConfig(&config{MCRPCCert: cert + ".missing"}, mc)
	require.Error(t, err)
}

func TestNetworkConfiguration(t *testing.T) {
	network, err := scconf.ParseNetwork([]byte(`
sidechain:
  id: sc1
  forwardAmount: 2.5
  withdrawalEpochLength: 10
nodes:
  - {}
  - mcConnection:
      address: ws://mc2:8888
      connectionTimeout: 50
`))
	require.NoError(t, err)

	scNetwork, err := networkConfiguration(network, nil)
	require.NoError(t, err)
	require.Equal(t, "sc1", scNetwork.Creation.SidechainID)
	require.Equal(t, btcutil.Amount(250000000), scNetwork.Creation.ForwardAmount)
	require.Equal(t, 10, scNetwork.Creation.WithdrawalEpochLength)
	require.Len(t, scNetwork.Nodes, 2)
	require.Nil(t, scNetwork.Nodes[0].MCConnection)
	require.Equal(t, &sctest.MCConnectionInfo{
		Address:           "ws://mc2:8888",
		ConnectionTimeout: 50,
	}, scNetwork.Nodes[1].MCConnection)
}

func TestConfigureDefaultNetwork(t *testing.T) {
	dir := t.TempDir()
	cfg := &config{DataDir: dir, Default: 3, Timeout: time.Second}

	n, err := configureNetwork(context.Background(), cfg, sctest.PortAllocator{PID: 7})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.FileExists(t, scconf.ConfigPath(dir, 2))
}

// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/horizenofficial/sctest/internal/log"
	"github.com/horizenofficial/sctest/internal/version"
	"github.com/horizenofficial/sctest/mcutil"
	"github.com/horizenofficial/sctest/scconf"
	"github.com/horizenofficial/sctest/sctest"
	"github.com/horizenofficial/sctest/sctool"
	"github.com/jessevdk/go-flags"
)

// livenessInterval is the delay between two liveness checks of the running
// nodes.
const livenessInterval = time.Second

// scbootstrapMain is the real main function for scbootstrap.  It is necessary
// to work around the fact that deferred functions do not run when os.Exit()
// is called.
func scbootstrapMain() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if err := log.InitLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer log.LogRotator.Close()

	scbtLog.Infof("Version %s", version.String())

	interrupt := interruptListener()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-interrupt
		cancel()
	}()

	ports := sctest.NewPortAllocator()
	n, err := configureNetwork(ctx, cfg, ports)
	if err != nil {
		scbtLog.Errorf("Unable to configure the network: %v", err)
		return err
	}
	if !cfg.Start || interruptRequested(interrupt) {
		return nil
	}

	return runNetwork(cfg, ports, n, interrupt)
}

// configureNetwork writes the configuration of every node below the data
// directory and returns the number of configured nodes.
func configureNetwork(ctx context.Context, cfg *config, ports sctest.PortAllocator) (int, error) {
	var endpoints []scconf.NodeEndpoint
	if cfg.Default > 0 {
		var err error
		endpoints, err = sctest.InitializeDefaultChain(cfg.DataDir, cfg.Default, ports)
		if err != nil {
			return 0, err
		}
	} else {
		var err error
		endpoints, err = bootstrapNetwork(ctx, cfg, ports)
		if err != nil {
			return 0, err
		}
	}

	for _, ep := range endpoints {
		scbtLog.Infof("Configured %s with API at %s", ep.Name, ep.URL)
	}
	return len(endpoints), nil
}

// bootstrapNetwork creates the sidechain described by the network file and
// configures its nodes.
func bootstrapNetwork(ctx context.Context, cfg *config, ports sctest.PortAllocator) ([]scconf.NodeEndpoint, error) {
	network, err := scconf.LoadNetwork(cfg.NetworkFile)
	if err != nil {
		return nil, err
	}

	mcCfg, err := mainchainConfig(cfg, &network.Mainchain)
	if err != nil {
		return nil, err
	}
	mc, err := mcutil.New(mcCfg)
	if err != nil {
		return nil, err
	}
	defer mc.Shutdown()

	scNetwork, err := networkConfiguration(network, mc)
	if err != nil {
		return nil, err
	}

	tool := sctool.New(&sctool.Config{
		Java:      cfg.Java,
		ClassPath: cfg.ToolClassPath,
	})
	b := sctest.NewBootstrapper(&sctest.BootstrapConfig{
		Keys:    tool,
		Genesis: tool,
		Ports:   &ports,
		Timeout: cfg.Timeout,
	})

	info, endpoints, err := b.Bootstrap(ctx, cfg.DataDir, scNetwork)
	if err != nil {
		return nil, err
	}
	scbtLog.Infof("Bootstrapped sidechain %s anchored at mainchain height %d",
		info.SidechainID, info.MainchainBlockHeight)
	scbtLog.Debugf("Bootstrap info: %v", newLogClosure(func() string {
		return spew.Sdump(info)
	}))

	return endpoints, nil
}

// mainchainConfig merges the mainchain endpoint of the network file with the
// command line overrides.
func mainchainConfig(cfg *config, mc *scconf.Mainchain) (*mcutil.Config, error) {
	c := &mcutil.Config{
		Host: mc.Host,
		User: mc.User,
		Pass: mc.Pass,
	}
	if cfg.MCRPCServer != "" {
		c.Host = cfg.MCRPCServer
	}
	if c.Host == "" {
		c.Host = defaultMCRPCServer
	}
	if cfg.MCRPCUser != "" {
		c.User = cfg.MCRPCUser
	}
	if cfg.MCRPCPass != "" {
		c.Pass = cfg.MCRPCPass
	}

	if cfg.MCRPCCert != "" {
		certs, err := os.ReadFile(cfg.MCRPCCert)
		if err != nil {
			return nil, err
		}
		c.EnableTLS = true
		c.Certificates = certs
	}
	return c, nil
}

// networkConfiguration converts a network file into the bootstrap input,
// creating the sidechain through mc.
func networkConfiguration(network *scconf.Network, mc sctest.SidechainCreator) (*sctest.SCNetworkConfiguration, error) {
	amount, err := btcutil.NewAmount(network.Sidechain.ForwardAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid forward amount: %w", err)
	}

	nodes := make([]sctest.SCNodeConfiguration, 0, len(network.Nodes))
	for _, node := range network.Nodes {
		var nc sctest.SCNodeConfiguration
		if c := node.MCConnection; c != nil {
			nc.MCConnection = &sctest.MCConnectionInfo{
				Address:                 c.Address,
				ConnectionTimeout:       c.ConnectionTimeout,
				ReconnectionDelay:       c.ReconnectionDelay,
				ReconnectionMaxAttempts: c.ReconnectionMaxAttempts,
			}
		}
		nodes = append(nodes, nc)
	}

	return &sctest.SCNetworkConfiguration{
		Creation: sctest.SCCreationInfo{
			MainchainNode:         mc,
			SidechainID:           network.Sidechain.ID,
			ForwardAmount:         amount,
			WithdrawalEpochLength: network.Sidechain.WithdrawalEpochLength,
		},
		Nodes: nodes,
	}, nil
}

// runNetwork starts n configured nodes and keeps them running until an
// interrupt is received or every node exited.  Nodes are killed on return.
func runNetwork(cfg *config, ports sctest.PortAllocator, n int, interrupt <-chan struct{}) error {
	wait := &sctest.WaitOptions{Timeout: cfg.Timeout}
	s := sctest.NewSession(&sctest.SessionConfig{
		WorkDir: cfg.DataDir,
		Ports:   &ports,
		Wait:    wait,
	})
	defer func() {
		if err := s.StopAll(); err != nil {
			scbtLog.Errorf("Unable to stop every node: %v", err)
		}
	}()

	opts := make([]*sctest.NodeOptions, n)
	for i := range opts {
		opts[i] = &sctest.NodeOptions{
			Binary:  cfg.Binary,
			RPCUser: cfg.RPCUser,
			RPCPass: cfg.RPCPass,
		}
	}
	clients, err := s.StartAll(n, opts)
	if err != nil {
		scbtLog.Errorf("Unable to start the network: %v", err)
		return err
	}
	scbtLog.Infof("Started %d %s", n, log.PickNoun(n, "node", "nodes"))

	if cfg.Connect {
		for i := 0; i+1 < n; i++ {
			if err := s.ConnectNodesBi(clients, i, i+1); err != nil {
				scbtLog.Errorf("Unable to connect nodes: %v", err)
				return err
			}
		}
		if err := sctest.SyncBlocks(clients, wait); err != nil {
			scbtLog.Errorf("Unable to sync blocks: %v", err)
			return err
		}
		scbtLog.Infof("Nodes connected and synced")
	}

	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-interrupt:
			return nil

		case <-ticker.C:
		}

		for _, i := range s.Nodes() {
			status, err := s.CheckAlive(i)
			if err != nil || status.Running {
				continue
			}
			scbtLog.Warnf("Node%d exited with status %d", i, status.ExitCode)
			if err := s.Stop(i); err != nil {
				scbtLog.Errorf("Unable to stop node%d: %v", i, err)
			}
		}
		if s.Len() == 0 {
			return errors.New("every node exited")
		}
	}
}

func main() {
	if err := scbootstrapMain(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

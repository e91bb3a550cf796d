// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/horizenofficial/sctest/mcutil"
	"github.com/horizenofficial/sctest/scconf"
	"github.com/horizenofficial/sctest/sctool"
)

// KeyGenerator derives a key pair from a seed.
type KeyGenerator interface {
	GenerateKey(ctx context.Context, seed string) (*sctool.KeyPair, error)
}

// GenesisGenerator builds sidechain genesis data from the mainchain linkage
// data and the genesis account secret.
type GenesisGenerator interface {
	GenesisInfo(ctx context.Context, info, secret string) (*sctool.GenesisData, error)
}

// SidechainCreator submits sidechain creation transactions to a mainchain
// node.
type SidechainCreator interface {
	CreateSidechain(ctx context.Context, req *mcutil.SidechainRequest) (*mcutil.SidechainResult, error)
}

// ConfigWriter materializes the configuration file of one node.
type ConfigWriter interface {
	WriteNode(dir string, v *scconf.NodeValues) (scconf.NodeEndpoint, error)
}

// State is a step of the bootstrap workflow.
type State int

// Bootstrap states, in the order they are reached.  Failed is terminal: a
// failed bootstrap is not resumable.
const (
	Unbootstrapped State = iota
	KeysGenerated
	SidechainCreated
	GenesisReady
	NodeConfigured
	Bootstrapped
	Failed
)

var stateStrings = map[State]string{
	Unbootstrapped:   "Unbootstrapped",
	KeysGenerated:    "KeysGenerated",
	SidechainCreated: "SidechainCreated",
	GenesisReady:     "GenesisReady",
	NodeConfigured:   "NodeConfigured",
	Bootstrapped:     "Bootstrapped",
	Failed:           "Failed",
}

// String returns the State as a human-readable name.
func (s State) String() string {
	if str := stateStrings[s]; str != "" {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", int(s))
}

// BootstrapConfig wires the collaborators of a Bootstrapper.
type BootstrapConfig struct {
	// Keys generates the genesis account.  Required.
	Keys KeyGenerator

	// Genesis produces the sidechain genesis block.  Required.
	Genesis GenesisGenerator

	// Configs writes node configuration files.  Defaults to
	// scconf.NewWriter().
	Configs ConfigWriter

	// Ports derives node ports.  Defaults to NewPortAllocator().
	Ports *PortAllocator

	// Timeout bounds the key generation, sidechain creation and genesis
	// stages together.  Zero leaves them bounded by the caller context
	// only.
	Timeout time.Duration
}

// Bootstrapper produces the genesis data and the node configuration files
// of one test network.  It runs once: generate the genesis account, create
// the sidechain on the mainchain, retrieve the genesis block, then write one
// configuration per node.  No stage is retried and a failure aborts the
// whole bootstrap.
type Bootstrapper struct {
	keys    KeyGenerator
	genesis GenesisGenerator
	configs ConfigWriter
	ports   PortAllocator
	timeout time.Duration

	state State
}

// NewBootstrapper returns a Bootstrapper in the Unbootstrapped state.
func NewBootstrapper(cfg *BootstrapConfig) *Bootstrapper {
	b := &Bootstrapper{
		keys:    cfg.Keys,
		genesis: cfg.Genesis,
		configs: cfg.Configs,
		timeout: cfg.Timeout,
	}
	if b.configs == nil {
		b.configs = scconf.NewWriter()
	}
	if cfg.Ports != nil {
		b.ports = *cfg.Ports
	} else {
		b.ports = NewPortAllocator()
	}
	return b
}

// State returns the current bootstrap state.
func (b *Bootstrapper) State() State {
	return b.state
}

func (b *Bootstrapper) advance(s State) {
	log.Debugf("Bootstrap state %v -> %v", b.state, s)
	b.state = s
}

// stageError marks the bootstrap failed and classifies err.
func (b *Bootstrapper) stageError(ctx context.Context, op string, err error) error {
	b.advance(Failed)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e := timeoutError(op)
		e.Err = err
		return e
	}
	return collaboratorError(op, err)
}

// Bootstrap creates the sidechain described by network and writes the
// configuration of each of its nodes below dir, node i in sc_node<i>.
func (b *Bootstrapper) Bootstrap(ctx context.Context, dir string,
	network *SCNetworkConfiguration) (*BootstrapInfo, []scconf.NodeEndpoint, error) {

	info, err := b.CreateSidechain(ctx, &network.Creation)
	if err != nil {
		return nil, nil, err
	}

	endpoints := make([]scconf.NodeEndpoint, 0, len(network.Nodes))
	for i := range network.Nodes {
		ep, err := b.BootstrapNode(dir, i, info, &network.Nodes[i])
		if err != nil {
			return nil, nil, err
		}
		endpoints = append(endpoints, ep)
	}

	b.advance(Bootstrapped)
	return info, endpoints, nil
}

// CreateSidechain runs the key generation, sidechain creation and genesis
// retrieval stages.
func (b *Bootstrapper) CreateSidechain(ctx context.Context, creation *SCCreationInfo) (*BootstrapInfo, error) {
	if b.state != Unbootstrapped {
		return nil, stateError("create sidechain",
			fmt.Sprintf("bootstrapper is %v", b.state))
	}
	if creation.MainchainNode == nil {
		return nil, errors.New("create sidechain: no mainchain node")
	}
	if creation.SidechainID == "" {
		return nil, errors.New("create sidechain: no sidechain id")
	}

	forwardAmount := creation.ForwardAmount
	if forwardAmount == 0 {
		forwardAmount = DefaultForwardAmount
	}
	epochLength := creation.WithdrawalEpochLength
	if epochLength == 0 {
		epochLength = DefaultWithdrawalEpochLength
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	kp, err := b.keys.GenerateKey(ctx, creation.SidechainID+"_1")
	if err != nil {
		return nil, b.stageError(ctx, "generating keys", err)
	}
	b.advance(KeysGenerated)

	res, err := creation.MainchainNode.CreateSidechain(ctx, &mcutil.SidechainRequest{
		SidechainID:           creation.SidechainID,
		WithdrawalEpochLength: epochLength,
		Outputs: []mcutil.Output{{
			Address: kp.PublicKey,
			Amount:  forwardAmount,
		}},
	})
	if err != nil {
		return nil, b.stageError(ctx, "creating sidechain", err)
	}
	b.advance(SidechainCreated)
	log.Infof("Sidechain created with id: %s", creation.SidechainID)

	gd, err := b.genesis.GenesisInfo(ctx, res.GenesisInfo, kp.Secret)
	if err != nil {
		return nil, b.stageError(ctx, "generating genesis data", err)
	}
	b.advance(GenesisReady)

	// The stored secret is cut to its first half while the public key is
	// kept whole.  Nodes are known to start with this value, but whether
	// the genesis secret format really expects it is unconfirmed.
	secret := kp.Secret[:len(kp.Secret)/2]

	return &BootstrapInfo{
		SidechainID: creation.SidechainID,
		GenesisAccount: Account{
			Secret:    secret,
			PublicKey: kp.PublicKey,
		},
		ForwardAmount:         forwardAmount,
		MainchainBlockHeight:  res.BlockHeight,
		GenesisBlockHex:       gd.GenesisBlockHex,
		PowData:               gd.PowData,
		Network:               gd.MainchainNetwork,
		WithdrawalEpochLength: epochLength,
	}, nil
}

// BootstrapNode writes the configuration of node n below dir.  It may only
// be called once the genesis data is available.
func (b *Bootstrapper) BootstrapNode(dir string, n int, info *BootstrapInfo,
	node *SCNodeConfiguration) (scconf.NodeEndpoint, error) {

	op := fmt.Sprintf("configuring node%d", n)
	if b.state != GenesisReady && b.state != NodeConfigured {
		return scconf.NodeEndpoint{}, stateError(op,
			fmt.Sprintf("bootstrapper is %v", b.state))
	}

	mc := node.mcConnection()
	ep, err := b.configs.WriteNode(dir, &scconf.NodeValues{
		NodeNumber:              n,
		Directory:               dir,
		WalletSeed:              walletSeed(n),
		APIAddress:              LocalHost,
		APIPort:                 b.ports.RPCPort(n),
		BindPort:                b.ports.P2PPort(n),
		GenesisSecrets:          info.GenesisAccount.Secret + info.GenesisAccount.PublicKey,
		SidechainID:             info.SidechainID,
		GenesisData:             info.GenesisBlockHex,
		PowData:                 info.PowData,
		BlockHeight:             info.MainchainBlockHeight,
		Network:                 info.Network,
		WithdrawalEpochLength:   info.WithdrawalEpochLength,
		WebsocketAddress:        mc.Address,
		ConnectionTimeout:       mc.ConnectionTimeout,
		ReconnectionDelay:       mc.ReconnectionDelay,
		ReconnectionMaxAttempts: mc.ReconnectionMaxAttempts,
	})
	if err != nil {
		b.advance(Failed)
		return scconf.NodeEndpoint{}, collaboratorError(op, err)
	}

	b.advance(NodeConfigured)
	return ep, nil
}

// walletSeed returns the deterministic wallet seed of node n.
func walletSeed(n int) string {
	return fmt.Sprintf("sidechain_seed_%d", n)
}

// predefinedGenesisSecrets are the genesis secrets matching the genesis
// block compiled into the simple app, by node index.
var predefinedGenesisSecrets = []string{
	"6882a61d8a23a9582c7c7e659466524880953fa25d983f29a8e3aa745ee6de5c0c97174767fd137f1cf2e37f2e48198a11a3de60c4a060211040d7159b769266",
	"905e2e581615ba0eff2bcd9fb666b4f6f6ed99ddd05208ae7918a25dc6ea6179c958724e7f4c44fd196d27f3384d2992a9c42485888862a20dcec670f3c08a4e",
	"80b9a06608fa5dbd11fb72d28b9df49f6ac69f0e951ca1d9e67abd404559606be9b36fb5ae7e74cc50603b161a5c31d26035f6a59e602294d9900740d6c4007f",
}

// InitializeDefaultChain writes configurations for n nodes relying on the
// genesis block compiled into the node, skipping the bootstrap workflow.
// Only as many nodes as there are predefined genesis secrets are supported.
func InitializeDefaultChain(dir string, n int, ports PortAllocator) ([]scconf.NodeEndpoint, error) {
	if n > len(predefinedGenesisSecrets) {
		return nil, fmt.Errorf("at most %d nodes have a predefined genesis, "+
			"%d requested", len(predefinedGenesisSecrets), n)
	}

	w := scconf.NewWriter()
	endpoints := make([]scconf.NodeEndpoint, 0, n)
	for i := 0; i < n; i++ {
		ep, err := w.WriteDefaultNode(dir, &scconf.NodeValues{
			NodeNumber:     i,
			Directory:      dir,
			WalletSeed:     walletSeed(i),
			APIAddress:     LocalHost,
			APIPort:        ports.RPCPort(i),
			BindPort:       ports.P2PPort(i),
			GenesisSecrets: predefinedGenesisSecrets[i],
		})
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

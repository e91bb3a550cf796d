// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"github.com/btcsuite/btcd/btcutil"
)

// Account is a sidechain account seeded in the genesis block.
type Account struct {
	Secret    string
	PublicKey string
}

// BootstrapInfo is the outcome of bootstrapping a sidechain.  It is shared
// by the configuration of every node of the network and is never modified
// once returned.
type BootstrapInfo struct {
	SidechainID string

	// GenesisAccount holds the first half of the generated secret
	// together with the full public key.
	GenesisAccount Account

	ForwardAmount         btcutil.Amount
	MainchainBlockHeight  int64
	GenesisBlockHex       string
	PowData               string
	Network               string
	WithdrawalEpochLength int
}

// MCConnectionInfo configures the websocket connection from a sidechain
// node to its mainchain node.
type MCConnectionInfo struct {
	// Address is the websocket URL of the mainchain node.
	Address string

	// ConnectionTimeout bounds one connection attempt, in seconds.
	ConnectionTimeout int

	// ReconnectionDelay is the pause between two attempts, in seconds.
	ReconnectionDelay int

	// ReconnectionMaxAttempts bounds the attempts after a disconnection.
	ReconnectionMaxAttempts int
}

// DefaultMCConnectionInfo returns the connection parameters used by nodes
// that do not configure their own.
func DefaultMCConnectionInfo() MCConnectionInfo {
	return MCConnectionInfo{
		Address:                 "ws://localhost:8888",
		ConnectionTimeout:       100,
		ReconnectionDelay:       1,
		ReconnectionMaxAttempts: 1,
	}
}

const (
	// DefaultForwardAmount is the forward transfer of a sidechain
	// creation when none is given.
	DefaultForwardAmount btcutil.Amount = 100 * btcutil.SatoshiPerBitcoin

	// DefaultWithdrawalEpochLength is the withdrawal epoch length used
	// when none is given.
	DefaultWithdrawalEpochLength = 1000
)

// SCCreationInfo describes the sidechain creation transaction.
type SCCreationInfo struct {
	// MainchainNode is the node the creation transaction is sent to.
	// Required.
	MainchainNode SidechainCreator

	// SidechainID identifies the new sidechain and seeds its genesis
	// account.  Required.
	SidechainID string

	// ForwardAmount is credited to the genesis account.  Zero selects
	// DefaultForwardAmount.
	ForwardAmount btcutil.Amount

	// WithdrawalEpochLength is in mainchain blocks.  Zero selects
	// DefaultWithdrawalEpochLength.
	WithdrawalEpochLength int
}

// SCNodeConfiguration describes one sidechain node of a network.
type SCNodeConfiguration struct {
	// MCConnection is nil to use DefaultMCConnectionInfo.
	MCConnection *MCConnectionInfo
}

// mcConnection returns the effective mainchain connection parameters.
func (c *SCNodeConfiguration) mcConnection() MCConnectionInfo {
	if c == nil || c.MCConnection == nil {
		return DefaultMCConnectionInfo()
	}
	return *c.MCConnection
}

// SCNetworkConfiguration describes a whole sidechain test network: how the
// sidechain is created and, in index order, its nodes.
type SCNetworkConfiguration struct {
	Creation SCCreationInfo
	Nodes    []SCNodeConfiguration
}

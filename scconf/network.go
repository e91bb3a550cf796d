// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scconf

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Network is the on-disk description of a sidechain test network.
type Network struct {
	Sidechain Sidechain  `yaml:"sidechain"`
	Mainchain Mainchain  `yaml:"mainchain"`
	Nodes     []NodeFile `yaml:"nodes"`
}

// Sidechain carries the parameters of the creation transaction.
type Sidechain struct {
	ID string `yaml:"id"`

	// ForwardAmount is expressed in whole coins.
	ForwardAmount         float64 `yaml:"forwardAmount"`
	WithdrawalEpochLength int     `yaml:"withdrawalEpochLength"`
}

// Mainchain is the RPC endpoint of the node anchoring the sidechain.
type Mainchain struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// NodeFile describes one sidechain node.
type NodeFile struct {
	// MCConnection is left nil to select the default mainchain
	// connection parameters.
	MCConnection *MCConnection `yaml:"mcConnection"`
}

// MCConnection configures the websocket link from a sidechain node to its
// mainchain node.
type MCConnection struct {
	Address                 string `yaml:"address"`
	ConnectionTimeout       int    `yaml:"connectionTimeout"`
	ReconnectionDelay       int    `yaml:"reconnectionDelay"`
	ReconnectionMaxAttempts int    `yaml:"reconnectionMaxAttempts"`
}

// LoadNetwork reads and validates the network description at path.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNetwork(data)
}

// ParseNetwork decodes and validates a YAML network description.
func ParseNetwork(data []byte) (*Network, error) {
	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unable to decode network: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Validate checks the description is complete enough to bootstrap.
func (n *Network) Validate() error {
	switch {
	case n.Sidechain.ID == "":
		return errors.New("sidechain id is required")
	case n.Sidechain.ForwardAmount <= 0:
		return errors.New("sidechain forward amount must be positive")
	case n.Sidechain.WithdrawalEpochLength <= 0:
		return errors.New("withdrawal epoch length must be positive")
	case len(n.Nodes) == 0:
		return errors.New("at least one sidechain node is required")
	}
	for i, node := range n.Nodes {
		if node.MCConnection != nil && node.MCConnection.Address == "" {
			return fmt.Errorf("node %d: mainchain connection address "+
				"is required", i)
		}
	}
	return nil
}

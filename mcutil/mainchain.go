// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mcutil talks to a mainchain node over its JSON-RPC interface in
// order to anchor new sidechains and inspect the mainchain blocks a
// sidechain references.
package mcutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
)

// RawRequester is the subset of *rpcclient.Client used by Node.
type RawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// Config describes the mainchain node RPC endpoint.
type Config struct {
	Host string
	User string
	Pass string

	// EnableTLS selects https.  Test mainchain nodes run without TLS.
	EnableTLS bool

	// Certificates holds PEM encoded certificates accepted when
	// EnableTLS is set.
	Certificates []byte
}

// Node is a handle to one mainchain node.
type Node struct {
	name     string
	client   RawRequester
	shutdown func()
}

// New connects to the mainchain node described by cfg.  Requests are sent
// in HTTP POST mode so no persistent connection is kept.
func New(cfg *Config) (*Node, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   !cfg.EnableTLS,
		Certificates: cfg.Certificates,
	}, nil)
	if err != nil {
		return nil, err
	}

	return &Node{
		name:     cfg.Host,
		client:   client,
		shutdown: client.Shutdown,
	}, nil
}

// NewWithClient returns a Node issuing requests through client.
func NewWithClient(name string, client RawRequester) *Node {
	return &Node{name: name, client: client}
}

// String returns the node name, its RPC host unless overridden.
func (n *Node) String() string {
	return n.name
}

// Shutdown releases the underlying RPC client.
func (n *Node) Shutdown() {
	if n.shutdown != nil {
		n.shutdown()
	}
}

// request marshals params, issues method and decodes the reply into result.
// It gives up waiting for the reply once ctx is done; the abandoned request
// is left to complete in the background.
func (n *Node) request(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		rawParams = append(rawParams, b)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	log.Tracef("%s: %s %s", n.name, method, rawParams)

	type rawReply struct {
		result json.RawMessage
		err    error
	}
	replyChan := make(chan rawReply, 1)
	go func() {
		r, err := n.client.RawRequest(method, rawParams)
		replyChan <- rawReply{r, err}
	}()

	var reply json.RawMessage
	select {
	case r := <-replyChan:
		if r.err != nil {
			return fmt.Errorf("%s: %w", method, r.err)
		}
		reply = r.result

	case <-ctx.Done():
		log.Debugf("%s: abandoned %s: %v", n.name, method, ctx.Err())
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(reply, result); err != nil {
		return fmt.Errorf("%s: malformed reply: %w", method, err)
	}
	return nil
}

// Output is one forward transfer of a sidechain creation transaction.
type Output struct {
	// Address is the sidechain public key credited by the transfer.
	Address string

	Amount btcutil.Amount
}

// SidechainRequest describes a sidechain creation transaction.
type SidechainRequest struct {
	SidechainID           string
	WithdrawalEpochLength int
	Outputs               []Output
}

// SidechainResult is the mainchain side of a new sidechain.
type SidechainResult struct {
	// GenesisInfo is the opaque linkage data consumed by the sidechain
	// genesis generator.
	GenesisInfo string

	// BlockHeight is the mainchain height after the creation transaction
	// was mined.
	BlockHeight int64
}

// ErrNoOutputs is returned for a creation request without forward
// transfers.
var ErrNoOutputs = errors.New("sidechain creation requires at least one forward transfer")

// CreateSidechain submits the creation transaction, mines it into a block
// and returns the resulting genesis linkage data and mainchain height.  Every
// request is bounded by ctx.
func (n *Node) CreateSidechain(ctx context.Context, req *SidechainRequest) (*SidechainResult, error) {
	if len(req.Outputs) == 0 {
		return nil, ErrNoOutputs
	}

	type scOutput struct {
		Address string  `json:"address"`
		Amount  float64 `json:"amount"`
	}
	outputs := make([]scOutput, 0, len(req.Outputs))
	for _, o := range req.Outputs {
		outputs = append(outputs, scOutput{o.Address, o.Amount.ToBTC()})
	}

	var txid string
	err := n.request(ctx, "sc_create", &txid, req.SidechainID,
		req.WithdrawalEpochLength, outputs)
	if err != nil {
		return nil, err
	}
	log.Debugf("Sidechain %s creation transaction %s sent to %s",
		req.SidechainID, txid, n.name)

	if _, err := n.Generate(ctx, 1); err != nil {
		return nil, err
	}

	var info string
	if err := n.request(ctx, "getscgenesisinfo", &info, req.SidechainID); err != nil {
		return nil, err
	}

	height, err := n.BlockCount(ctx)
	if err != nil {
		return nil, err
	}

	return &SidechainResult{GenesisInfo: info, BlockHeight: height}, nil
}

// Generate mines numBlocks blocks and returns their hashes.
func (n *Node) Generate(ctx context.Context, numBlocks int) ([]string, error) {
	var hashes []string
	if err := n.request(ctx, "generate", &hashes, numBlocks); err != nil {
		return nil, err
	}
	return hashes, nil
}

// BlockCount returns the height of the best mainchain block.
func (n *Node) BlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := n.request(ctx, "getblockcount", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Block is the verbose description of a mainchain block.
type Block struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	Version           int32  `json:"version"`
	MerkleRoot        string `json:"merkleroot"`
	Time              int64  `json:"time"`
	Nonce             string `json:"nonce"`
	PreviousBlockHash string `json:"previousblockhash"`
}

// Block returns the mainchain block identified by hash.
func (n *Node) Block(ctx context.Context, hash string) (*Block, error) {
	var b Block
	if err := n.request(ctx, "getblock", &b, hash); err != nil {
		return nil, err
	}
	return &b, nil
}

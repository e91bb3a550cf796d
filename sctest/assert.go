// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/horizenofficial/sctest/mcutil"
	"github.com/horizenofficial/sctest/scrpc"
)

// AssertEqual returns an ErrAssertion when expected and actual differ.
func AssertEqual(expected, actual interface{}, msg string) error {
	if reflect.DeepEqual(expected, actual) {
		return nil
	}
	if msg != "" {
		msg = "; " + msg
	}
	return assertionError(fmt.Sprintf("(left == right)%s\n  left: <%s>\n right: <%s>",
		msg, spew.Sdump(expected), spew.Sdump(actual)))
}

// AssertTrue returns an ErrAssertion carrying msg when cond is false.
func AssertTrue(cond bool, msg string) error {
	if cond {
		return nil
	}
	return assertionError(msg)
}

// WalletReporter exposes the wallet of a node.
type WalletReporter interface {
	AllPublicKeys(ctx context.Context) ([]json.RawMessage, error)
	AllBoxes(ctx context.Context) ([]scrpc.Box, error)
	Balance(ctx context.Context) (int64, error)
}

// CheckSidechainBoxes verifies the wallet of conn holds exactly len(keys)
// public keys and boxesCount boxes, that keys[i] owns a box worth
// balances[i], and that the wallet balance is the sum of balances.
func CheckSidechainBoxes(ctx context.Context, conn WalletReporter, sidechainID string, keys []string,
	boxesCount int, balances []btcutil.Amount) error {

	log.Infof("Check boxes for sidechain id %s", sidechainID)

	if len(keys) != len(balances) {
		return fmt.Errorf("%d expected balances given for %d keys",
			len(balances), len(keys))
	}

	pubKeys, err := conn.AllPublicKeys(ctx)
	if err != nil {
		return collaboratorError("listing public keys", err)
	}
	if err := AssertEqual(len(keys), len(pubKeys), "Unexpected number of public keys"); err != nil {
		return err
	}

	boxes, err := conn.AllBoxes(ctx)
	if err != nil {
		return collaboratorError("listing boxes", err)
	}
	if err := AssertEqual(boxesCount, len(boxes), "Unexpected number of boxes"); err != nil {
		return err
	}

	var expectedBalance btcutil.Amount
	for i, key := range keys {
		var target *scrpc.Box
		for j := range boxes {
			if boxes[j].Proposition.PublicKey == key {
				target = &boxes[j]
				break
			}
		}
		if target == nil {
			return assertionError(fmt.Sprintf("Box related to public key: %s not found", key))
		}

		if err := AssertTrue(target.Value > 0, fmt.Sprintf("Non positive value for "+
			"box: %s with public key: %s", target.ID, key)); err != nil {
			return err
		}
		if err := AssertEqual(int64(balances[i]), target.Value, fmt.Sprintf("Unexpected "+
			"value for box: %s with public key: %s", target.ID, key)); err != nil {
			return err
		}
		expectedBalance += balances[i]
	}

	balance, err := conn.Balance(ctx)
	if err != nil {
		return collaboratorError("reading balance", err)
	}
	return AssertEqual(int64(expectedBalance), balance, "Unexpected balance")
}

// BlockReporter exposes the best block of a node and its mainchain
// reference.
type BlockReporter interface {
	BlockBest(ctx context.Context) (*scrpc.BestBlock, error)
	BestBlockReferenceInfo(ctx context.Context) (*scrpc.BlockReferenceInfo, error)
}

// CheckMainchainBlockIncluded verifies the best block of conn is at height
// and references expected as its mainchain block number index, and that the
// node's best mainchain reference points to it.
func CheckMainchainBlockIncluded(ctx context.Context, conn BlockReporter, sidechainID string, height int64,
	index int, expected *mcutil.Block) error {

	log.Infof("Check mainchain block inclusion for sidechain id %s", sidechainID)

	best, err := conn.BlockBest(ctx)
	if err != nil {
		return collaboratorError("reading best block", err)
	}
	if err := AssertEqual(height, best.Height, "The best block has not the specified height."); err != nil {
		return err
	}
	if index < 0 || index >= len(best.Block.MainchainBlocks) {
		return assertionError(fmt.Sprintf("best block references %d mainchain "+
			"blocks, no block at index %d", len(best.Block.MainchainBlocks), index))
	}

	header := best.Block.MainchainBlocks[index].Header
	err = assertAll([]equality{
		{expected.Version, header.Version, "mainchain block version"},
		{expected.MerkleRoot, header.HashMerkleRoot, "mainchain block merkle root"},
		{expected.Time, header.Time, "mainchain block time"},
		{expected.Nonce, header.Nonce, "mainchain block nonce"},
		{expected.PreviousBlockHash, header.HashPrevBlock, "mainchain previous block hash"},
	})
	if err != nil {
		return err
	}

	ref, err := conn.BestBlockReferenceInfo(ctx)
	if err != nil {
		return collaboratorError("reading best block reference", err)
	}
	return assertAll([]equality{
		{expected.Hash, ref.Hash, "referenced mainchain block hash"},
		{expected.Height, ref.Height, "referenced mainchain block height"},
		{best.Block.ID, ref.SidechainBlockID, "referencing sidechain block"},
		{expected.PreviousBlockHash, ref.ParentHash, "referenced mainchain parent hash"},
	})
}

type equality struct {
	expected, actual interface{}
	msg              string
}

// assertAll returns the first failing equality.
func assertAll(eqs []equality) error {
	for _, e := range eqs {
		if err := AssertEqual(e.expected, e.actual, e.msg); err != nil {
			return err
		}
	}
	return nil
}

// IsMainchainBlockIncluded reports whether CheckMainchainBlockIncluded
// passes.  Any failure, collaborator errors included, yields false.
func IsMainchainBlockIncluded(ctx context.Context, conn BlockReporter, sidechainID string, height int64,
	index int, expected *mcutil.Block) bool {

	err := CheckMainchainBlockIncluded(ctx, conn, sidechainID, height, index, expected)
	if err != nil {
		log.Debugf("Mainchain block %s not included: %v", expected.Hash, err)
		return false
	}
	return true
}

// BlockGenerator forges sidechain blocks on demand.
type BlockGenerator interface {
	BlockGenerate(ctx context.Context, number int) ([]string, error)
}

// GenerateBlocks asks conn to forge n blocks and returns their ids.
func GenerateBlocks(ctx context.Context, conn BlockGenerator, n int) ([]string, error) {
	ids, err := conn.BlockGenerate(ctx, n)
	if err != nil {
		return nil, collaboratorError(fmt.Sprintf("generating %d blocks", n), err)
	}
	return ids, nil
}

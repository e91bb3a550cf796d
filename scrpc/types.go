// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scrpc

// BestBlock is the result of block/best.
type BestBlock struct {
	Height int64 `json:"height"`
	Block  Block `json:"block"`
}

// Block is the subset of a sidechain block consumed by the harness.
type Block struct {
	ID              string           `json:"id"`
	MainchainBlocks []MainchainBlock `json:"mainchainBlocks"`
}

// MainchainBlock is a mainchain block reference embedded in a sidechain
// block.
type MainchainBlock struct {
	Header MainchainHeader `json:"header"`
}

// MainchainHeader mirrors the header fields of a referenced mainchain block.
type MainchainHeader struct {
	Version        int32  `json:"version"`
	HashPrevBlock  string `json:"hashPrevBlock"`
	HashMerkleRoot string `json:"hashMerkleRoot"`
	Time           int64  `json:"time"`
	Nonce          string `json:"nonce"`
}

// Proposition identifies the owner of a box.
type Proposition struct {
	PublicKey string `json:"publicKey"`
}

// Box is a wallet box.  Value is expressed in the smallest coin unit.
type Box struct {
	ID          string      `json:"id"`
	Value       int64       `json:"value"`
	Proposition Proposition `json:"proposition"`
}

// BlockReferenceInfo is the result of mainchain/bestBlockReferenceInfo.
type BlockReferenceInfo struct {
	ParentHash       string `json:"parentHash"`
	Hash             string `json:"hash"`
	SidechainBlockID string `json:"sidechainBlockId"`
	Height           int64  `json:"height"`
}

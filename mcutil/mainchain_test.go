// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mcutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

type rawCall struct {
	method string
	params []string
}

// fakeMainchain answers raw requests from a canned reply table and records
// every call in order.
// A method listed in block does not reply until its channel is closed, and
// after runs once a call was recorded.
type fakeMainchain struct {
	replies map[string]string
	fail    map[string]error
	block   map[string]chan struct{}
	after   func(method string)

	mtx   sync.Mutex
	calls []rawCall
}

func (f *fakeMainchain) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	call := rawCall{method: method}
	for _, p := range params {
		call.params = append(call.params, string(p))
	}
	f.mtx.Lock()
	f.calls = append(f.calls, call)
	f.mtx.Unlock()

	if f.after != nil {
		f.after(method)
	}
	if ch, ok := f.block[method]; ok {
		<-ch
	}
	if err, ok := f.fail[method]; ok {
		return nil, err
	}
	return json.RawMessage(f.replies[method]), nil
}

func newFakeMainchain() *fakeMainchain {
	return &fakeMainchain{
		replies: map[string]string{
			"sc_create":        `"txid"`,
			"generate":         `["blockhash"]`,
			"getscgenesisinfo": `"00aa11"`,
			"getblockcount":    `221`,
		},
		fail:  map[string]error{},
		block: map[string]chan struct{}{},
	}
}

func TestCreateSidechain(t *testing.T) {
	fake := newFakeMainchain()
	node := NewWithClient("mc0", fake)

	res, err := node.CreateSidechain(context.Background(), &SidechainRequest{
		SidechainID:           "sc1",
		WithdrawalEpochLength: 1000,
		Outputs: []Output{
			{Address: "pk", Amount: 200 * btcutil.SatoshiPerBitcoin},
		},
	})
	require.NoError(t, err)
	require.Equal(t, &SidechainResult{GenesisInfo: "00aa11", BlockHeight: 221}, res)

	require.Equal(t, []rawCall{
		{"sc_create", []string{`"sc1"`, `1000`, `[{"address":"pk","amount":200}]`}},
		{"generate", []string{`1`}},
		{"getscgenesisinfo", []string{`"sc1"`}},
		{"getblockcount", nil},
	}, fake.calls)
}

func TestCreateSidechainErrors(t *testing.T) {
	t.Run("no outputs", func(t *testing.T) {
		node := NewWithClient("mc0", newFakeMainchain())
		_, err := node.CreateSidechain(context.Background(), &SidechainRequest{
			SidechainID: "sc1",
		})
		require.ErrorIs(t, err, ErrNoOutputs)
	})

	t.Run("rpc error is kept", func(t *testing.T) {
		fake := newFakeMainchain()
		fake.fail["sc_create"] = btcjson.NewRPCError(
			btcjson.ErrRPCInvalidParameter, "sidechain already exists")
		node := NewWithClient("mc0", fake)

		_, err := node.CreateSidechain(context.Background(), &SidechainRequest{
			SidechainID: "sc1",
			Outputs:     []Output{{Address: "pk", Amount: 1}},
		})

		var rpcErr *btcjson.RPCError
		require.True(t, errors.As(err, &rpcErr))
		require.Equal(t, btcjson.ErrRPCInvalidParameter, rpcErr.Code)
		require.Len(t, fake.calls, 1)
	})

	t.Run("cancelled between calls", func(t *testing.T) {
		fake := newFakeMainchain()
		node := NewWithClient("mc0", fake)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fake.after = func(method string) {
			if method == "sc_create" {
				cancel()
			}
		}

		_, err := node.CreateSidechain(ctx, &SidechainRequest{
			SidechainID: "sc1",
			Outputs:     []Output{{Address: "pk", Amount: 1}},
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, fake.calls, 1)
	})

	t.Run("hung node", func(t *testing.T) {
		fake := newFakeMainchain()
		hang := make(chan struct{})
		defer close(hang)
		fake.block["getscgenesisinfo"] = hang
		node := NewWithClient("mc0", fake)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := node.CreateSidechain(ctx, &SidechainRequest{
			SidechainID: "sc1",
			Outputs:     []Output{{Address: "pk", Amount: 1}},
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("malformed reply", func(t *testing.T) {
		fake := newFakeMainchain()
		fake.replies["getblockcount"] = `"many"`
		node := NewWithClient("mc0", fake)

		_, err := node.CreateSidechain(context.Background(), &SidechainRequest{
			SidechainID: "sc1",
			Outputs:     []Output{{Address: "pk", Amount: 1}},
		})
		require.Error(t, err)
	})
}

func TestBlock(t *testing.T) {
	fake := newFakeMainchain()
	fake.replies["getblock"] = `{"hash":"h","height":5,"version":3,` +
		`"merkleroot":"m","time":1500,"nonce":"n","previousblockhash":"p"}`
	node := NewWithClient("mc0", fake)

	b, err := node.Block(context.Background(), "h")
	require.NoError(t, err)
	require.Equal(t, &Block{
		Hash:              "h",
		Height:            5,
		Version:           3,
		MerkleRoot:        "m",
		Time:              1500,
		Nonce:             "n",
		PreviousBlockHash: "p",
	}, b)
	require.Equal(t, []string{`"h"`}, fake.calls[0].params)
}

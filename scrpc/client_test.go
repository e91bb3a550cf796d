// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestNode returns a client wired to an httptest server that answers
// every request with handler.
func newTestNode(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(&Config{Host: strings.TrimPrefix(srv.URL, "http://")})
}

func TestCallSendsAuthAndBody(t *testing.T) {
	var (
		gotPath string
		gotBody map[string]string
		gotUser string
		gotPass string
	)
	c := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = io.WriteString(w, `{"result": {}}`)
	})

	require.NoError(t, c.Connect(context.Background(), "127.0.0.1", 8301))
	require.Equal(t, "/node/connect", gotPath)
	require.Equal(t, DefaultUser, gotUser)
	require.Equal(t, DefaultPass, gotPass)
	require.Equal(t, map[string]string{
		"host": "127.0.0.1",
		"port": "8301",
	}, gotBody)
}

func TestBlockBest(t *testing.T) {
	c := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"height": 7, "block": {
			"id": "abc",
			"mainchainBlocks": [{"header": {"version": 3, "time": 11}}]}}}`)
	})

	best, err := c.BlockBest(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, best.Height)
	require.Equal(t, "abc", best.Block.ID)
	require.Len(t, best.Block.MainchainBlocks, 1)
	require.EqualValues(t, 3, best.Block.MainchainBlocks[0].Header.Version)

	height, err := c.BestHeight(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, height)
}

func TestBalanceAcceptsQuotedNumber(t *testing.T) {
	c := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"balance": "20000000000"}}`)
	})

	balance, err := c.Balance(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 20000000000, balance)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		apiError  bool
	}{
		{
			name:     "api error envelope",
			status:   http.StatusOK,
			body:     `{"error": {"code": "0301", "description": "bad block"}}`,
			apiError: true,
		},
		{
			name:      "server error status",
			status:    http.StatusServiceUnavailable,
			body:      "starting",
			transient: true,
		},
		{
			name:   "client error status",
			status: http.StatusUnauthorized,
			body:   "denied",
		},
		{
			name:   "malformed reply",
			status: http.StatusOK,
			body:   "not json",
		},
		{
			name:   "empty envelope",
			status: http.StatusOK,
			body:   "{}",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			c := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				_, _ = io.WriteString(w, test.body)
			})

			_, err := c.AllTransactions(context.Background())
			require.Error(t, err)
			require.Equal(t, test.transient, IsTransient(err))

			var apiErr *APIError
			require.Equal(t, test.apiError, errors.As(err, &apiErr))
			if test.apiError {
				require.Equal(t, "transaction/allTransactions", apiErr.Method)
				require.Equal(t, "0301", apiErr.Code)
			}
		})
	}
}

func TestUnreachableNodeIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := New(&Config{Host: host})
	_, err := c.ConnectedPeers(context.Background())
	require.Error(t, err)
	require.True(t, IsTransient(err))
}

func TestCallHonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	c := newTestNode(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.BestHeight(ctx)
	require.Error(t, err)
	require.True(t, IsTransient(err), err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

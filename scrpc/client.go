// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultUser and DefaultPass are the API credentials the test
	// configuration templates install on every node.
	DefaultUser = "rt"
	DefaultPass = "rt"

	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 30 * time.Second
)

// Config describes how to reach the API of one sidechain node.
type Config struct {
	// Host is the host:port the node API listens on.
	Host string

	// User and Pass are sent as HTTP basic authentication.  They default
	// to DefaultUser and DefaultPass when both are empty.
	User string
	Pass string

	// Timeout bounds every call.  Zero selects DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the client used to issue requests.  When
	// set, Timeout is ignored.
	HTTPClient *http.Client
}

// Client issues API calls against one sidechain node.  It is safe for
// concurrent use.
type Client struct {
	host string
	user string
	pass string
	http *http.Client
}

// New returns a client for the node described by cfg.  No connection is
// made until the first call.
func New(cfg *Config) *Client {
	user, pass := cfg.User, cfg.Pass
	if user == "" && pass == "" {
		user, pass = DefaultUser, DefaultPass
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		host: cfg.Host,
		user: user,
		pass: pass,
		http: httpClient,
	}
}

// Host returns the host:port the client talks to.
func (c *Client) Host() string {
	return c.host
}

// URL returns the base URL of the node API, without credentials.
func (c *Client) URL() string {
	return "http://" + c.host
}

// String returns the base URL so clients print sensibly in logs.
func (c *Client) String() string {
	return c.URL()
}

// envelope is the reply wrapper used by every API method.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// Call invokes method, given as group/name, with params marshalled as the
// request body and decodes the result into result.  A nil params sends an
// empty JSON object; a nil result discards the reply payload.  The call is
// abandoned when ctx is done, which is reported as a TransportError.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%s: unable to marshal params: %w", method, err)
	}

	raw, err := c.post(ctx, method, body)
	if err != nil {
		return err
	}

	var reply envelope
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("%s: malformed reply: %w", method, err)
	}
	if reply.Error != nil {
		reply.Error.Method = method
		return reply.Error
	}
	if len(reply.Result) == 0 || bytes.Equal(reply.Result, []byte("null")) {
		return fmt.Errorf("%s: %w", method, ErrEmptyResult)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Result, result); err != nil {
		return fmt.Errorf("%s: malformed result: %w", method, err)
	}
	return nil
}

// post sends one request and returns the raw reply body.
func (c *Client) post(ctx context.Context, method string, body []byte) ([]byte, error) {
	url := c.URL() + "/" + strings.TrimPrefix(method, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.pass)

	log.Tracef("POST %s %s", url, body)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &TransportError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(raw)),
		}

	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: unexpected http status %d: %s",
			method, resp.StatusCode, bytes.TrimSpace(raw))
	}

	log.Tracef("%s reply: %s", method, raw)
	return raw, nil
}

// BlockBest returns the best block of the node together with its height.
func (c *Client) BlockBest(ctx context.Context) (*BestBlock, error) {
	var res BestBlock
	if err := c.Call(ctx, "block/best", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BestHeight returns the height of the best block.
func (c *Client) BestHeight(ctx context.Context) (int64, error) {
	best, err := c.BlockBest(ctx)
	if err != nil {
		return 0, err
	}
	return best.Height, nil
}

// BlockGenerate asks the node to forge number blocks and returns their ids.
func (c *Client) BlockGenerate(ctx context.Context, number int) ([]string, error) {
	var res struct {
		BlockIDs []string `json:"blockIds"`
	}
	params := struct {
		Number int `json:"number"`
	}{number}
	if err := c.Call(ctx, "block/generate", params, &res); err != nil {
		return nil, err
	}
	return res.BlockIDs, nil
}

// AllTransactions returns the full records of every transaction in the
// node's memory pool.
func (c *Client) AllTransactions(ctx context.Context) ([]json.RawMessage, error) {
	var res struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := c.Call(ctx, "transaction/allTransactions", nil, &res); err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

// AllPublicKeys returns the propositions known to the node wallet.
func (c *Client) AllPublicKeys(ctx context.Context) ([]json.RawMessage, error) {
	var res struct {
		Propositions []json.RawMessage `json:"propositions"`
	}
	if err := c.Call(ctx, "wallet/allPublicKeys", nil, &res); err != nil {
		return nil, err
	}
	return res.Propositions, nil
}

// AllBoxes returns the boxes owned by the node wallet.
func (c *Client) AllBoxes(ctx context.Context) ([]Box, error) {
	var res struct {
		Boxes []Box `json:"boxes"`
	}
	if err := c.Call(ctx, "wallet/allBoxes", nil, &res); err != nil {
		return nil, err
	}
	return res.Boxes, nil
}

// Balance returns the wallet balance in the smallest coin unit.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	var res struct {
		Balance json.Number `json:"balance"`
	}
	if err := c.Call(ctx, "wallet/balance", nil, &res); err != nil {
		return 0, err
	}
	return res.Balance.Int64()
}

// ConnectedPeers returns the peers the node is currently connected to.
func (c *Client) ConnectedPeers(ctx context.Context) ([]json.RawMessage, error) {
	var res struct {
		Peers []json.RawMessage `json:"peers"`
	}
	if err := c.Call(ctx, "node/connectedPeers", nil, &res); err != nil {
		return nil, err
	}
	return res.Peers, nil
}

// Connect asks the node to open a p2p connection to host:port.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	params := struct {
		Host string `json:"host"`
		Port string `json:"port"`
	}{host, strconv.Itoa(port)}

	log.Debugf("Connecting %s to %s", c.host,
		net.JoinHostPort(host, params.Port))

	return c.Call(ctx, "node/connect", params, nil)
}

// BestBlockReferenceInfo returns the reference to the most recent mainchain
// block known to the node.
func (c *Client) BestBlockReferenceInfo(ctx context.Context) (*BlockReferenceInfo, error) {
	var res struct {
		Info BlockReferenceInfo `json:"blockReferenceInfo"`
	}
	if err := c.Call(ctx, "mainchain/bestBlockReferenceInfo", nil, &res); err != nil {
		return nil, err
	}
	return &res.Info, nil
}

// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scconf

import (
	"bytes"
	"embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
)

//go:embed templates/*.conf
var templateFS embed.FS

const (
	nodeTemplate       = "node.conf"
	predefinedTemplate = "node_predefined_genesis.conf"
)

// NodeValues is the value set substituted into a node configuration file.
type NodeValues struct {
	NodeNumber        int
	Directory         string
	WalletSeed        string
	APIAddress        string
	APIPort           int
	BindPort          int
	OfflineGeneration bool

	// GenesisSecrets is the genesis account secret followed by its
	// public key.
	GenesisSecrets string

	// The remaining values are unused by the predefined genesis
	// template.
	SidechainID           string
	GenesisData           string
	PowData               string
	BlockHeight           int64
	Network               string
	WithdrawalEpochLength int

	WebsocketAddress        string
	ConnectionTimeout       int
	ReconnectionDelay       int
	ReconnectionMaxAttempts int
}

// NodeEndpoint names a configured node and the URL of its API.
type NodeEndpoint struct {
	Name string
	URL  string
}

// NodeDir returns the working directory of node n below dir.
func NodeDir(dir string, n int) string {
	return filepath.Join(dir, "sc_node"+strconv.Itoa(n))
}

// ConfigPath returns the configuration file path of node n below dir.
func ConfigPath(dir string, n int) string {
	return filepath.Join(NodeDir(dir, n), fmt.Sprintf("node%d.conf", n))
}

// Writer materializes node configuration files.
type Writer struct {
	templates *template.Template
}

// NewWriter returns a Writer using the embedded configuration templates.
func NewWriter() *Writer {
	return &Writer{
		templates: template.Must(template.New("").Option("missingkey=error").
			ParseFS(templateFS, "templates/*.conf")),
	}
}

// WriteNode renders the full configuration of node v.NodeNumber, genesis
// and mainchain connection included, into ConfigPath(dir, v.NodeNumber).
func (w *Writer) WriteNode(dir string, v *NodeValues) (NodeEndpoint, error) {
	return w.write(nodeTemplate, dir, v)
}

// WriteDefaultNode renders a configuration relying on a genesis compiled
// into the node, so only the network, API and wallet values are used.
func (w *Writer) WriteDefaultNode(dir string, v *NodeValues) (NodeEndpoint, error) {
	return w.write(predefinedTemplate, dir, v)
}

func (w *Writer) write(name, dir string, v *NodeValues) (NodeEndpoint, error) {
	nodeDir := NodeDir(dir, v.NodeNumber)
	if err := os.MkdirAll(nodeDir, 0700); err != nil {
		return NodeEndpoint{}, err
	}

	var buf bytes.Buffer
	if err := w.templates.ExecuteTemplate(&buf, name, v); err != nil {
		return NodeEndpoint{}, fmt.Errorf("unable to render %s: %w", name, err)
	}

	path := ConfigPath(dir, v.NodeNumber)
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return NodeEndpoint{}, err
	}
	log.Debugf("Wrote configuration of node %d to %s", v.NodeNumber, path)

	return NodeEndpoint{
		Name: "node" + strconv.Itoa(v.NodeNumber),
		URL: "http://" + net.JoinHostPort(v.APIAddress,
			strconv.Itoa(v.APIPort)),
	}, nil
}

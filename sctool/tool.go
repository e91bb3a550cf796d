// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sctool drives the external sidechain bootstrapping tool.
//
// The tool is a JVM program invoked once per operation with the command name
// and a JSON document as its two trailing arguments.  It prints a JSON
// document on standard output and exits with status zero on success.
package sctool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// DefaultJava is the JVM launcher used when Config.Java is empty.
	DefaultJava = "java"

	// DefaultMainClass is the entry point of the bootstrapping tool.
	DefaultMainClass = "com.horizen.ScBootstrappingTool"
)

// DefaultClassPath is the class path used when Config.ClassPath is empty.
// It is relative to the directory the harness is run from.
var DefaultClassPath = []string{
	"../tools/sctool/target/Sidechains-SDK-ScBootstrappingTools-0.1-SNAPSHOT.jar",
	"../tools/sctool/target/lib/*",
}

// Config describes how to launch the bootstrapping tool.
type Config struct {
	// Java is the JVM launcher.  Defaults to DefaultJava.
	Java string

	// ClassPath entries are joined with the platform list separator.
	// Defaults to DefaultClassPath.
	ClassPath []string

	// MainClass is the class holding the tool entry point.  Defaults to
	// DefaultMainClass.
	MainClass string
}

// Tool runs bootstrapping tool commands.
type Tool struct {
	java      string
	classPath string
	mainClass string
}

// New returns a Tool for cfg.  A nil cfg selects every default.
func New(cfg *Config) *Tool {
	if cfg == nil {
		cfg = &Config{}
	}

	t := &Tool{
		java:      cfg.Java,
		mainClass: cfg.MainClass,
	}
	if t.java == "" {
		t.java = DefaultJava
	}
	if t.mainClass == "" {
		t.mainClass = DefaultMainClass
	}

	classPath := cfg.ClassPath
	if len(classPath) == 0 {
		classPath = DefaultClassPath
	}
	t.classPath = strings.Join(classPath, string(filepath.ListSeparator))

	return t
}

// KeyPair is a secret and the public key derived from it, both hex
// encoded.
type KeyPair struct {
	Secret    string `json:"secret"`
	PublicKey string `json:"publicKey"`
}

// GenesisData is the sidechain genesis produced by the genesisinfo command.
type GenesisData struct {
	SidechainID           string `json:"scId"`
	GenesisBlockHex       string `json:"scGenesisBlockHex"`
	PowData               string `json:"powData"`
	MainchainBlockHeight  int64  `json:"mcBlockHeight"`
	MainchainNetwork      string `json:"mcNetwork"`
	WithdrawalEpochLength int    `json:"withdrawalEpochLength"`
}

// ToolError is returned when the tool cannot be started, exits with a
// non-zero status, or prints something that is not the expected JSON.
type ToolError struct {
	Command string
	Stderr  string
	Err     error
}

// Error satisfies the error interface.
func (e *ToolError) Error() string {
	s := fmt.Sprintf("sctool %s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		s += ": " + e.Stderr
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// run executes command with params encoded as JSON and decodes standard
// output into result.
func (t *Tool) run(ctx context.Context, command string, params, result interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return &ToolError{Command: command, Err: err}
	}

	cmd := exec.CommandContext(ctx, t.java, "-cp", t.classPath, t.mainClass,
		command, string(payload))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("Running %s %s", t.mainClass, command)
	log.Tracef("%s", closure(func() string { return strings.Join(cmd.Args, " ") }))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &ToolError{
			Command: command,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	if err := json.Unmarshal(stdout.Bytes(), result); err != nil {
		return &ToolError{
			Command: command,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     fmt.Errorf("malformed output: %w", err),
		}
	}
	return nil
}

// GenerateKey derives one key pair from seed.
func (t *Tool) GenerateKey(ctx context.Context, seed string) (*KeyPair, error) {
	params := struct {
		Seed string `json:"seed"`
	}{seed}

	var kp KeyPair
	if err := t.run(ctx, "generatekey", params, &kp); err != nil {
		return nil, err
	}
	if kp.Secret == "" || kp.PublicKey == "" {
		return nil, &ToolError{
			Command: "generatekey",
			Err:     fmt.Errorf("incomplete key pair %+v", kp),
		}
	}
	return &kp, nil
}

// GenerateSecrets derives n key pairs, the i-th one from "<seed>_<i+1>".
func (t *Tool) GenerateSecrets(ctx context.Context, seed string, n int) ([]KeyPair, error) {
	secrets := make([]KeyPair, 0, n)
	for i := 0; i < n; i++ {
		kp, err := t.GenerateKey(ctx, fmt.Sprintf("%s_%d", seed, i+1))
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, *kp)
	}
	return secrets, nil
}

// GenesisInfo turns the genesis linkage data reported by a mainchain node
// and the genesis account secret into sidechain genesis data.
func (t *Tool) GenesisInfo(ctx context.Context, info, secret string) (*GenesisData, error) {
	params := struct {
		Secret string `json:"secret"`
		Info   string `json:"info"`
	}{secret, info}

	var gd GenesisData
	if err := t.run(ctx, "genesisinfo", params, &gd); err != nil {
		return nil, err
	}
	if gd.GenesisBlockHex == "" {
		return nil, &ToolError{
			Command: "genesisinfo",
			Err:     fmt.Errorf("missing genesis block"),
		}
	}
	return &gd, nil
}

// closure defers building expensive trace strings until they are printed.
type closure func() string

func (c closure) String() string {
	return c()
}

// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/horizenofficial/sctest/internal/log"
	"github.com/horizenofficial/sctest/internal/version"
	"github.com/horizenofficial/sctest/sampleconfig"
	"github.com/horizenofficial/sctest/scrpc"
	"github.com/horizenofficial/sctest/sctest"
	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "scbootstrap.conf"
	defaultDataDirname    = "network"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "scbootstrap.log"
	defaultMCRPCServer    = "localhost:18232"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("scbootstrap", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for scbootstrap.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory receiving one sc_node<n> directory per node"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	NetworkFile string `short:"n" long:"network" description:"YAML description of the sidechain network to bootstrap"`
	Default     int    `long:"default" description:"Configure this many nodes with the predefined genesis instead of bootstrapping a new sidechain"`

	MCRPCServer string `long:"mcrpcserver" description:"Mainchain RPC server to create the sidechain on, overrides the network file"`
	MCRPCUser   string `long:"mcrpcuser" description:"Mainchain RPC username, overrides the network file"`
	MCRPCPass   string `long:"mcrpcpass" default-mask:"-" description:"Mainchain RPC password, overrides the network file"`
	MCRPCCert   string `long:"mcrpccert" description:"File containing the mainchain RPC certificate, enables TLS"`

	Java          string   `long:"java" description:"JVM launcher running the bootstrapping tool"`
	ToolClassPath []string `long:"toolclasspath" description:"Class path entry of the bootstrapping tool, may be repeated"`

	Start   bool          `long:"start" description:"Start the configured nodes and keep them running until interrupted"`
	Connect bool          `long:"connect" description:"Connect the started nodes in a chain and wait for their blocks to sync"`
	Binary  string        `long:"binary" description:"Command line starting a node, the configuration file path is appended"`
	RPCUser string        `long:"rpcuser" description:"Username for the node API"`
	RPCPass string        `long:"rpcpass" default-mask:"-" description:"Password for the node API"`
	Timeout time.Duration `long:"timeout" description:"Bound on the bootstrap stages, readiness probes and barriers"`
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		log.SetLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := log.SubsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, log.SupportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		log.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig(args []string) (*config, error) {
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		RPCUser:    scrpc.DefaultUser,
		RPCPass:    scrpc.DefaultPass,
		Timeout:    sctest.DefaultTimeout,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return nil, err
		}
		preParser.WriteHelp(os.Stderr)
		return nil, err
	}

	if preCfg.ShowVersion {
		fmt.Println("scbootstrap version", version.String())
		os.Exit(0)
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(configFile) {
		if err := createDefaultConfigFile(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config "+
				"file: %v\n", err)
		}
	}

	// Load additional config from file.  A missing default file is not an
	// error.
	parser := flags.NewParser(&cfg, flags.None)
	if preCfg.ConfigFile != defaultConfigFile || fileExists(configFile) {
		err := flags.NewIniParser(parser).ParseFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		parser.WriteHelp(os.Stderr)
		return nil, err
	}
	if len(remainingArgs) != 0 {
		return nil, fmt.Errorf("unexpected arguments %v", remainingArgs)
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		os.Exit(0)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.NetworkFile != "" {
		cfg.NetworkFile = cleanAndExpandPath(cfg.NetworkFile)
	}
	if cfg.MCRPCCert != "" {
		cfg.MCRPCCert = cleanAndExpandPath(cfg.MCRPCCert)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, fmt.Errorf("loadConfig: %w", err)
	}

	return &cfg, nil
}

// createDefaultConfigFile copies the sample config file to the given
// destination path.
func createDefaultConfigFile(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.FileContents), 0600)
}

// validateConfig checks option combinations that cannot be expressed with
// flag tags.
func validateConfig(cfg *config) error {
	switch {
	case cfg.NetworkFile == "" && cfg.Default == 0:
		return errors.New("loadConfig: one of --network and --default " +
			"is required")

	case cfg.NetworkFile != "" && cfg.Default != 0:
		return errors.New("loadConfig: the --network and --default " +
			"options can not be mixed")

	case cfg.Default < 0:
		return fmt.Errorf("loadConfig: invalid node count %d", cfg.Default)

	case cfg.Connect && !cfg.Start:
		return errors.New("loadConfig: --connect requires --start")

	case cfg.Timeout <= 0:
		return fmt.Errorf("loadConfig: the --timeout option must be "+
			"positive -- parsed [%v]", cfg.Timeout)
	}
	return nil
}

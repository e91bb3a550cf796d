// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for
// scbootstrap.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------

; The directory receiving one sc_node<n> directory per node.  Environment
; variables are expanded so they may be used.
; datadir=~/.scbootstrap/network

; The directory to store log files.
; logdir=~/.scbootstrap/logs

; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; YAML description of the sidechain network to bootstrap.
; network=~/.scbootstrap/network.yaml

; Skip the bootstrap and configure this many nodes with the genesis compiled
; into the node.  At most 3 nodes are supported.  Can not be mixed with
; network.
; default=2

; Mainchain RPC endpoint, overriding the one of the network description.
; mcrpcserver=localhost:18232
; mcrpcuser=
; mcrpcpass=

; A certificate file enables TLS towards the mainchain node.
; mcrpccert=

; ------------------------------------------------------------------------------
; Bootstrapping tool
; ------------------------------------------------------------------------------

; java=java
; toolclasspath=../tools/sctool/target/Sidechains-SDK-ScBootstrappingTools-0.1-SNAPSHOT.jar
; toolclasspath=../tools/sctool/target/lib/*

; ------------------------------------------------------------------------------
; Node processes
; ------------------------------------------------------------------------------

; Start the configured nodes and keep them running until interrupted.
; start=1

; Connect the started nodes in a chain and wait for their blocks to sync.
; connect=1

; Command line starting a node.  The configuration file path is appended.
; binary=java -cp simpleapp.jar:lib/* com.horizen.examples.SimpleApp

; Credentials of the node API.
; rpcuser=rt
; rpcpass=rt

; Bound on the bootstrap stages, readiness probes and barriers.
; timeout=25s

; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use scbootstrap --debuglevel=show to
; list available subsystems.
; debuglevel=info
`

// NetworkContents is a string containing an example network description.
const NetworkContents = `# Sidechain created by the bootstrap.
sidechain:
  id: "1111111111111111111111111111111111111111111111111111111111111111"
  # Credited to the genesis account, in whole coins.
  forwardAmount: 100
  withdrawalEpochLength: 1000

# Mainchain node the creation transaction is sent to.
mainchain:
  host: localhost:18232
  user: rt
  pass: rt

# One entry per sidechain node, in index order.  Nodes without mcConnection
# reach the mainchain at ws://localhost:8888.
nodes:
  - {}
  - mcConnection:
      address: ws://localhost:8888
      connectionTimeout: 100
      reconnectionDelay: 1
      reconnectionMaxAttempts: 1
`

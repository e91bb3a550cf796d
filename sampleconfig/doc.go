// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sampleconfig provides constants holding the contents of the sample
configuration file for scbootstrap and of a sample network description.  The
configuration file is written on first run so the user gets samples of every
option, and the network description documents the format read by
scconf.LoadNetwork.
*/
package sampleconfig

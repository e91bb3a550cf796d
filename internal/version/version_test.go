// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	defer func(p string) { PreRelease = p }(PreRelease)

	PreRelease = "beta"
	require.Equal(t, "0.1.0-beta", String())

	PreRelease = "b+e.t@a"
	require.Equal(t, "0.1.0-beta", String())

	PreRelease = ""
	require.Equal(t, "0.1.0", String())
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ioutil_test

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/internal/ioutil"
)

func TestReadAt(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))

	buf, err := ioutil.ReadAt(r, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), buf)

	buf, err = ioutil.ReadAt(r, 6, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("6789"), buf)

	_, err = ioutil.ReadAt(r, 8, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, ioutil.IsShortRead(err))
	assert.True(t, ioutil.IsShortRead(fmt.Errorf("wrapped: %w", io.EOF)))
	assert.False(t, ioutil.IsShortRead(io.ErrClosedPipe))
}

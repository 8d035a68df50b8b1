// SPDX-License-Identifier: MIT

package protocol

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })

	c := &Connection{
		state:       StateOpen,
		conn:        client,
		r:           bufio.NewReaderSize(client, 4096),
		readTimeout: 5 * time.Second,
	}
	return c, server
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "broken", StateBroken.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func TestConnection_SendAndReadMethodResponse(t *testing.T) {
	c, server := newPipeConnection(t)

	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		_ = n
		_, _ = server.Write([]byte("<methodresponse><requestid>1</requestid><status>success</status></methodresponse>\r\n\r\n"))
	}()

	require.NoError(t, c.Send([]byte("irrelevant request bytes")))

	resp, err := c.ReadMethodResponse()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), resp.RequestID)
	assert.Equal(t, StateOpen, c.State())
}

func TestConnection_ReadImageResponse(t *testing.T) {
	c, server := newPipeConnection(t)

	go func() {
		_, _ = server.Write(buildImageResponse("Content-type: image/jpeg\r\nContent-length: 3\r\nrequestid: 2\r\n", []byte("abc")))
	}()

	resp, err := c.ReadImageResponse()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), resp.Payload)
}

func TestConnection_IsImageResponse(t *testing.T) {
	c, server := newPipeConnection(t)

	go func() {
		_, _ = server.Write([]byte("Content-type: image/jpeg\r\n"))
	}()

	isImg, err := c.IsImageResponse()
	require.NoError(t, err)
	assert.True(t, isImg)
}

// TestConnection_BreaksOnMissingTrailer reproduces the scenario where the
// remote end never sends the mandatory trailer: the connection must
// transition to Broken and every subsequent call must fail closed without
// touching the network again.
func TestConnection_BreaksOnMissingTrailer(t *testing.T) {
	c, server := newPipeConnection(t)

	go func() {
		_, _ = server.Write([]byte("Content-type: image/jpeg\r\nContent-length: 3\r\nrequestid: 1\r\n\r\nabc"))
		_ = server.Close()
	}()

	_, err := c.ReadImageResponse()
	require.Error(t, err)

	var pe *ProtoError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindMissingTrailer, pe.Kind, "the immediate failure must keep its specific taxonomy kind")
	assert.Equal(t, StateBroken, c.State())

	_, err = c.ReadImageResponse()
	require.Error(t, err)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindConnectionBroken, pe.Kind, "calls after the connection is already Broken report ConnectionBroken")
}

func TestConnection_SendOnClosedConnectionFails(t *testing.T) {
	c, _ := newPipeConnection(t)
	require.NoError(t, c.Close())

	err := c.Send([]byte("x"))
	require.Error(t, err)
	var pe *ProtoError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindConnectionBroken, pe.Kind)
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	c, _ := newPipeConnection(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}

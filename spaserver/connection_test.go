package spaserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_WriteBuffersUntilFull(t *testing.T) {
	c := newConnection("1.2.3.4:5555", nil, 2, func() {})

	require.NoError(t, c.Write([]byte("a")))
	require.NoError(t, c.Write([]byte("b")))

	err := c.Write([]byte("c"))
	assert.ErrorIs(t, err, ErrConnectionBufferFull)

	assert.Len(t, c.send, 2)
}

func TestConnection_WriteAfterClosedFails(t *testing.T) {
	canceled := false
	c := newConnection("1.2.3.4:5555", nil, 4, func() { canceled = true })

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrConnectionBufferFull)
	assert.False(t, canceled, "marking closed directly must not itself invoke cancel")
}

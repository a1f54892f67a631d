package testutils

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDelayPacketConn(t *testing.T) {
	defer goleak.VerifyNone(t)
	receiver, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()
	sender, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	conn := NewDelayPacketConn(sender, 30*time.Millisecond)

	start := time.Now()
	for i := byte(0); i < 3; i++ {
		n, err := conn.WriteTo([]byte{i}, receiver.LocalAddr())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 10)
	for i := byte(0); i < 3; i++ {
		n, _, err := receiver.ReadFrom(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{i}, buf[:n])
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	require.NoError(t, conn.Close())
	_, err = conn.WriteTo([]byte{1}, receiver.LocalAddr())
	assert.ErrorIs(t, err, net.ErrClosed)
}

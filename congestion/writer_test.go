package congestion

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatedWriterWithoutController(t *testing.T) {
	buf := &bytes.Buffer{}
	assert.Same(t, buf, NewGatedWriter(context.Background(), nil, buf))
}

func TestGatedWriterSplitsAtWindow(t *testing.T) {
	c := NewController(nil)
	c.SetStallTimeout(10 * time.Millisecond)
	buf := &bytes.Buffer{}
	w := NewGatedWriter(context.Background(), c, buf)
	data := make([]byte, 3*InitialWindow(testMDS))
	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, len(data), buf.Len())
}

func TestGatedWriterCanceled(t *testing.T) {
	c := NewController(nil)
	c.SetStallTimeout(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	w := NewGatedWriter(ctx, c, &bytes.Buffer{})
	fillWindow(c)
	cancel()
	n, err := w.Write(make([]byte, 100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

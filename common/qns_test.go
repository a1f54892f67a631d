package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQnsTest(t *testing.T) {
	q, err := ParseQnsTest("")
	require.NoError(t, err)
	assert.Equal(t, QnsTestTransfer, q)
	q, err = ParseQnsTest("http3")
	require.NoError(t, err)
	assert.Equal(t, QnsTestHTTP3, q)
	_, err = ParseQnsTest("zerortt")
	assert.Error(t, err)
}

package qlog_app

import (
	"testing"

	"github.com/francoispqt/gojay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorEvent(t *testing.T) {
	data, err := gojay.MarshalJSONObject(ErrorEvent{Code: "checksum_mismatch", Message: "expected ab, got cd"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"checksum_mismatch","message":"expected ab, got cd"}`, string(data))

	data, err = gojay.MarshalJSONObject(ErrorEvent{Message: "reset"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"reset"}`, string(data))
	assert.Equal(t, "app", ErrorEvent{}.Category())
	assert.Equal(t, "error", ErrorEvent{}.Name())
}

func TestInfoEvent(t *testing.T) {
	data, err := gojay.MarshalJSONObject(InfoEvent{Message: "saved"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"saved"}`, string(data))
	assert.Equal(t, "info", InfoEvent{}.Name())
}

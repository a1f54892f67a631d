package capture

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crperf-go/common"
	"crperf-go/common/utils"
)

const (
	testRandom = "0102030405060708091011121314151617181920212223242526272829303132"
	testLine   = "CLIENT_HANDSHAKE_TRAFFIC_SECRET " + testRandom + " abcdef\n"
)

func TestParseClientRandom(t *testing.T) {
	random, ok := parseClientRandom(strings.ToUpper(testLine))
	require.True(t, ok)
	assert.Equal(t, testRandom, random)

	_, ok = parseClientRandom("# comment\n")
	assert.False(t, ok)
	_, ok = parseClientRandom("garbage\n")
	assert.False(t, ok)
}

func TestKeyLogWriterSplitsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	var randoms []string
	w := &keyLogWriter{
		mutex:    &sync.Mutex{},
		w:        buf,
		onRandom: func(r string) { randoms = append(randoms, r) },
	}
	_, err := w.Write([]byte(testLine[:10]))
	require.NoError(t, err)
	assert.Empty(t, randoms)
	assert.Zero(t, buf.Len())
	_, err = w.Write([]byte(testLine[10:]))
	require.NoError(t, err)
	assert.Equal(t, []string{testRandom}, randoms)
	assert.Equal(t, testLine, buf.String())
}

func TestIndexWritesEntry(t *testing.T) {
	keyLog := &bytes.Buffer{}
	index := &bytes.Buffer{}
	i := NewIndexWriters(utils.NopWriteCloser{Writer: keyLog}, utils.NopWriteCloser{Writer: index}, common.DefaultLogger)

	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4433}
	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
	_, err := i.KeyLogWriter(remote.String()).Write([]byte(testLine))
	require.NoError(t, err)

	odcid := quic.ConnectionIDFromBytes([]byte{0xde, 0xad})
	tracer := i.Tracer(context.Background(), logging.PerspectiveClient, odcid)
	tracer.StartedConnection(local, remote, odcid, odcid)
	tracer.ClosedConnection(nil)
	tracer.Close()
	tracer.Close()
	require.NoError(t, i.Close())

	assert.Equal(t, testLine, keyLog.String())
	lines := strings.Split(strings.TrimSpace(index.String()), "\n")
	require.Len(t, lines, 1)
	entry := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "dead", entry["odcid"])
	assert.Equal(t, "client", entry["perspective"])
	assert.Equal(t, "127.0.0.1:4433", entry["remote_addr"])
	assert.Equal(t, "127.0.0.1:50000", entry["local_addr"])
	assert.Equal(t, []interface{}{testRandom}, entry["client_randoms"])
	assert.Contains(t, entry, "start")
	assert.Contains(t, entry, "end")
}

func TestIndexKeepsRandomsOfOtherPeers(t *testing.T) {
	index := &bytes.Buffer{}
	i := NewIndexWriters(nil, utils.NopWriteCloser{Writer: index}, common.DefaultLogger)
	_, err := i.KeyLogWriter("10.0.0.2:1234").Write([]byte(testLine))
	require.NoError(t, err)

	remote := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1234}
	tracer := i.Tracer(context.Background(), logging.PerspectiveServer, quic.ConnectionIDFromBytes([]byte{1}))
	tracer.StartedConnection(remote, remote, quic.ConnectionID{}, quic.ConnectionID{})
	tracer.Close()

	assert.NotContains(t, index.String(), "client_randoms")
	assert.Equal(t, []string{testRandom}, i.takeRandoms("10.0.0.2:1234"))
}

func TestServerTLSConfigSetsKeyLogWriter(t *testing.T) {
	i := NewIndexWriters(nil, nil, common.DefaultLogger)
	config := i.ServerTLSConfig(&tls.Config{NextProtos: []string{"hq-interop"}})
	require.NotNil(t, config.GetConfigForClient)
	conf, err := config.GetConfigForClient(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hq-interop"}, conf.NextProtos)
	assert.Nil(t, conf.GetConfigForClient)
}

func TestServerTLSConfigUsesProtocolsSetAfterWrapping(t *testing.T) {
	i := NewIndexWriters(nil, nil, common.DefaultLogger)
	config := i.ServerTLSConfig(&tls.Config{})
	config.NextProtos = []string{"hq-interop"}
	conf, err := config.GetConfigForClient(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hq-interop"}, conf.NextProtos)
}

func TestServerTLSConfigKeepsProtocolsOfInnerConfig(t *testing.T) {
	i := NewIndexWriters(nil, nil, common.DefaultLogger)
	config := i.ServerTLSConfig(&tls.Config{
		NextProtos: []string{"h3"},
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			return &tls.Config{NextProtos: []string{"hq-interop"}}, nil
		},
	})
	conf, err := config.GetConfigForClient(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hq-interop"}, conf.NextProtos)
}

func TestNewIndexAppendsToFiles(t *testing.T) {
	dir := t.TempDir()
	keyLogPath := filepath.Join(dir, "keys.log")
	indexPath := filepath.Join(dir, "capture.json")
	i, err := NewIndex(keyLogPath, indexPath, common.DefaultLogger)
	require.NoError(t, err)
	_, err = i.KeyLogWriter("127.0.0.1:1").Write([]byte(testLine))
	require.NoError(t, err)
	tracer := i.Tracer(context.Background(), logging.PerspectiveClient, quic.ConnectionIDFromBytes([]byte{1}))
	tracer.Close()
	require.NoError(t, i.Close())

	keys, err := os.ReadFile(keyLogPath)
	require.NoError(t, err)
	assert.Equal(t, testLine, string(keys))
	entries, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	assert.Contains(t, string(entries), `"odcid":"01"`)
}

func TestResolveKeyLogFile(t *testing.T) {
	t.Setenv(KeyLogEnv, "/tmp/env.log")
	assert.Equal(t, "/tmp/explicit.log", ResolveKeyLogFile("/tmp/explicit.log"))
	assert.Equal(t, "/tmp/env.log", ResolveKeyLogFile(""))
}

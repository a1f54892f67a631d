package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/m-lab/go/prometheusx/promtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLintMetrics(t *testing.T) {
	SeedValidations.WithLabelValues("accepted")
	promtest.LintMetrics(t)
}

func TestServe(t *testing.T) {
	var accessLog strings.Builder
	srv, err := Serve("127.0.0.1:0", func(p []byte) (int, error) {
		return accessLog.Write(p)
	})
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	before := testutil.ToFloat64(Connections.WithLabelValues("client"))
	Connections.WithLabelValues("client").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Connections.WithLabelValues("client")))

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "crperf_connections_total")
}

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "user_operations_submitted_total",
		Help: "test counter",
	})
	registry.MustRegister(submitted)
	submitted.Add(3)

	server := NewServer(zerolog.New(zerolog.NewTestWriter(t)), registry, "127.0.0.1", 0)
	require.NoError(t, server.Start())
	t.Cleanup(func() { require.NoError(t, server.Stop(context.Background())) })

	resp, err := http.Get("http://" + server.Addr() + Endpoint)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "user_operations_submitted_total 3")

	t.Run("address in use", func(t *testing.T) {
		other := NewServer(zerolog.Nop(), registry, "127.0.0.1", portOf(t, server.Addr()))
		require.Error(t, other.Start())
	})
}

func portOf(t *testing.T, addr string) int {
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

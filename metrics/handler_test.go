package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCollector struct {
	NoopCollector

	mu      sync.Mutex
	methods []string
	errors  int
}

func (c *recordingCollector) ApiErrorOccurred() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

func (c *recordingCollector) MeasureRequestDuration(_ time.Time, labels prometheus.Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods = append(c.methods, labels["method"])
}

func TestRequestTimer(t *testing.T) {
	testCases := []struct {
		name   string
		body   string
		method string
	}{
		{name: "namespaced method", body: `{"jsonrpc":"2.0","id":1,"method":"lazy_planAccount","params":[]}`, method: "lazy_planAccount"},
		{name: "foreign method", body: `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`, method: unknownMethod},
		{name: "batch", body: ` [{"method":"lazy_deriveNonceKey"}]`, method: batchMethod},
		{name: "malformed body", body: `{"method":`, method: unknownMethod},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			collector := &recordingCollector{}

			var forwarded string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				forwarded = string(body)
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			NewRequestTimer(next, collector, "lazy_").ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.body, forwarded)
			assert.Equal(t, []string{tc.method}, collector.methods)
			assert.Zero(t, collector.errors)
		})
	}

	t.Run("body too large", func(t *testing.T) {
		collector := &recordingCollector{}
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("oversized request must not be forwarded")
		})

		body := strings.Repeat("a", MaxRequestBodySize+1)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		NewRequestTimer(next, collector, "lazy_").ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, 1, collector.errors)
		assert.Empty(t, collector.methods)
	})
}

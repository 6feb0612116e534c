package metrics

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

// MaxRequestBodySize bounds the JSON-RPC request bodies read by the handler.
const MaxRequestBodySize = 5 << 20

const (
	batchMethod   = "batch"
	unknownMethod = "unknown"
)

// RequestTimer records the duration of every JSON-RPC request served by the
// wrapped handler, labelled by method.
type RequestTimer struct {
	handler   http.Handler
	collector Collector
	prefix    string
}

// NewRequestTimer wraps handler. Only methods starting with prefix are used
// as labels, anything else is recorded as "unknown" so clients cannot grow
// the label set.
func NewRequestTimer(handler http.Handler, collector Collector, prefix string) *RequestTimer {
	return &RequestTimer{
		handler:   handler,
		collector: collector,
		prefix:    prefix,
	}
}

func (h *RequestTimer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		h.collector.ApiErrorOccurred()

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "error reading request body", http.StatusBadRequest)
		return
	}
	// the wrapped handler reads the body again
	r.Body = io.NopCloser(bytes.NewReader(body))

	defer h.collector.MeasureRequestDuration(start, prometheus.Labels{"method": h.method(body)})
	h.handler.ServeHTTP(w, r)
}

// method names the request for the duration histogram. Malformed bodies are
// still passed on, the rpc server answers them with a parse error.
func (h *RequestTimer) method(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		return batchMethod
	}

	var request struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &request); err != nil {
		return unknownMethod
	}
	if !strings.HasPrefix(request.Method, h.prefix) {
		return unknownMethod
	}
	return request.Method
}

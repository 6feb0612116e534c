package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type NoopCollector struct{}

var _ Collector = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (c *NoopCollector) ApiErrorOccurred()                                   {}
func (c *NoopCollector) ServerPanicked(error)                                {}
func (c *NoopCollector) RequestRateLimited(string)                           {}
func (c *NoopCollector) OracleCallFailed(string)                             {}
func (c *NoopCollector) UserOperationSubmitted(string)                       {}
func (c *NoopCollector) MeasureRequestDuration(time.Time, prometheus.Labels) {}

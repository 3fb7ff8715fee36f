package xadmitstats

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

const namespace = "xadmit"

// collector 每次抓取时读取一次快照，不缓存
type collector struct {
	src     Source
	timeout time.Duration
	logger  xlog.Logger

	capacity       *prometheus.Desc
	inFlight       *prometheus.Desc
	peakInFlight   *prometheus.Desc
	admittedTotal  *prometheus.Desc
	blockedTotal   *prometheus.Desc
	activeRequests *prometheus.Desc
	windowUsage    *prometheus.Desc
	windowLimit    *prometheus.Desc
	scrapeError    *prometheus.Desc
}

var _ prometheus.Collector = (*collector)(nil)

func newCollector(src Source, timeout time.Duration, logger xlog.Logger) *collector {
	gate := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "gate", name), help, nil, nil)
	}
	window := []string{"window"}
	return &collector{
		src:            src,
		timeout:        timeout,
		logger:         xlog.OrDiscard(logger),
		capacity:       gate("capacity", "Configured global concurrency capacity."),
		inFlight:       gate("in_flight", "Requests currently holding a permit."),
		peakInFlight:   gate("peak_in_flight", "Highest in-flight count since the last stats reset."),
		admittedTotal:  gate("admitted_total", "Permits granted since the last stats reset."),
		blockedTotal:   gate("blocked_total", "Acquire calls that had to wait since the last stats reset."),
		activeRequests: gate("active_requests", "Distinct request IDs holding a permit."),
		windowUsage: prometheus.NewDesc(prometheus.BuildFQName(namespace, "window", "usage"),
			"Current usage of each rate-limit window.", window, nil),
		windowLimit: prometheus.NewDesc(prometheus.BuildFQName(namespace, "window", "limit"),
			"Configured limit of each rate-limit window.", window, nil),
		scrapeError: prometheus.NewDesc(prometheus.BuildFQName(namespace, "window", "scrape_error"),
			"1 if reading window usage failed during this scrape.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.inFlight
	ch <- c.peakInFlight
	ch <- c.admittedTotal
	ch <- c.blockedTotal
	ch <- c.activeRequests
	ch <- c.windowUsage
	ch <- c.windowLimit
	ch <- c.scrapeError
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snap, err := c.src.Snapshot(ctx)
	g := snap.Gate
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(g.Capacity))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(g.InFlight))
	ch <- prometheus.MustNewConstMetric(c.peakInFlight, prometheus.GaugeValue, float64(g.PeakInFlight))
	// ResetStats 会清零累计值，按 counter 暴露时由 Prometheus 识别为重置
	ch <- prometheus.MustNewConstMetric(c.admittedTotal, prometheus.CounterValue, float64(g.TotalAdmitted))
	ch <- prometheus.MustNewConstMetric(c.blockedTotal, prometheus.CounterValue, float64(g.TotalBlocked))
	ch <- prometheus.MustNewConstMetric(c.activeRequests, prometheus.GaugeValue, float64(g.ActiveRequests))

	l := snap.Limits
	ch <- prometheus.MustNewConstMetric(c.windowLimit, prometheus.GaugeValue, float64(l.RPM), "rpm")
	ch <- prometheus.MustNewConstMetric(c.windowLimit, prometheus.GaugeValue, float64(l.TPM), "tpm")
	ch <- prometheus.MustNewConstMetric(c.windowLimit, prometheus.GaugeValue, float64(l.RPD), "rpd")

	if err != nil {
		c.logger.Warn(ctx, "read window usage failed", xlog.Err(err))
		ch <- prometheus.MustNewConstMetric(c.scrapeError, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeError, prometheus.GaugeValue, 0)
	u := snap.Usage
	ch <- prometheus.MustNewConstMetric(c.windowUsage, prometheus.GaugeValue, float64(u.Requests), "rpm")
	ch <- prometheus.MustNewConstMetric(c.windowUsage, prometheus.GaugeValue, float64(u.Tokens), "tpm")
	ch <- prometheus.MustNewConstMetric(c.windowUsage, prometheus.GaugeValue, float64(u.Daily), "rpd")
}

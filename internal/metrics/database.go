package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolCollector reads pgxpool statistics at scrape time.
type poolCollector struct {
	pool *pgxpool.Pool

	total     *prometheus.Desc
	acquired  *prometheus.Desc
	idle      *prometheus.Desc
	max       *prometheus.Desc
	acquires  *prometheus.Desc
	waits     *prometheus.Desc
	waitTime  *prometheus.Desc
	cancelled *prometheus.Desc
}

// NewPoolCollector exposes connection pool statistics under breederhq_db_*.
func NewPoolCollector(pool *pgxpool.Pool) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", name), help, nil, nil)
	}
	return &poolCollector{
		pool:      pool,
		total:     desc("connections_open", "Open database connections"),
		acquired:  desc("connections_in_use", "Database connections currently acquired"),
		idle:      desc("connections_idle", "Idle database connections"),
		max:       desc("connections_max_open", "Maximum database connections allowed"),
		acquires:  desc("acquires_total", "Successful connection acquisitions"),
		waits:     desc("acquire_waits_total", "Acquisitions that had to wait for a free connection"),
		waitTime:  desc("acquire_wait_seconds_total", "Time spent waiting for connections"),
		cancelled: desc("acquires_cancelled_total", "Acquisitions cancelled by their context"),
	}
}

// RegisterPool adds pool statistics to Registry.
func RegisterPool(pool *pgxpool.Pool) error {
	return Registry.Register(NewPoolCollector(pool))
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.total, c.acquired, c.idle, c.max, c.acquires, c.waits, c.waitTime, c.cancelled} {
		ch <- d
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue, s.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(c.cancelled, prometheus.CounterValue, float64(s.CanceledAcquireCount()))
}

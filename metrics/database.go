package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatabaseMetrics exports connection pool statistics
type DatabaseMetrics struct {
	openConnections *prometheus.GaugeVec
	inUse           *prometheus.GaugeVec
	idle            *prometheus.GaugeVec
	waitCount       *prometheus.GaugeVec
	service         string
}

// NewDatabaseMetrics registers pool gauges labelled with service
func NewDatabaseMetrics(reg prometheus.Registerer, service string) *DatabaseMetrics {
	factory := promauto.With(reg)
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, []string{"service"})
	}
	return &DatabaseMetrics{
		openConnections: gauge("open_connections", "Established connections, in use and idle."),
		inUse:           gauge("in_use_connections", "Connections currently in use."),
		idle:            gauge("idle_connections", "Idle connections."),
		waitCount:       gauge("wait_count", "Total connections waited for."),
		service:         service,
	}
}

// UpdateDBStats samples db's pool statistics
func (d *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	if d == nil || db == nil {
		return
	}
	stats := db.Stats()
	d.openConnections.WithLabelValues(d.service).Set(float64(stats.OpenConnections))
	d.inUse.WithLabelValues(d.service).Set(float64(stats.InUse))
	d.idle.WithLabelValues(d.service).Set(float64(stats.Idle))
	d.waitCount.WithLabelValues(d.service).Set(float64(stats.WaitCount))
}

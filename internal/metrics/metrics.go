// Package metrics exposes Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	Enabled bool
	Build   BuildInfo
}

type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec

	requestDuration *prometheus.HistogramVec
	rowsSkipped     *prometheus.CounterVec
	importsTotal    *prometheus.CounterVec
	importFeatures  prometheus.Counter
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spatial_gateway_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.BuildDate).Set(1)

	p := &Provider{
		reg:       reg,
		buildInfo: build,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spatial_gateway_request_duration_seconds",
				Help:    "HTTP request latency by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		rowsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spatial_gateway_rows_skipped_total",
				Help: "Result rows dropped because they could not be shaped into a feature.",
			},
			[]string{"table"},
		),
		importsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spatial_gateway_imports_total",
				Help: "GeoPackage imports by outcome.",
			},
			[]string{"outcome"},
		),
		importFeatures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spatial_gateway_import_features_total",
				Help: "Features written by successful GeoPackage imports.",
			},
		),
	}
	reg.MustRegister(p.requestDuration, p.rowsSkipped, p.importsTotal, p.importFeatures)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// ObserveRequest records one served request.
func (p *Provider) ObserveRequest(route, method string, status int, d time.Duration) {
	p.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// RowsSkipped counts rows a query dropped while shaping results.
func (p *Provider) RowsSkipped(table string, n int) {
	p.rowsSkipped.WithLabelValues(table).Add(float64(n))
}

// ObserveImport records an import attempt and, on success, its feature count.
func (p *Provider) ObserveImport(outcome string, features int) {
	p.importsTotal.WithLabelValues(outcome).Inc()
	if features > 0 {
		p.importFeatures.Add(float64(features))
	}
}

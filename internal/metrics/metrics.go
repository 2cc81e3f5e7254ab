// Package metrics exposes marketplace sales as prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
)

const namespace = "servicehub"

// Sink counts committed sales. It implements marketplace.EventSink and never fails.
type Sink struct {
	registry  *prometheus.Registry
	sales     *prometheus.CounterVec
	volume    *prometheus.CounterVec
	royalties *prometheus.CounterVec
	transfers prometheus.Counter
	salePrice prometheus.Histogram
}

func New() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Completed sales by kind (purchase or resale).",
		}, []string{"kind"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_volume_total",
			Help:      "Sum of sale prices by kind.",
		}, []string{"kind"}),
		royalties: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "royalties_paid_total",
			Help:      "Royalties paid on resales by recipient (base or vendor).",
		}, []string{"recipient"}),
		transfers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Ownership transfers without payment.",
		}),
		salePrice: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_price",
			Help:      "Distribution of sale prices.",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 8),
		}),
	}
	s.registry.MustRegister(
		s.sales, s.volume, s.royalties, s.transfers, s.salePrice,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

func (s *Sink) Publish(_ context.Context, evt marketplace.Event) error {
	switch data := evt.Data.(type) {
	case marketplace.ServicePurchased:
		s.sale("purchase", data.Price)
	case marketplace.ServiceNftResold:
		s.sale("resale", data.Price)
		s.royalties.WithLabelValues("base").Add(float64(data.BaseRoyalty))
		s.royalties.WithLabelValues("vendor").Add(float64(data.VendorRoyalty))
	case marketplace.ServiceNftTransferred:
		s.transfers.Inc()
	}
	return nil
}

func (s *Sink) sale(kind string, price uint64) {
	s.sales.WithLabelValues(kind).Inc()
	s.volume.WithLabelValues(kind).Add(float64(price))
	s.salePrice.Observe(float64(price))
}

// Handler serves the registry in the prometheus text format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	created  *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "barberflow_bookings_created_total",
			Help: "Appointments created, by channel (public or admin).",
		}, []string{"channel"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "barberflow_bookings_rejected_total",
			Help: "Booking attempts rejected, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) bookingCreated(channel string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(channel).Inc()
}

func (m *Metrics) bookingRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

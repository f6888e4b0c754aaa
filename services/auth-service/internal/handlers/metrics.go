package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	logins *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		logins: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "barberflow_auth_logins_total",
			Help: "Login attempts by role and result.",
		}, []string{"role", "result"}),
	}
}

func (m *Metrics) login(role, result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(role, result).Inc()
}

// Package metrics содержит счётчики Prometheus бизнес-операций CRM.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics группирует счётчики операций. Методы безопасно вызывать на nil.
type Metrics struct {
	CustomersRegistered prometheus.Counter
	CustomersDeleted    prometheus.Counter
	InvoicesIssued      *prometheus.CounterVec
	Rejections          *prometheus.CounterVec
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CustomersRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "customers_registered_total",
			Help:      "Number of registered customers.",
		}),
		CustomersDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "customers_deleted_total",
			Help:      "Number of deleted customers.",
		}),
		InvoicesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "invoices_issued_total",
			Help:      "Number of issued invoices by status.",
		}, []string{"status"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "rejections_total",
			Help:      "Number of rejected operations by operation and reason.",
		}, []string{"operation", "reason"}),
	}
}

// CustomerRegistered увеличивает счётчик зарегистрированных клиентов.
func (m *Metrics) CustomerRegistered() {
	if m == nil {
		return
	}
	m.CustomersRegistered.Inc()
}

// CustomerDeleted увеличивает счётчик удалённых клиентов.
func (m *Metrics) CustomerDeleted() {
	if m == nil {
		return
	}
	m.CustomersDeleted.Inc()
}

// InvoiceIssued увеличивает счётчик счетов с данным статусом.
func (m *Metrics) InvoiceIssued(status string) {
	if m == nil {
		return
	}
	m.InvoicesIssued.WithLabelValues(status).Inc()
}

// Rejected учитывает отклонённую операцию.
func (m *Metrics) Rejected(operation, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(operation, reason).Inc()
}

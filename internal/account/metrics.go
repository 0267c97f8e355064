package account

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts provisioning and reconciliation activity. A nil *Metrics
// records nothing.
type Metrics struct {
	provisioned *prometheus.CounterVec
	retries     prometheus.Counter
	reconciled  *prometheus.CounterVec
}

// NewMetrics registers the account counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "accounts_provisioned_total",
			Help:      "Accounts created, by kind (user or visitor).",
		}, []string{"kind"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "directory_provision_retries_total",
			Help:      "Directory provisioning attempts retried after a username collision.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "directory_reconciliations_total",
			Help:      "Directory records reconciled, by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.provisioned, m.retries, m.reconciled} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) accountProvisioned(visitor bool) {
	if m == nil {
		return
	}
	kind := "user"
	if visitor {
		kind = "visitor"
	}
	m.provisioned.WithLabelValues(kind).Inc()
}

func (m *Metrics) provisionRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) reconciledAs(o Outcome) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(string(o)).Inc()
}

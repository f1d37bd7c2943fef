package service

import "github.com/prometheus/client_golang/prometheus"

// Token consumption outcomes, used as the "outcome" label.
const (
	OutcomeServed      = "served"
	OutcomeUnknown     = "unknown"
	OutcomeExpired     = "expired"
	OutcomeMismatch    = "mismatch"
	OutcomeNoDocument  = "no_document"
	OutcomeBlobMissing = "blob_missing"
)

// DeliveryMetrics counts issued and consumed download tokens.
// A nil *DeliveryMetrics records nothing.
type DeliveryMetrics struct {
	issued   prometheus.Counter
	consumed *prometheus.CounterVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) (*DeliveryMetrics, error) {
	m := &DeliveryMetrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docvault_tokens_issued_total",
			Help: "Total number of single-use download tokens issued.",
		}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_tokens_consumed_total",
			Help: "Total number of download tokens presented, by outcome.",
		}, []string{"outcome"}),
	}
	if err := reg.Register(m.issued); err != nil {
		return nil, err
	}
	if err := reg.Register(m.consumed); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DeliveryMetrics) tokenIssued() {
	if m != nil {
		m.issued.Inc()
	}
}

func (m *DeliveryMetrics) tokenConsumed(outcome string) {
	if m != nil {
		m.consumed.WithLabelValues(outcome).Inc()
	}
}

package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shouni/saju-soulmate/pkg/domain"
)

// Metrics はリモート呼び出しと状態遷移を Prometheus に公開します。
// nil の *Metrics は何も記録しません。
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	discarded     prometheus.Counter
}

// NewMetrics は reg にコレクタを登録して Metrics を返します。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "soulmate",
				Subsystem: "session",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each remote Gemini call.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"stage", "status"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "soulmate",
				Subsystem: "session",
				Name:      "stage_failures_total",
				Help:      "Remote call failures by stage and cause.",
			},
			[]string{"stage", "kind"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "soulmate",
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "State transitions by target status.",
			},
			[]string{"to"},
		),
		discarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "soulmate",
				Subsystem: "session",
				Name:      "stale_results_discarded_total",
				Help:      "Results dropped because the submission was superseded by a reset.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.stageDuration, m.stageFailures, m.transitions, m.discarded} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(stage domain.Stage, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		kind, ok := domain.KindOf(err)
		if !ok {
			kind = "unknown"
		}
		m.stageFailures.WithLabelValues(string(stage), string(kind)).Inc()
	}
	m.stageDuration.WithLabelValues(string(stage), status).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeTransition(to domain.AppStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) observeDiscard() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

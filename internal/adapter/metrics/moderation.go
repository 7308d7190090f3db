package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chatwarden/internal/domain"
)

// ModerationMetrics records the outcome of every moderation action.
// It satisfies app.ActionObserver.
type ModerationMetrics struct {
	ActionsTotal      *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	ActionErrors      *prometheus.CounterVec
	ThresholdsReached prometheus.Counter
}

// NewModerationMetrics creates and registers moderation metrics on the given registry.
func NewModerationMetrics(reg prometheus.Registerer) *ModerationMetrics {
	m := &ModerationMetrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "actions_total",
			Help:      "Total number of moderation actions handled, by kind, outcome and reason.",
		}, []string{"kind", "outcome", "reason"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "action_duration_seconds",
			Help:      "Time to handle a moderation action.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		ActionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "action_errors_total",
			Help:      "Total number of moderation actions that failed, by kind and error class.",
		}, []string{"kind", "class"}),
		ThresholdsReached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "votekick_thresholds_reached_total",
			Help:      "Total number of vote-kicks whose tally reached the threshold.",
		}),
	}

	reg.MustRegister(m.ActionsTotal, m.ActionDuration, m.ActionErrors, m.ThresholdsReached)
	return m
}

func (m *ModerationMetrics) ActionHandled(kind domain.ActionKind, res *domain.Result, err error, elapsed time.Duration) {
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	m.ActionDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	if err != nil {
		m.ActionErrors.WithLabelValues(label, errorClass(err)).Inc()
		return
	}
	if res == nil {
		return
	}

	m.ActionsTotal.WithLabelValues(label, string(res.Outcome), string(res.Reason)).Inc()
	if res.ThresholdReached != nil && *res.ThresholdReached {
		m.ThresholdsReached.Inc()
	}
}

func errorClass(err error) string {
	var storageErr *domain.StorageError
	switch {
	case errors.As(err, &storageErr):
		return "storage"
	case errors.Is(err, domain.ErrAdminLookup):
		return "admin_lookup"
	case errors.Is(err, domain.ErrUnknownAction):
		return "unknown_action"
	default:
		return "internal"
	}
}

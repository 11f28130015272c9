package ledgerhid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK        = "ok"
	outcomeAppError  = "app_error"
	outcomeTransport = "transport_error"
	outcomeCancelled = "cancelled"
)

// Metrics collects exchange statistics.
type Metrics struct {
	exchanges   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	statusWords *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg, if non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgerhid",
				Name:      "exchanges_total",
				Help:      "APDU exchanges by instruction and outcome.",
			},
			[]string{"ins", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledgerhid",
				Name:      "exchange_duration_seconds",
				Help:      "APDU exchange duration in seconds, including time spent on device confirmation.",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"ins"},
		),
		statusWords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgerhid",
				Name:      "status_words_total",
				Help:      "Status words returned by the device.",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.exchanges, m.duration, m.statusWords} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Instrument wraps ex so that every exchange is recorded.
func (m *Metrics) Instrument(ex Exchanger) Exchanger {
	return &instrumentedExchanger{inner: ex, metrics: m}
}

type instrumentedExchanger struct {
	inner   Exchanger
	metrics *Metrics
}

func (e *instrumentedExchanger) Exchange(ctx context.Context, cmd *Command) (*Answer, error) {
	start := time.Now()
	answer, err := e.inner.Exchange(ctx, cmd)

	ins := fmt.Sprintf("0x%02x", cmd.Instruction)
	e.metrics.duration.WithLabelValues(ins).Observe(time.Since(start).Seconds())

	var outcome string
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = outcomeCancelled
	case err != nil:
		outcome = outcomeTransport
	case answer.Status.IsSuccess():
		outcome = outcomeOK
	default:
		outcome = outcomeAppError
	}
	e.metrics.exchanges.WithLabelValues(ins, outcome).Inc()
	if answer != nil {
		e.metrics.statusWords.WithLabelValues(answer.Status.String()).Inc()
	}
	return answer, err
}

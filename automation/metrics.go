package automation

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"boardflow-api/domain"
)

const tracerName = "boardflow-api/automation"

// dispatchMetrics collects per-dispatch counters and emits them as an
// otel span plus one structured log line when the dispatch ends.
type dispatchMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	trigger domain.TriggerType
	board   string

	considered int
	fired      int
	failed     int
	err        error
}

func newDispatchMetrics(ctx context.Context, logger *log.Logger, trigger domain.TriggerType, boardID string) (*dispatchMetrics, context.Context) {
	m := &dispatchMetrics{
		logger:  logger,
		start:   time.Now(),
		trigger: trigger,
		board:   boardID,
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "automation.dispatch",
		trace.WithAttributes(
			attribute.String("trigger", string(trigger)),
			attribute.String("board", boardID),
		))
	m.span = span
	return m, spanCtx
}

func (m *dispatchMetrics) RuleConsidered() { m.considered++ }
func (m *dispatchMetrics) RuleFired()      { m.fired++ }
func (m *dispatchMetrics) RuleFailed()     { m.failed++ }

func (m *dispatchMetrics) SetError(err error) {
	if err == nil {
		return
	}
	m.err = err
}

// End closes the span and logs the dispatch summary.
func (m *dispatchMetrics) End() {
	if m == nil {
		return
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("rules_considered", m.considered),
			attribute.Int("rules_fired", m.fired),
			attribute.Int("rules_failed", m.failed),
		)
		if m.err != nil {
			m.span.RecordError(m.err)
			m.span.SetStatus(codes.Error, m.err.Error())
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"trigger":          m.trigger,
		"board":            m.board,
		"total_ms":         durationToMillis(time.Since(m.start)),
		"rules_considered": m.considered,
		"rules_fired":      m.fired,
		"rules_failed":     m.failed,
	}
	if m.err != nil {
		fields["error"] = m.err.Error()
	}
	m.logger.WithFields(fields).Debug("automation.dispatch.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

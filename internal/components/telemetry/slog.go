package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SlogAPI logs reports through log/slog. Counts are also recorded on the
// "gradebot.count" gauge of the global meter provider.
type SlogAPI struct {
	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
}

func (s SlogAPI) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// attrs turns params into slog attributes, errors go under "err" and
// everything else under its position.
func attrs(head []any, params []any) []any {
	out := head
	for i, p := range params {
		if err, ok := p.(error); ok {
			out = append(out, slog.String("err", err.Error()))
			continue
		}
		out = append(out, slog.Any(fmt.Sprintf("p%d", i), p))
	}
	return out
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.logger().Error(id, attrs([]any{slog.Bool("broken", true)}, params)...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.logger().Warn(id, attrs(nil, params)...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	s.logger().Debug(message, attrs(nil, params)...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.logger().Info(id, slog.Int64("count", count))
	gauge, err := otel.Meter("fic-gradebot/internal/components/telemetry").
		Int64Gauge("gradebot.count")
	if err != nil {
		return
	}
	gauge.Record(context.Background(), count, metric.WithAttributes(attribute.String("id", id)))
}

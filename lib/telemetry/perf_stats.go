package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentPerfStats registers process gauges on the global meter provider,
// they are observed on every metric export until ctx is done. Call it after
// Setup so the gauges bind to the configured provider.
func InstrumentPerfStats(ctx context.Context) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.Warn("perf stats disabled", "err", err)
		return
	}

	meter := otel.Meter("fic-gradebot/perf_stats")
	cpuGauge, _ := meter.Float64ObservableGauge("process.cpu_percent")
	rssGauge, _ := meter.Int64ObservableGauge("process.rss", metric.WithUnit("By"))
	heapGauge, _ := meter.Int64ObservableGauge("go.heap_alloc", metric.WithUnit("By"))
	goroutineGauge, _ := meter.Int64ObservableGauge("go.goroutines")

	reg, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		o.ObserveInt64(heapGauge, int64(mem.HeapAlloc))
		o.ObserveInt64(goroutineGauge, int64(runtime.NumGoroutine()))

		// since the last call
		if pct, err := proc.PercentWithContext(ctx, 0); err == nil {
			o.ObserveFloat64(cpuGauge, pct)
		}
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			o.ObserveInt64(rssGauge, int64(info.RSS))
		}
		return nil
	}, cpuGauge, rssGauge, heapGauge, goroutineGauge)
	if err != nil {
		slog.Warn("perf stats disabled", "err", err)
		return
	}

	go func() {
		<-ctx.Done()
		reg.Unregister()
	}()
}

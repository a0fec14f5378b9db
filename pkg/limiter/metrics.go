package limiter

// MetricsRecorder receives counters and timings from the engine. Emitted
// series: "ratelimit.check", "ratelimit.denied", "ratelimit.fail_open"
// (counters) and "ratelimit.latency" in seconds (observation), all tagged
// with algorithm and endpoint.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if recorder != nil' in the hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

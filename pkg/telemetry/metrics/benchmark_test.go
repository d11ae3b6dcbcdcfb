package metrics

import (
	"fmt"
	"testing"
)

// Benchmark_CardinalityLimiter_Known benchmarks the read-locked fast path.
func Benchmark_CardinalityLimiter_Known(b *testing.B) {
	cl := NewCardinalityLimiter(100)
	cl.Allow("api")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cl.Label("api")
		}
	})
}

// Benchmark_CardinalityLimiter_Overflow benchmarks rejection once the cap is hit.
func Benchmark_CardinalityLimiter_Overflow(b *testing.B) {
	cl := NewCardinalityLimiter(10)
	for i := 0; i < 10; i++ {
		cl.Allow(fmt.Sprintf("limiter-%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cl.Label("unknown")
	}
}

package tracing

import (
	"math"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// clampUint64 converts to int64 for span attributes, saturating at MaxInt64
func clampUint64(val uint64) int64 {
	if val > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(val)
}

// MemoryStats is a point-in-time view of the heap used to annotate discovery
// run spans.
type MemoryStats struct {
	HeapAlloc int64
	Sys       int64
	NumGC     int64
}

func ReadMemoryStats() MemoryStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return MemoryStats{
		HeapAlloc: clampUint64(memStats.HeapAlloc),
		Sys:       clampUint64(memStats.Sys),
		NumGC:     int64(memStats.NumGC),
	}
}

// SetMemoryDeltaAttributes records the heap growth between two snapshots on
// the span, using prefix as the attribute namespace.
func SetMemoryDeltaAttributes(span trace.Span, prefix string, before, after MemoryStats) {
	span.SetAttributes(
		attribute.Int64(prefix+".memoryHeapBytes", after.HeapAlloc),
		attribute.Int64(prefix+".memoryDeltaHeapBytes", after.HeapAlloc-before.HeapAlloc),
		attribute.Int64(prefix+".memoryDeltaSysBytes", after.Sys-before.Sys),
		attribute.Int64(prefix+".memoryDeltaNumGC", after.NumGC-before.NumGC),
	)
}

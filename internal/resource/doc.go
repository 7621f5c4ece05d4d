// Package resource governs the resources an index consumes.
//
// The Controller manages three budgets:
//
//   - Memory: every buffer growth reserves its bytes first (non-blocking, fail-fast)
//   - Concurrency: background rebuild slots
//   - IO: a token bucket throttling snapshot uploads
//
// # Memory Management
//
// AcquireMemory is non-blocking and fails with ErrMemoryLimitExceeded if the
// reservation would exceed the limit. Callers map the failure to their own
// capacity error and leave their buffers untouched:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(growBytes); err != nil {
//	    return ErrCapacityExceeded
//	}
//
// # Background Worker Limits
//
//	if !rc.TryAcquireBackground() {
//	    return // a rebuild is already running
//	}
//	defer rc.ReleaseBackground()
//
// # IO Rate Limiting
//
//	w := resource.NewRateLimitedWriter(ctx, dst, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource

package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
)

// CapacityLimiter caps the number of concurrent /analyze requests a
// resolver instance will accept, rejecting the rest with 429 rather than
// letting frame extraction pile up and starve the machine. Unlike the
// teacher's clip-vs-vod split, every request here counts against the same
// limit: the resolver only ever runs one kind of job.
type CapacityLimiter struct {
	inFlight atomic.Int64
	max      int
	gauge    prometheus.Gauge
}

// NewCapacityLimiter builds a limiter that rejects once max concurrent
// requests are in flight. gauge may be nil if the caller doesn't want the
// in-flight count exported as a metric.
func NewCapacityLimiter(max int, gauge prometheus.Gauge) *CapacityLimiter {
	return &CapacityLimiter{max: max, gauge: gauge}
}

// Limit wraps next, returning 429 once the configured concurrency cap is
// reached.
func (c *CapacityLimiter) Limit(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		current := c.inFlight.Add(1)
		if c.gauge != nil {
			c.gauge.Set(float64(current))
		}
		defer func() {
			c.inFlight.Add(-1)
			if c.gauge != nil {
				c.gauge.Set(float64(c.inFlight.Load()))
			}
		}()

		if c.max > 0 && int(current) > c.max {
			writeError(w, http.StatusTooManyRequests, "resolver is at capacity")
			return
		}

		next(w, r, ps)
	}
}

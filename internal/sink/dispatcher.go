package sink

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/log"
)

// DefaultTimeout bounds a single volume command.
const DefaultTimeout = 2 * time.Second

// Result describes one dispatched volume command.
type Result struct {
	Volume  int
	Err     error
	Elapsed time.Duration
}

// OK reports whether the sink applied the volume.
func (r Result) OK() bool {
	return r.Err == nil
}

// Dispatcher calls a Sink with a per-call timeout. Failures are logged and
// returned in the Result; they never panic or block past the timeout.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
}

// NewDispatcher wraps s. A non-positive timeout uses DefaultTimeout.
func NewDispatcher(s Sink, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{sink: s, timeout: timeout}
}

// Dispatch sets the volume to percent.
func (d *Dispatcher) Dispatch(ctx context.Context, percent int) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.sink.SetVolume(ctx, percent)
	res := Result{Volume: percent, Err: err, Elapsed: time.Since(start)}

	if err != nil {
		log.Warn("volume command failed", "sink", d.sink.Name(), "volume", percent, "err", err)
	} else {
		log.Debug("volume applied", "sink", d.sink.Name(), "volume", percent, "elapsed", res.Elapsed)
	}
	return res
}

// Sink returns the wrapped sink.
func (d *Dispatcher) Sink() Sink {
	return d.sink
}

package behavior

import "math/rand/v2"

// Wait is a leaf that succeeds once a span of time has passed. When maxTime
// exceeds minTime the span is drawn uniformly from [minTime, maxTime) at the
// start of every run.
type Wait struct {
	leaf
	source    TimeSource
	minTime   float64
	maxTime   float64
	remaining float64
	random    func() float64
}

func NewWait(source TimeSource, minTime, maxTime float64, opts ...Option) *Wait {
	if source == nil {
		violation("wait requires a time source")
	}
	w := &Wait{source: source, minTime: minTime, maxTime: maxTime, random: rand.Float64}
	w.init("Wait", opts)
	return w
}

// WithRandom replaces the source of uniform values in [0, 1).
func (w *Wait) WithRandom(fn func() float64) *Wait {
	w.random = fn
	return w
}

// Remaining returns the time left in the current run.
func (w *Wait) Remaining() float64 {
	return w.remaining
}

func (w *Wait) Tick() Status {
	return w.tick(w)
}

func (w *Wait) Abort() {
	w.abort(w)
}

func (w *Wait) start() {
	w.remaining = w.minTime
	if w.maxTime > w.minTime {
		w.remaining = w.minTime + w.random()*(w.maxTime-w.minTime)
	}
}

func (w *Wait) update() Status {
	w.remaining -= w.source.Elapsed()
	if w.remaining <= 0 {
		return Success
	}
	return Running
}

package behavior

// Action is a leaf that delegates each update to an application callback.
type Action struct {
	leaf
	fn func() Status
}

// NewAction returns a leaf running fn on every tick. fn must return Running,
// Success, Failure or Aborted.
func NewAction(fn func() Status, opts ...Option) *Action {
	if fn == nil {
		violation("action requires an update callback")
	}
	a := &Action{fn: fn}
	a.init("Action", opts)
	return a
}

func (a *Action) Tick() Status {
	return a.tick(a)
}

func (a *Action) Abort() {
	a.abort(a)
}

func (a *Action) update() Status {
	return a.fn()
}

package behavior

// Selector ticks its children left to right until one does not fail.
// Children that failed earlier in the run are not revisited.
type Selector struct {
	composite
	current int
}

func NewSelector(opts ...Option) *Selector {
	s := &Selector{}
	s.init("Selector", opts)
	return s
}

// AddChild appends n and returns s for chaining.
func (s *Selector) AddChild(n Node) *Selector {
	s.add(n)
	return s
}

func (s *Selector) Tick() Status {
	return s.tick(s)
}

func (s *Selector) Abort() {
	s.abort(s)
}

func (s *Selector) start() {
	s.requireChildren()
	s.current = 0
}

func (s *Selector) update() Status {
	for {
		status := s.children[s.current].Tick()
		if status != Failure {
			return status
		}
		s.current++
		if s.current == len(s.children) {
			return Failure
		}
	}
}

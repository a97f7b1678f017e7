package behavior

// Sequence ticks its children left to right until one does not succeed.
type Sequence struct {
	composite
	current int
}

func NewSequence(opts ...Option) *Sequence {
	s := &Sequence{}
	s.init("Sequence", opts)
	return s
}

// AddChild appends n and returns s for chaining.
func (s *Sequence) AddChild(n Node) *Sequence {
	s.add(n)
	return s
}

func (s *Sequence) Tick() Status {
	return s.tick(s)
}

func (s *Sequence) Abort() {
	s.abort(s)
}

func (s *Sequence) start() {
	s.requireChildren()
	s.current = 0
}

func (s *Sequence) update() Status {
	for {
		status := s.children[s.current].Tick()
		if status != Success {
			return status
		}
		s.current++
		if s.current == len(s.children) {
			return Success
		}
	}
}

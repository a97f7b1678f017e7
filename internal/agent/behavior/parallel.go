package behavior

// Policy decides how many children must reach a result for Parallel to
// report it.
type Policy int

const (
	RequireOne Policy = iota
	RequireAll
)

func (p Policy) String() string {
	switch p {
	case RequireOne:
		return "REQUIRE_ONE"
	case RequireAll:
		return "REQUIRE_ALL"
	default:
		return "UNKNOWN"
	}
}

// Parallel ticks every unfinished child on each tick. A child that reached
// Success or Failure keeps its result and is not ticked again, including in
// later runs. When Parallel completes, children that are still running are
// aborted.
type Parallel struct {
	composite
	success Policy
	failure Policy
}

func NewParallel(success, failure Policy, opts ...Option) *Parallel {
	p := &Parallel{success: success, failure: failure}
	p.init("Parallel", opts)
	return p
}

// AddChild appends n and returns p for chaining.
func (p *Parallel) AddChild(n Node) *Parallel {
	p.add(n)
	return p
}

func (p *Parallel) Tick() Status {
	return p.tick(p)
}

func (p *Parallel) Abort() {
	p.abort(p)
}

func (p *Parallel) start() {
	p.requireChildren()
}

func (p *Parallel) update() Status {
	var successes, failures int
	for _, child := range p.children {
		if !child.IsFinished() {
			child.Tick()
		}
		switch child.Status() {
		case Success:
			if p.success == RequireOne {
				return Success
			}
			successes++
		case Failure:
			if p.failure == RequireOne {
				return Failure
			}
			failures++
		}
	}
	if p.success == RequireAll && successes == len(p.children) {
		return Success
	}
	if p.failure == RequireAll && failures == len(p.children) {
		return Failure
	}
	return Running
}

func (p *Parallel) end() {
	p.abortChildren()
}

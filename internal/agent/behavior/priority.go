package behavior

// Guard decides whether a child may run. Guards are called on most ticks
// and should not have side effects.
type Guard func() bool

// Always is the guard given to children added without one.
func Always() bool { return true }

const noChild = -1

// PrioritySelector re-arbitrates its children every tick. Children are in
// priority order; a child whose guard passes preempts a lower priority child
// that is still running, which is aborted before the preempting child is
// ticked. The child that is currently running keeps running without its
// guard being checked again.
type PrioritySelector struct {
	composite
	guards  []Guard
	running int
}

func NewPrioritySelector(opts ...Option) *PrioritySelector {
	p := &PrioritySelector{running: noChild}
	p.init("PrioritySelector", opts)
	return p
}

// AddChild appends n guarded by guard and returns p for chaining. A nil guard
// always passes.
func (p *PrioritySelector) AddChild(n Node, guard Guard) *PrioritySelector {
	if guard == nil {
		guard = Always
	}
	p.add(n)
	p.guards = append(p.guards, guard)
	return p
}

// Running returns the index of the child recorded as running, or -1.
func (p *PrioritySelector) Running() int {
	return p.running
}

func (p *PrioritySelector) Tick() Status {
	return p.tick(p)
}

func (p *PrioritySelector) Abort() {
	p.abort(p)
}

func (p *PrioritySelector) start() {
	p.requireChildren()
	p.running = noChild
}

func (p *PrioritySelector) update() Status {
	for i, child := range p.children {
		if i != p.running {
			if !p.guards[i]() {
				continue
			}
			if p.running != noChild {
				if prev := p.children[p.running]; prev.IsRunning() {
					prev.Abort()
				}
				p.running = noChild
			}
		}
		status := child.Tick()
		if status == Failure {
			p.running = noChild
			continue
		}
		p.running = i
		return status
	}
	p.running = noChild
	return Failure
}

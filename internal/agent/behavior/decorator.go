package behavior

// single holds the one child of a Decorator or Condition.
type single struct {
	lifecycle
	child Node
}

func (s *single) set(n Node) {
	if n == nil {
		violation("nil child set on %s", s.name)
	}
	s.child = n
}

func (s *single) requireChild() {
	if s.child == nil {
		violation("%s has no child", s.name)
	}
}

func (s *single) abortChildren() {
	if s.child.IsRunning() {
		s.child.Abort()
	}
}

// Child returns the wrapped node, or nil.
func (s *single) Child() Node {
	return s.child
}

func (s *single) Children() []Node {
	if s.child == nil {
		return nil
	}
	return []Node{s.child}
}

// Decorator wraps a single child. By default it returns the child's status
// unchanged; NewDecoratorFunc lets the caller transform it.
type Decorator struct {
	single
	fn func(child Node) Status
}

func NewDecorator(opts ...Option) *Decorator {
	return NewDecoratorFunc(nil, opts...)
}

// NewDecoratorFunc returns a decorator whose update is fn. fn receives the
// child and is responsible for ticking it. A nil fn forwards the tick.
func NewDecoratorFunc(fn func(child Node) Status, opts ...Option) *Decorator {
	d := &Decorator{fn: fn}
	d.init("Decorator", opts)
	return d
}

// SetChild replaces the child and returns d for chaining.
func (d *Decorator) SetChild(n Node) *Decorator {
	d.set(n)
	return d
}

func (d *Decorator) Tick() Status {
	return d.tick(d)
}

func (d *Decorator) Abort() {
	d.abort(d)
}

func (d *Decorator) start() {
	d.requireChild()
}

func (d *Decorator) update() Status {
	if d.fn != nil {
		return d.fn(d.child)
	}
	return d.child.Tick()
}

func (d *Decorator) end() {}

// Repeat returns a decorator that reports Running whenever its child
// succeeds, so the child restarts on the next tick. Failures pass through.
func Repeat(opts ...Option) *Decorator {
	return NewDecoratorFunc(func(child Node) Status {
		if status := child.Tick(); status != Success {
			return status
		}
		return Running
	}, append([]Option{WithName("Repeat")}, opts...)...)
}

package behavior

// Condition ticks its child only while check passes. When check fails the
// condition fails without ticking the child, and a child left running is
// aborted as the condition ends.
type Condition struct {
	single
	check Guard
}

func NewCondition(check Guard, opts ...Option) *Condition {
	if check == nil {
		violation("condition requires a check function")
	}
	c := &Condition{check: check}
	c.init("Condition", opts)
	return c
}

// SetChild replaces the child and returns c for chaining.
func (c *Condition) SetChild(n Node) *Condition {
	c.set(n)
	return c
}

func (c *Condition) Tick() Status {
	return c.tick(c)
}

func (c *Condition) Abort() {
	c.abort(c)
}

func (c *Condition) start() {
	c.requireChild()
}

func (c *Condition) update() Status {
	if c.check() {
		return c.child.Tick()
	}
	return Failure
}

func (c *Condition) end() {
	if c.child.IsRunning() {
		c.child.Abort()
	}
}

package behavior

// composite holds the ordered children shared by Sequence, Selector,
// PrioritySelector and Parallel.
type composite struct {
	lifecycle
	children []Node
}

func (c *composite) add(n Node) {
	if n == nil {
		violation("nil child added to %s", c.name)
	}
	c.children = append(c.children, n)
}

// requireChildren is checked at the start of every run because children are
// usually added after construction.
func (c *composite) requireChildren() {
	if len(c.children) == 0 {
		violation("%s has no children", c.name)
	}
}

func (c *composite) abortChildren() {
	for _, child := range c.children {
		if child.IsRunning() {
			child.Abort()
		}
	}
}

func (c *composite) end() {}

func (c *composite) Children() []Node {
	return c.children
}

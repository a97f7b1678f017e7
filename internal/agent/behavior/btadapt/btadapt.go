// Package btadapt converts between behavior nodes and
// github.com/joeycumines/go-behaviortree nodes.
package btadapt

import (
	"errors"
	"sync"

	bt "github.com/joeycumines/go-behaviortree"

	"example.com/bt-fleet/internal/agent/behavior"
)

// ToBT wraps n as a go-behaviortree leaf. Each tick of the returned node
// ticks n once. Aborted is reported as bt.Failure since go-behaviortree has
// no equivalent status.
func ToBT(n behavior.Node) bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		if n == nil {
			return bt.Failure, errors.New("btadapt: nil node")
		}
		return toStatus(n.Tick()), nil
	})
}

func toStatus(s behavior.Status) bt.Status {
	switch s {
	case behavior.Running:
		return bt.Running
	case behavior.Success:
		return bt.Success
	default:
		return bt.Failure
	}
}

// Leaf is a behavior action backed by a go-behaviortree node.
type Leaf struct {
	*behavior.Action

	mu  sync.Mutex
	err error
}

// FromBT wraps node as a behavior leaf. A tick that returns an error, or a
// status other than running, success or failure, results in Failure; the
// error is kept and available from Err until the next tick.
func FromBT(node bt.Node, opts ...behavior.Option) *Leaf {
	l := &Leaf{}
	l.Action = behavior.NewAction(func() behavior.Status {
		status, err := node.Tick()
		l.setErr(err)
		if err != nil {
			return behavior.Failure
		}
		return fromStatus(status)
	}, append([]behavior.Option{behavior.WithName("BT")}, opts...)...)
	return l
}

func fromStatus(s bt.Status) behavior.Status {
	switch s {
	case bt.Running:
		return behavior.Running
	case bt.Success:
		return behavior.Success
	default:
		return behavior.Failure
	}
}

func (l *Leaf) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// Err returns the error from the last tick, if any.
func (l *Leaf) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

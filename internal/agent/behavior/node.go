package behavior

import (
	"errors"
	"fmt"
)

// ErrContractViolation is wrapped by every panic raised for a misconfigured
// tree: a missing callback, an update returning an invalid status, aborting a
// node that is not running, or ticking a composite with no children.
var ErrContractViolation = errors.New("behavior: contract violation")

func violation(format string, args ...any) {
	panic(fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...)))
}

// Node is a unit of a behavior tree.
//
// A run of a node is the span of ticks from the tick that starts it to the
// tick (or abort) that leaves it in a non-Running status. The start hook
// fires once at the beginning of each run and the end hook once at its end.
type Node interface {
	// Tick performs one step and returns the resulting status.
	Tick() Status
	// Abort cancels a running node and its running descendants. It panics
	// if the node is not running.
	Abort()
	Status() Status
	IsRunning() bool
	// IsFinished reports whether the node completed with Success or Failure.
	// Aborted nodes are not finished.
	IsFinished() bool
	Name() string
	// Children lists the direct children in order. Callers must not modify
	// the returned slice.
	Children() []Node
}

// Option configures the lifecycle shared by every node.
type Option func(*lifecycle)

// WithName overrides the name used by Render and Snapshot.
func WithName(name string) Option {
	return func(l *lifecycle) {
		l.name = name
	}
}

// WithStart sets a hook fired at the start of every run.
func WithStart(fn func()) Option {
	return func(l *lifecycle) {
		l.onStart = fn
	}
}

// WithEnd sets a hook fired at the end of every run, including aborts.
func WithEnd(fn func()) Option {
	return func(l *lifecycle) {
		l.onEnd = fn
	}
}

// kind is the per node type behaviour driven by lifecycle. Node types pass
// themselves to tick and abort rather than storing a reference to
// themselves.
type kind interface {
	start()
	update() Status
	end()
	abortChildren()
}

type lifecycle struct {
	status  Status
	name    string
	onStart func()
	onEnd   func()
}

func (l *lifecycle) init(name string, opts []Option) {
	l.name = name
	for _, opt := range opts {
		opt(l)
	}
}

func (l *lifecycle) tick(k kind) Status {
	if l.status != Running {
		k.start()
		if l.onStart != nil {
			l.onStart()
		}
	}
	status := k.update()
	if !status.Valid() {
		violation("%s update returned %v", l.name, status)
	}
	l.status = status
	if status != Running {
		l.finish(k)
	}
	return status
}

func (l *lifecycle) abort(k kind) {
	if l.status != Running {
		violation("abort of %s in status %v", l.name, l.status)
	}
	l.status = Aborted
	k.abortChildren()
	l.finish(k)
}

func (l *lifecycle) finish(k kind) {
	k.end()
	if l.onEnd != nil {
		l.onEnd()
	}
}

func (l *lifecycle) Status() Status {
	return l.status
}

func (l *lifecycle) IsRunning() bool {
	return l.status == Running
}

func (l *lifecycle) IsFinished() bool {
	return l.status == Success || l.status == Failure
}

func (l *lifecycle) Name() string {
	return l.name
}

// leaf provides the no-op parts of kind for nodes without children.
type leaf struct {
	lifecycle
}

func (leaf) start()           {}
func (leaf) end()             {}
func (leaf) abortChildren()   {}
func (leaf) Children() []Node { return nil }

package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecorator_Forwards(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	root := NewDecorator().SetChild(child)

	require.Equal(t, Running, root.Tick())
	child.returnStatus = Failure
	require.Equal(t, Failure, root.Tick())
	require.Equal(t, 1, child.endCount)
	require.Same(t, child, root.Child())
}

func TestDecorator_AbortsRunningChild(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	root := NewDecorator().SetChild(child)

	require.Equal(t, Running, root.Tick())
	require.Equal(t, Running, root.Status())
	require.Equal(t, Running, child.Status())
	require.Zero(t, child.endCount)

	root.Abort()
	require.Equal(t, Aborted, root.Status())
	require.Equal(t, Aborted, child.Status())
	require.Equal(t, 1, child.endCount)
}

func TestDecorator_AbortOrderIsDepthFirst(t *testing.T) {
	t.Parallel()

	var order []string
	inner := NewAction(func() Status { return Running }, WithEnd(func() { order = append(order, "inner") }))
	middle := NewDecorator(WithEnd(func() { order = append(order, "middle") })).SetChild(inner)
	outer := NewDecorator(WithEnd(func() { order = append(order, "outer") })).SetChild(middle)

	require.Equal(t, Running, outer.Tick())
	outer.Abort()
	require.Equal(t, []string{"inner", "middle", "outer"}, order)
}

func TestDecoratorFunc_TransformsResult(t *testing.T) {
	t.Parallel()

	invert := NewDecoratorFunc(func(child Node) Status {
		switch status := child.Tick(); status {
		case Success:
			return Failure
		case Failure:
			return Success
		default:
			return status
		}
	}, WithName("Invert"))
	child := newMockAction()
	invert.SetChild(child)

	require.Equal(t, Running, invert.Tick())
	child.returnStatus = Success
	require.Equal(t, Failure, invert.Tick())
	child.returnStatus = Failure
	require.Equal(t, Success, invert.Tick())
	require.Equal(t, "Invert", invert.Name())
}

func TestRepeat(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	child.returnStatus = Success
	root := Repeat().SetChild(child)

	for i := 0; i < 3; i++ {
		require.Equal(t, Running, root.Tick())
	}
	require.Equal(t, 3, child.startCount)
	require.Equal(t, 3, child.endCount)
	require.Equal(t, Running, root.Status())
}

func TestRepeat_PassesFailure(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	child.returnStatus = Failure
	require.Equal(t, Failure, Repeat().SetChild(child).Tick())
}

func TestDecorator_RequiresChild(t *testing.T) {
	t.Parallel()

	requireViolation(t, func() { NewDecorator().Tick() })
	requireViolation(t, func() { NewDecorator().SetChild(nil) })
	assert.Nil(t, NewDecorator().Children())
}

func TestCondition_PassesChildStatus(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	root := NewCondition(func() bool { return true }).SetChild(child)

	require.Equal(t, Running, root.Tick())
	child.returnStatus = Success
	require.Equal(t, Success, root.Tick())
	require.Equal(t, 1, child.endCount)
}

func TestCondition_NeverStartsChildWhileFalse(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	root := NewCondition(func() bool { return false }).SetChild(child)

	for i := 0; i < 3; i++ {
		require.Equal(t, Failure, root.Tick())
	}
	require.Zero(t, child.startCount)
	require.Zero(t, child.updateCount)
	require.Equal(t, Invalid, child.Status())
}

func TestCondition_AbortsChildWhenCheckFlips(t *testing.T) {
	t.Parallel()

	ok := true
	child := newMockAction()
	var childEndedFirst bool
	root := NewCondition(func() bool { return ok }, WithEnd(func() {
		childEndedFirst = child.Status() == Aborted
	})).SetChild(child)

	require.Equal(t, Running, root.Tick())
	require.Equal(t, Running, child.Status())

	ok = false
	require.Equal(t, Failure, root.Tick())
	require.Equal(t, Aborted, child.Status())
	require.Equal(t, 1, child.endCount)
	require.Equal(t, 1, child.updateCount)
	require.True(t, childEndedFirst)
}

func TestCondition_Abort(t *testing.T) {
	t.Parallel()

	child := newMockAction()
	root := NewCondition(func() bool { return true }).SetChild(child)

	require.Equal(t, Running, root.Tick())
	root.Abort()
	require.Equal(t, Aborted, root.Status())
	require.Equal(t, Aborted, child.Status())
	require.Equal(t, 1, child.endCount)
}

func TestCondition_RequiresCheckAndChild(t *testing.T) {
	t.Parallel()

	requireViolation(t, func() { NewCondition(nil) })
	requireViolation(t, func() { NewCondition(func() bool { return true }).Tick() })
}

package btadapt

import (
	"errors"
	"testing"

	bt "github.com/joeycumines/go-behaviortree"
	"github.com/stretchr/testify/require"

	"example.com/bt-fleet/internal/agent/behavior"
)

func TestToBT_MapsStatuses(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   behavior.Status
		want bt.Status
	}{
		{behavior.Running, bt.Running},
		{behavior.Success, bt.Success},
		{behavior.Failure, bt.Failure},
		{behavior.Aborted, bt.Failure},
	} {
		in := tc.in
		node := ToBT(behavior.NewAction(func() behavior.Status { return in }))
		status, err := node.Tick()
		require.NoError(t, err)
		require.Equal(t, tc.want, status, "status %v", tc.in)
	}
}

func TestToBT_InsideSequence(t *testing.T) {
	t.Parallel()

	var ticks int
	counter := behavior.NewAction(func() behavior.Status {
		ticks++
		if ticks < 2 {
			return behavior.Running
		}
		return behavior.Success
	})
	tree := bt.New(bt.Sequence, ToBT(counter), ToBT(behavior.NewWait(behavior.StepClock{}, 0, 0)))

	status, err := tree.Tick()
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)

	status, err = tree.Tick()
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
	require.Equal(t, behavior.Success, counter.Status())
}

func TestToBT_NilNode(t *testing.T) {
	t.Parallel()

	status, err := ToBT(nil).Tick()
	require.Error(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestFromBT(t *testing.T) {
	t.Parallel()

	next := bt.Running
	node := bt.New(func([]bt.Node) (bt.Status, error) { return next, nil })
	leaf := FromBT(node, behavior.WithName("legacy"))

	require.Equal(t, "legacy", leaf.Name())
	require.Equal(t, behavior.Running, leaf.Tick())
	next = bt.Success
	require.Equal(t, behavior.Success, leaf.Tick())
	next = bt.Failure
	require.Equal(t, behavior.Failure, leaf.Tick())
	require.NoError(t, leaf.Err())
}

func TestFromBT_ErrorIsFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	node := bt.New(func([]bt.Node) (bt.Status, error) { return bt.Running, boom })
	leaf := FromBT(node)

	seq := behavior.NewSequence().AddChild(leaf)
	require.Equal(t, behavior.Failure, seq.Tick())
	require.ErrorIs(t, leaf.Err(), boom)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	inner := behavior.NewAction(func() behavior.Status { return behavior.Success }, behavior.WithName("inner"))
	leaf := FromBT(ToBT(inner))
	require.Equal(t, behavior.Success, leaf.Tick())
	require.Equal(t, behavior.Success, inner.Status())
}

package behavior

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() (*PrioritySelector, *Action) {
	dig := NewAction(func() Status { return Running }, WithName("dig"))
	root := NewPrioritySelector(WithName("miner")).
		AddChild(NewSequence(WithName("drink")).AddChild(NewAction(func() Status { return Success }, WithName("sip"))), func() bool { return false }).
		AddChild(NewSequence(WithName("mine")).AddChild(dig), nil)
	return root, dig
}

func TestRender(t *testing.T) {
	t.Parallel()

	root, _ := sampleTree()
	require.Equal(t, Running, root.Tick())

	out := Render(root)
	for _, want := range []string{"miner [RUNNING]", "drink [INVALID]", "sip [INVALID]", "mine [RUNNING]", "dig [RUNNING]"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "drink"), strings.Index(out, "mine ["))
	assert.Equal(t, "<nil node>", Render(nil))
}

func TestWalk(t *testing.T) {
	t.Parallel()

	root, _ := sampleTree()

	var names []string
	var depths []int
	Walk(root, func(n Node, depth int) bool {
		names = append(names, n.Name())
		depths = append(depths, depth)
		return true
	})
	require.Equal(t, []string{"miner", "drink", "sip", "mine", "dig"}, names)
	require.Equal(t, []int{0, 1, 2, 1, 2}, depths)

	names = nil
	Walk(root, func(n Node, depth int) bool {
		names = append(names, n.Name())
		return n.Name() != "drink"
	})
	require.Equal(t, []string{"miner", "drink", "mine", "dig"}, names)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	root, dig := sampleTree()
	require.Equal(t, Running, root.Tick())

	snap := Snapshot(root)
	require.Equal(t, "miner", snap.Name)
	require.Equal(t, Running, snap.Status)
	require.Len(t, snap.Children, 2)
	require.Equal(t, dig.Name(), snap.Children[1].Children[0].Name)

	data, err := json.Marshal(snap.Children[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"drink","status":"INVALID","children":[{"name":"sip","status":"INVALID"}]}`, string(data))

	var decoded NodeSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, snap.Children[0], decoded)
}

func TestSnapshot_NilRoot(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { Snapshot(nil) })
	require.Equal(t, NodeSnapshot{}, Snapshot(nil))
}

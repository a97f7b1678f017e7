package miner

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/bt-fleet/internal/agent/behavior"
)

func run(t *testing.T, root behavior.Node, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		root.Tick()
	}
}

func TestMiner_DigsUntilPocketsFull(t *testing.T) {
	t.Parallel()

	m := New(DefaultParams(), nil)
	root := m.Tree()

	require.Equal(t, behavior.Success, root.Tick())
	require.Equal(t, Mine, m.Location())
	require.Equal(t, 1, m.Pockets())
	require.Equal(t, 3, root.Running())

	run(t, root, 2)
	require.Equal(t, 3, m.Pockets())
	require.Equal(t, 3, m.Thirst())

	require.Equal(t, behavior.Success, root.Tick())
	require.Equal(t, Bank, m.Location())
	require.Equal(t, 3, m.Bank())
	require.Zero(t, m.Pockets())
	require.Equal(t, 2, root.Running())
}

func TestMiner_DrinksWhenThirsty(t *testing.T) {
	t.Parallel()

	m := New(DefaultParams(), nil)
	root := m.Tree()

	// 3 digs, a deposit, 2 more digs leave the miner at the threshold.
	run(t, root, 6)
	require.Equal(t, 5, m.Thirst())
	require.Equal(t, Mine, m.Location())

	require.Equal(t, behavior.Success, root.Tick())
	require.Equal(t, Saloon, m.Location())
	require.Zero(t, m.Thirst())
	require.Equal(t, 1, m.Stats()["drinks"])
}

func TestMiner_SleepsUntilBroke(t *testing.T) {
	t.Parallel()

	m := New(Params{PocketSize: 3, MinimumBalance: 3, ThirstThreshold: 100}, nil)
	root := m.Tree()

	run(t, root, 4)
	require.Equal(t, 3, m.Bank())

	require.Equal(t, behavior.Running, root.Tick())
	require.Equal(t, Home, m.Location())
	require.Equal(t, 2, m.Bank())
	require.Equal(t, 0, root.Running())

	require.Equal(t, behavior.Running, root.Tick())
	require.Equal(t, behavior.Success, root.Tick())
	require.Zero(t, m.Bank())
	require.Equal(t, 1, m.Stats()["naps"])

	require.Equal(t, behavior.Success, root.Tick())
	require.Equal(t, Mine, m.Location())
}

func TestMiner_LongRunKeepsInvariants(t *testing.T) {
	t.Parallel()

	m := New(DefaultParams(), nil)
	root := m.Tree()
	for i := 0; i < 500; i++ {
		status := root.Tick()
		require.Contains(t, []behavior.Status{behavior.Running, behavior.Success}, status)
		require.GreaterOrEqual(t, m.Bank(), 0)
		require.LessOrEqual(t, m.Pockets(), m.Params().PocketSize)
	}
	stats := m.Stats()
	assert.Positive(t, stats["nuggets"])
	assert.Positive(t, stats["deposits"])
	assert.Positive(t, stats["drinks"])
	assert.Positive(t, stats["naps"])
}

func TestMiner_LeavesFailOutsideTheirLocation(t *testing.T) {
	t.Parallel()

	m := New(DefaultParams(), nil)
	for _, fn := range []func() behavior.Status{m.sleep, m.drink, m.deposit, m.dig} {
		require.Equal(t, behavior.Failure, fn())
	}
}

func TestMiner_Logs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	m := New(DefaultParams(), log.New(&buf, "[miner] ", 0))
	run(t, m.Tree(), 4)

	out := buf.String()
	assert.Contains(t, out, "[miner] Walkin' to the gold mine.")
	assert.Contains(t, out, "Pickin' up a nugget.")
	assert.Contains(t, out, "Depositin' gold. Total savings now: 3")
}

func TestParams(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultParams(), Params{}.WithDefaults())
	require.Equal(t, 7, Params{PocketSize: 7}.WithDefaults().PocketSize)
	require.NoError(t, DefaultParams().Validate())

	err := Params{PocketSize: -1, MinimumBalance: 1, ThirstThreshold: 0}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pocket_size")
	assert.Contains(t, err.Error(), "thirst_threshold")
	assert.NotContains(t, err.Error(), "minimum_balance")
}

func TestLocation_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "mine", Mine.String())
	assert.Equal(t, "home", Home.String())
	assert.Equal(t, "nowhere", Nowhere.String())
}

package behavior

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// mockAction counts its hook calls and returns whatever returnStatus holds.
type mockAction struct {
	*Action
	returnStatus Status
	startCount   int
	updateCount  int
	endCount     int
}

func newMockAction() *mockAction {
	m := &mockAction{returnStatus: Running}
	m.Action = NewAction(
		func() Status {
			m.updateCount++
			return m.returnStatus
		},
		WithName("Mock"),
		WithStart(func() { m.startCount++ }),
		WithEnd(func() { m.endCount++ }),
	)
	return m
}

func catchPanic(fn func()) (r any) {
	defer func() {
		r = recover()
	}()
	fn()
	return nil
}

func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	r := catchPanic(fn)
	require.NotNil(t, r, "expected a contract violation")
	err, ok := r.(error)
	require.True(t, ok, "panic value %v is not an error", r)
	require.ErrorIs(t, err, ErrContractViolation)
}

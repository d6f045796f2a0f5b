package firewall

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_DuplicateRulesLastHandleWins(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.AddRule("10.0.0.1"))
	require.NoError(t, m.AddRule("10.0.0.2"))
	require.NoError(t, m.AddRule("10.0.0.1"))

	handles, err := m.ListHandles()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"10.0.0.1": "3", "10.0.0.2": "2"}, handles)

	blocked, err := m.ListBlocked()
	require.NoError(t, err)
	assert.Len(t, blocked, 2)
	assert.Len(t, m.Rules(), 3)
}

func TestMemory_RemoveRule(t *testing.T) {
	m := NewMemory()
	m.Seed("10.0.0.1", "10.0.0.2")

	require.NoError(t, m.RemoveRule(""))
	assert.Len(t, m.Rules(), 2)

	require.NoError(t, m.RemoveRule("1"))
	assert.Equal(t, []Rule{{Addr: "10.0.0.2", Handle: "2"}}, m.Rules())

	err := m.RemoveRule("1")
	assert.ErrorIs(t, err, ErrCommand)
	assert.Equal(t, 3, m.Calls("RemoveRule"))
}

func TestMemory_InjectedErrors(t *testing.T) {
	m := NewMemory()
	m.EnsureErr = errors.New("no permission")
	m.AddErr = errors.New("bad address")

	assert.ErrorIs(t, m.EnsureTable(), ErrCommand)
	assert.False(t, m.Ensured())
	assert.ErrorIs(t, m.AddRule("x"), ErrCommand)
	assert.Empty(t, m.Rules())
}

package firewall

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCommandRunner scripts CommandRunner with testify. Expectations match
// the program name followed by each argument; the context is not matched.
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Run(_ context.Context, name string, args ...string) error {
	return m.Called(callArgs(name, args)...).Error(0)
}

func (m *MockCommandRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	ret := m.Called(callArgs(name, args)...)
	out, _ := ret.Get(0).([]byte)
	return out, ret.Error(1)
}

func callArgs(name string, args []string) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, name)
	for _, a := range args {
		out = append(out, a)
	}
	return out
}

package toolchain

import (
	"context"
	"strings"
	"sync"
)

// Invocation is a single recorded command.
type Invocation struct {
	Name string
	Args []string
}

// CommandLine returns the invocation as a single string.
func (i Invocation) CommandLine() string {
	return strings.Join(append([]string{i.Name}, i.Args...), " ")
}

// RecordingRunner records invocations and delegates to an optional handler.
// Used by tests of packages depending on the toolchain.
type RecordingRunner struct {
	sync.Mutex
	Invocations []Invocation
	Handler     func(name string, args []string) ([]byte, error)
}

// Run records the invocation.
func (r *RecordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.Lock()
	r.Invocations = append(r.Invocations, Invocation{Name: name, Args: append([]string{}, args...)})
	handler := r.Handler
	r.Unlock()
	if handler != nil {
		return handler(name, args)
	}
	return []byte{}, nil
}

// Called returns the invocations of the given program.
func (r *RecordingRunner) Called(name string) []Invocation {
	r.Lock()
	defer r.Unlock()
	result := []Invocation{}
	for _, inv := range r.Invocations {
		if inv.Name == name {
			result = append(result, inv)
		}
	}
	return result
}

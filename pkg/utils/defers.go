package utils

import "sync"

// Defers maintains an ordered LIFO list of cleanup functions.
// Commands register temporary files, spans and connections here and release them on exit.
type Defers interface {
	// Add inserts the function at the beginning of the list.
	Add(func())
	// CallAll calls all deferred functions in the reverse order of registration
	// and empties the list, so a second call is a no-op.
	CallAll()
}

type defaultDefers struct {
	sync.Mutex
	fs []func()
}

// NewDefers returns a new instance of Defers.
func NewDefers() Defers {
	return &defaultDefers{fs: []func(){}}
}

func (ds *defaultDefers) Add(f func()) {
	ds.Lock()
	defer ds.Unlock()
	ds.fs = append([]func(){f}, ds.fs...)
}

func (ds *defaultDefers) CallAll() {
	ds.Lock()
	fs := ds.fs
	ds.fs = []func(){}
	ds.Unlock()
	for _, f := range fs {
		f()
	}
}

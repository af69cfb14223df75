// Package publish mirrors produced files to a remote location.
package publish

import (
	"context"
)

// Publisher uploads files produced under a local root directory.
type Publisher interface {
	// Publish uploads files, given as paths under localRoot,
	// to the same relative paths under the remote root.
	Publish(ctx context.Context, localRoot string, files []string) error
}

// Provider is a configurable publisher.
type Provider interface {
	Publisher
	Configure(map[string]interface{}) error
}

type noopPublisher struct{}

// NewNoop returns a publisher which does nothing.
func NewNoop() Publisher {
	return &noopPublisher{}
}

func (p *noopPublisher) Publish(_ context.Context, _ string, _ []string) error {
	return nil
}

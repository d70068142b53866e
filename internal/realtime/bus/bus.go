// Package bus relays mutation events between server instances so every
// instance can fan them out to its own sessions.
package bus

import (
	"context"

	"pipeline-orchestrator/internal/domain"
)

// Envelope is one relayed event. Origin identifies the publishing instance so
// it can skip its own messages.
type Envelope struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	StartForwarder(ctx context.Context, onMsg func(env Envelope)) error
	Close() error
}

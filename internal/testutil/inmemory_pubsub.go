package testutil

import (
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/pubsub"
	"github.com/billforge/billforge/internal/pubsub/memory"
)

// NewInMemoryPubSub creates a gochannel-backed pubsub for tests
func NewInMemoryPubSub(logger *logger.Logger) pubsub.PubSub {
	return memory.NewPubSub(logger)
}

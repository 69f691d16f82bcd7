package cmd

import (
	"log/slog"

	"github.com/scoutvc/diligence/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. The
// in-process gochannel bus is the default; it keeps single-binary deployments
// free of external brokers.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "", "memory", "gochannel":
		return eventbus.NewGoChannelEventBus(logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}

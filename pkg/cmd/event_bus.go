package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rbarros/cascata/pkg/channels/gochannel"
	"github.com/rbarros/cascata/pkg/channels/kafka"
	"github.com/rbarros/cascata/pkg/eventbus"
)

// NewEventBus builds the lifecycle event bus. "kafka" publishes to the
// brokers named by KAFKA_BROKERS; anything else gets the in-process channel,
// which is enough for single-binary deployments.
func NewEventBus(provider string, logger *slog.Logger, serviceName string) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			return nil, fmt.Errorf("create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub), nil
	}
}

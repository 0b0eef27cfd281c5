package bus

import (
	"fmt"

	"github.com/fraudops/kestrel/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" returns an in-process bus; "nats" returns a NATS bus for
// multi-node deployments.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

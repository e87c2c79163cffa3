// Package eventstreamutils selects an eventstream.Publisher from configuration.
package eventstreamutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/notevec/pkg/eventstream"
	"github.com/papercomputeco/notevec/pkg/eventstream/kafka"
	"github.com/papercomputeco/notevec/pkg/eventstream/nop"
	"github.com/papercomputeco/notevec/pkg/vector"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *slog.Logger
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "nop", "":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("%w: unsupported eventstream provider: %s", vector.ErrConfiguration, o.ProviderType)
	}
}

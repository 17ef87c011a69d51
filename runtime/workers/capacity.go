package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"chat-direct/contract"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// CapacityWorker periodically samples the watched channels and the number
// of connected users. len and cap on a channel are non-blocking, so the
// sampling never interferes with the routing path. A saturated channel
// crossing the threshold is promoted to a warning.
type CapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	registry       contract.IRegistry
	metricInterval time.Duration
	lowThreshold   float64
}

func NewCapacityWorker(log *slog.Logger, channels []NamedChannel,
	registry contract.IRegistry, metricInterval time.Duration, lowThreshold float64) *CapacityWorker {
	return &CapacityWorker{
		log:            log,
		channels:       channels,
		registry:       registry,
		metricInterval: metricInterval,
		lowThreshold:   lowThreshold,
	}
}

func (w *CapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.log.Info("Connected users", "count", len(w.registry.Snapshot()))
			for _, nc := range w.channels {
				v := reflect.ValueOf(nc.Channel)
				if v.Kind() != reflect.Chan {
					w.log.Error("Provided object is not a channel", "name", nc.Name)
					continue
				}
				capacity := v.Cap()
				length := v.Len()
				if capacity > 0 && float64(capacity-length)/float64(capacity) < w.lowThreshold {
					w.log.Warn("Channel close to saturation", "name", nc.Name, "length", length, "capacity", capacity)
					continue
				}
				w.log.Debug("Channel capacity", "name", nc.Name, "length", length, "capacity", capacity)
			}
		}
	}
}

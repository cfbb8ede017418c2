package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// LogNotifier writes alert groups to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs one warning per alert.
func (n *LogNotifier) Notify(_ context.Context, providerType weather.ProviderType, alerts []weather.Alert) error {
	for _, a := range alerts {
		n.logger.Warn("station offline alert",
			zap.String("type", string(providerType)),
			zap.String("message", a.Message),
		)
	}
	return nil
}

// Multi fans an alert group out to several notifiers, continuing past failures.
type Multi []weather.Notifier

// Notify calls every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, providerType weather.ProviderType, alerts []weather.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, providerType, alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

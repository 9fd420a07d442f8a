// Package notify delivers drift alerts.
package notify

import (
	"context"
	"errors"
	"fmt"

	"fimwatch/internal/drift"
)

// Notifier delivers an alert for a scan result carrying drift.
type Notifier interface {
	Notify(ctx context.Context, res *drift.ScanResult) error
}

// Func adapts a function to a Notifier.
type Func func(ctx context.Context, res *drift.ScanResult) error

func (f Func) Notify(ctx context.Context, res *drift.ScanResult) error { return f(ctx, res) }

// DeliveryError reports an alert which did not reach its transport.
type DeliveryError struct {
	Notifier string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Notifier, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Multi fans an alert out to every notifier. All notifiers are attempted;
// failures are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, res *drift.ScanResult) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

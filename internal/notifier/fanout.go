package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
)

// ErrNoNotifiers is returned by an empty Fanout.
var ErrNoNotifiers = errors.New("no notifiers configured")

// Named pairs a notifier with the name used in logs and receipts.
type Named struct {
	Name     string
	Notifier Notifier
	// BestEffort marks a notifier that cannot reach a recipient on its own,
	// such as the log or a live feed with no listeners. Its acceptance does
	// not make a delivery successful while other notifiers are configured.
	BestEffort bool
}

// Fanout sends every event to all notifiers in parallel.
// It succeeds when a delivering notifier accepted the event; partial failures are logged.
// With only best-effort notifiers configured any of them is enough.
type Fanout struct {
	notifiers []Named
	// required reports whether some notifier is not best-effort.
	required bool
}

// NewFanout combines the provided notifiers.
func NewFanout(notifiers ...Named) *Fanout {
	f := &Fanout{notifiers: notifiers}

	for _, n := range notifiers {
		if !n.BestEffort {
			f.required = true
		}
	}

	return f
}

// Len returns the number of notifiers.
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// Notify delivers the event through every notifier.
func (f *Fanout) Notify(ctx context.Context, to Recipients, event *tracking.AlertEvent) (*Receipt, error) {
	if event == nil {
		return nil, ErrNoEvent
	}

	if len(f.notifiers) == 0 {
		return nil, ErrNoNotifiers
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		accepted []string
		failures []error
		// delivered counts acceptances that make the call successful.
		delivered int
		// missed is set when a delivering notifier failed.
		missed bool
	)

	for _, n := range f.notifiers {
		g.Go(func() error {
			_, err := n.Notifier.Notify(ctx, to, event)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", n.Name, err))
				missed = missed || !n.BestEffort

				return nil
			}

			accepted = append(accepted, n.Name)

			if !n.BestEffort || !f.required {
				delivered++
			}

			return nil
		})
	}

	_ = g.Wait()

	if delivered == 0 {
		if len(accepted) > 0 {
			logger.WarnKV(ctx, "Alert reached only best-effort notifiers",
				"event_id", event.ID,
				"accepted", accepted,
			)
		}

		return nil, errors.Join(failures...)
	}

	if len(failures) > 0 {
		log := logger.DebugKV
		if missed {
			log = logger.WarnKV
		}

		log(ctx, "Alert partially delivered",
			"event_id", event.ID,
			"accepted", accepted,
			"error", errors.Join(failures...),
		)
	}

	receipt := NewReceipt("fanout")
	receipt.Accepted = accepted

	return receipt, nil
}

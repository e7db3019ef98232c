// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Events can be filtered so operators only
// receive the alert types they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// Event types understood by the notifier filter.
const (
	EventHighOpportunity = "high_opportunity"
	EventError           = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It keeps a
// set of allowed event types; Notify only forwards messages whose
// event type is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events whose type appears in events are forwarded by Notify; an
// empty events slice allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// HighOpportunity delivers a wide-spread alert to all channels,
// subject to the event filter.
func (n *Notifier) HighOpportunity(ctx context.Context, alert domain.Alert) error {
	title := fmt.Sprintf("Arbitrage: %.2f%% spread", alert.SpreadPct)
	return n.Notify(ctx, EventHighOpportunity, title, alert.Message)
}

// Notify sends a notification to all senders if the event type is
// allowed by the configured filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch fans out to every sender. A single sender failure does not
// prevent delivery to the remaining senders; failures are combined
// into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Package notifier delivers alert events to the outside world.
//
// The tracker only knows the Notifier interface. Concrete transports live in
// sub-packages (rabbitmq, nats, livefeed); Fanout combines them and Log is a
// delivery-free fallback for development.
package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// Audience selects who should receive an alert.
type Audience string

const (
	// AudienceTargetGuardians addresses the guardians of the approached target.
	AudienceTargetGuardians Audience = "target_guardians"
	// AudienceAllAdmins addresses every administrator.
	AudienceAllAdmins Audience = "all_admins"
)

// Channel is a delivery medium resolved by downstream consumers.
type Channel string

const (
	// ChannelPush is a mobile push notification.
	ChannelPush Channel = "push"
	// ChannelSMS is a text message.
	ChannelSMS Channel = "sms"
	// ChannelEmail is an e-mail.
	ChannelEmail Channel = "email"
)

// Recipients is the recipient selector attached to every notification.
type Recipients struct {
	// Audience is the group to notify.
	Audience Audience `json:"audience"`
	// TargetID narrows guardian audiences to one target.
	TargetID string `json:"target_id,omitempty"`
	// Channels lists the preferred media. Empty means the consumer's default.
	Channels []Channel `json:"channels,omitempty"`
	// AllChannels asks consumers to use every medium they have.
	AllChannels bool `json:"all_channels,omitempty"`
	// Escalate marks the notification as urgent.
	Escalate bool `json:"escalate,omitempty"`
}

// Receipt confirms that a notifier accepted an event.
type Receipt struct {
	// ID identifies the delivery attempt.
	ID string `json:"id"`
	// Notifier names the transport that accepted the event.
	Notifier string `json:"notifier"`
	// AcceptedAt is when the transport accepted the event.
	AcceptedAt time.Time `json:"accepted_at"`
	// Accepted lists the transports that accepted the event when several were used.
	Accepted []string `json:"accepted,omitempty"`
}

// NewReceipt creates a receipt for the named notifier.
func NewReceipt(name string) *Receipt {
	return &Receipt{
		ID:         uuid.NewString(),
		Notifier:   name,
		AcceptedAt: time.Now().UTC(),
	}
}

// Notifier sends an alert event to the selected recipients.
type Notifier interface {
	Notify(ctx context.Context, to Recipients, event *tracking.AlertEvent) (*Receipt, error)
}

// ErrNoEvent is returned when Notify is called without an event.
var ErrNoEvent = errors.New("alert event is required")

// ForApproaching selects the guardians of the approached target on default channels.
func ForApproaching(event *tracking.AlertEvent) Recipients {
	return Recipients{
		Audience: AudienceTargetGuardians,
		TargetID: event.TargetID,
	}
}

// ForEmergency selects every administrator on every channel with escalation.
func ForEmergency() Recipients {
	return Recipients{
		Audience:    AudienceAllAdmins,
		AllChannels: true,
		Escalate:    true,
	}
}

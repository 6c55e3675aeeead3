// Package notification hands issued invitations to the external delivery
// service. Delivery itself (email, SMS) happens outside this process.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// InvitationMessage is everything the delivery side needs to reach the invitee.
type InvitationMessage struct {
	InvitationID string    `json:"invitation_id"`
	Kind         string    `json:"kind"`
	Email        string    `json:"email"`
	CompanyID    string    `json:"company_id"`
	CompanySlug  string    `json:"company_slug"`
	CompanyName  string    `json:"company_name"`
	Role         string    `json:"role"`
	Token        string    `json:"token"`
	Link         string    `json:"link"`
	Template     string    `json:"template,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type InvitationPublisher interface {
	PublishInvitation(ctx context.Context, msg InvitationMessage) error
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) PublishInvitation(context.Context, InvitationMessage) error { return nil }

// Fanout publishes to every non-nil publisher and joins their errors.
type Fanout struct {
	publishers []InvitationPublisher
	logger     zerolog.Logger
}

func NewFanout(logger zerolog.Logger, publishers ...InvitationPublisher) *Fanout {
	active := make([]InvitationPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			active = append(active, p)
		}
	}
	return &Fanout{
		publishers: active,
		logger:     logger.With().Str("component", "invitation_fanout").Logger(),
	}
}

func (f *Fanout) PublishInvitation(ctx context.Context, msg InvitationMessage) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishInvitation(ctx, msg); err != nil {
			f.logger.Warn().
				Err(err).
				Str("invitation_id", msg.InvitationID).
				Str("kind", msg.Kind).
				Msg("failed to publish invitation")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

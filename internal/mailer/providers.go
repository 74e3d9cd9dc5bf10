package mailer

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

// ErrProviderNotImplemented is returned by production provider stubs.
var ErrProviderNotImplemented = errors.New("email provider not implemented")

// OutboundEmail is the rendered payload handed to a provider.
type OutboundEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Provider dispatches a rendered email and returns a provider message id.
type Provider interface {
	Name() string
	Send(ctx context.Context, email OutboundEmail) (string, error)
}

// NewProvider selects a provider by configured name. Unknown names fall back
// to the development provider, which only logs.
func NewProvider(name string) Provider {
	switch name {
	case "smtp":
		return smtpProvider{}
	case "sendgrid":
		return sendgridProvider{}
	default:
		return devProvider{}
	}
}

type devProvider struct{}

func (devProvider) Name() string { return "development" }

func (devProvider) Send(ctx context.Context, email OutboundEmail) (string, error) {
	id := "dev-" + uuid.NewString()
	log.Printf("email (dev) to=%s subject=%q message_id=%s", email.To, email.Subject, id)
	return id, nil
}

type smtpProvider struct{}

func (smtpProvider) Name() string { return "smtp" }

func (smtpProvider) Send(ctx context.Context, email OutboundEmail) (string, error) {
	return "", ErrProviderNotImplemented
}

type sendgridProvider struct{}

func (sendgridProvider) Name() string { return "sendgrid" }

func (sendgridProvider) Send(ctx context.Context, email OutboundEmail) (string, error) {
	return "", ErrProviderNotImplemented
}

package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/oshokin/presence-alarm/internal/config"
	"github.com/oshokin/presence-alarm/internal/logger"
)

// ErrSMTPNotConfigured is returned when building an SMTP notifier without a host.
var ErrSMTPNotConfigured = errors.New("smtp host is not configured")

// SMTPNotifier sends plain-text e-mails and logs every message as well.
type SMTPNotifier struct {
	settings config.SMTP
	timeout  time.Duration
	log      *LogNotifier
}

// NewSMTPNotifier validates settings and returns the e-mail notifier.
func NewSMTPNotifier(settings config.SMTP, timeout time.Duration) (*SMTPNotifier, error) {
	if !settings.Enabled() {
		return nil, ErrSMTPNotConfigured
	}

	if _, err := tlsPolicy(settings.TLSPolicy); err != nil {
		return nil, err
	}

	return &SMTPNotifier{
		settings: settings,
		timeout:  timeout,
		log:      NewLogNotifier(),
	}, nil
}

// Notify implements Notifier. Messages without a destination are only logged.
func (n *SMTPNotifier) Notify(ctx context.Context, destination, subject, body string) error {
	_ = n.log.Notify(ctx, destination, subject, body)

	if destination == "" {
		return nil
	}

	msg, err := n.message(destination, subject, body)
	if err != nil {
		return err
	}

	client, err := n.client()
	if err != nil {
		return err
	}

	if err = client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send e-mail to %s: %w", destination, err)
	}

	logger.DebugKV(ctx, "E-mail sent", "destination", destination, "subject", subject)

	return nil
}

func (n *SMTPNotifier) message(destination, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	var err error
	if n.settings.FromName != "" {
		err = msg.FromFormat(n.settings.FromName, n.settings.FromAddress)
	} else {
		err = msg.From(n.settings.FromAddress)
	}

	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}

	if err = msg.To(destination); err != nil {
		return nil, fmt.Errorf("invalid destination address %q: %w", destination, err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return msg, nil
}

func (n *SMTPNotifier) client() (*mail.Client, error) {
	policy, err := tlsPolicy(n.settings.TLSPolicy)
	if err != nil {
		return nil, err
	}

	options := []mail.Option{
		mail.WithPort(n.settings.Port),
		mail.WithTLSPolicy(policy),
	}

	if n.timeout > 0 {
		options = append(options, mail.WithTimeout(n.timeout))
	}

	if n.settings.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.settings.Username),
			mail.WithPassword(n.settings.Password),
		)
	}

	client, err := mail.NewClient(n.settings.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return client, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory":
		return mail.TLSMandatory, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

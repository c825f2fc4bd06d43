package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const emailSubject = "🚨 IP Address Changed!"

// EmailOptions configures the SMTP notifier.
type EmailOptions struct {
	Host     string
	Port     int
	Username string // empty disables SMTP auth
	Password string
	From     string
	To       []string
	TLS      string // "opportunistic" (default) | "mandatory" | "none"
	Timeout  time.Duration
}

// Email sends events as plain-text mail through an SMTP relay.
type Email struct {
	client *mail.Client
	from   string
	to     []string
}

// TLSPolicy maps a config value onto a go-mail policy.
func TLSPolicy(s string) (mail.TLSPolicy, error) {
	switch strings.ToLower(s) {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory":
		return mail.TLSMandatory, nil
	case "none":
		return mail.NoTLS, nil
	}
	return mail.TLSOpportunistic, fmt.Errorf("unknown smtp tls policy %q", s)
}

// NewEmail returns an Email notifier. Addresses are checked up front so a typo
// fails at startup instead of on the first change.
func NewEmail(opts EmailOptions) (*Email, error) {
	if opts.Host == "" {
		return nil, errors.New("email: smtp host is required")
	}
	if opts.From == "" || len(opts.To) == 0 {
		return nil, errors.New("email: sender and at least one recipient are required")
	}
	if opts.Port <= 0 {
		opts.Port = mail.DefaultPortTLS
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	policy, err := TLSPolicy(opts.TLS)
	if err != nil {
		return nil, err
	}

	check := mail.NewMsg()
	if err := check.From(opts.From); err != nil {
		return nil, fmt.Errorf("email: invalid sender: %w", err)
	}
	if err := check.To(opts.To...); err != nil {
		return nil, fmt.Errorf("email: invalid recipient: %w", err)
	}

	clientOpts := []mail.Option{
		mail.WithPort(opts.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(opts.Timeout),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}

	client, err := mail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("email: failed to create smtp client: %w", err)
	}

	return &Email{client: client, from: opts.From, to: opts.To}, nil
}

func (m *Email) Name() string { return "email" }

func (m *Email) Notify(ctx context.Context, e Event) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := msg.To(m.to...); err != nil {
		return fmt.Errorf("failed to set recipients: %w", err)
	}
	msg.Subject(emailSubject)
	msg.SetBodyString(mail.TypeTextPlain, emailBody(e))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func emailBody(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your new public IP is: %s\r\n", e.NewValue)
	if !e.Initial() {
		fmt.Fprintf(&b, "Previous IP: %s\r\n", e.OldValue)
	}
	fmt.Fprintf(&b, "Observed at: %s\r\n", e.ObservedAt.UTC().Format(time.RFC3339))
	if e.ID != "" {
		fmt.Fprintf(&b, "Event: %s\r\n", e.ID)
	}
	return b.String()
}

package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPNotifier delivers email messages through an SMTP relay.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPNotifier builds an email notifier for the given relay.
func NewSMTPNotifier(host string, port int, username, password, from string) *SMTPNotifier {
	return &SMTPNotifier{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

// Send renders and delivers message. When ctx ends before the relay accepts
// the envelope, Send returns ctx.Err() and the connection is closed without
// sending. A message the relay has already started to accept is not recalled.
func (n *SMTPNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := Render(message)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", message.Destination)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() {
		done <- n.deliver(ctx, m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *SMTPNotifier) deliver(ctx context.Context, m *gomail.Message) error {
	sender, err := n.dialer.Dial()
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer sender.Close()

	// The caller gave up while the session was being set up.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := gomail.Send(sender, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

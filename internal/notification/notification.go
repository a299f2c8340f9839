package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"
)

const (
	// KindVerificationCode carries a one-time code proving contact ownership.
	KindVerificationCode = "verification_code"

	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Channel     string
	Destination string
	Recipient   string
	Code        string
	ExpiresIn   time.Duration
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger. The code itself is only
// emitted at debug level.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification", "kind", message.Kind, "channel", message.Channel, "destination", message.Destination)
	n.logger.DebugContext(ctx, "notification code", "destination", message.Destination, "code", message.Code)
	return nil
}

// Router dispatches messages to the notifier registered for their channel.
type Router struct {
	routes map[string]Notifier
}

// NewRouter builds a Router from a channel to notifier map.
func NewRouter(routes map[string]Notifier) *Router {
	copied := make(map[string]Notifier, len(routes))
	for ch, n := range routes {
		copied[ch] = n
	}
	return &Router{routes: copied}
}

// Send forwards message to the notifier for message.Channel.
func (r *Router) Send(ctx context.Context, message Message) error {
	n, ok := r.routes[message.Channel]
	if !ok || n == nil {
		return fmt.Errorf("no notifier for channel %q", message.Channel)
	}
	return n.Send(ctx, message)
}

// Render produces the subject and HTML body for an email message.
func Render(message Message) (subject, body string) {
	switch message.Kind {
	case KindVerificationCode:
		subject = "RideSync - Verification Code"
		body = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #3B82F6;">RideSync</h2>
  <p>Hello %s,</p>
  <p>Your verification code is:</p>
  <div style="background: #f8fafc; padding: 20px; text-align: center; margin: 20px 0;">
    <h1 style="color: #3B82F6; font-size: 32px; letter-spacing: 5px; margin: 0;">%s</h1>
  </div>
  <p>This code will expire in %d minutes.</p>
  <p>If you didn't request this code, please ignore this email.</p>
</div>`, html.EscapeString(message.Recipient), html.EscapeString(message.Code), int(message.ExpiresIn.Minutes()))
	default:
		subject = "RideSync"
		body = html.EscapeString(message.Code)
	}
	return subject, body
}

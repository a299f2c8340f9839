package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync/ridesync/internal/logging"
)

type recordingNotifier struct {
	sent []Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.sent = append(n.sent, msg)
	return n.err
}

func TestRouterDispatchesByChannel(t *testing.T) {
	email := &recordingNotifier{}
	sms := &recordingNotifier{}
	router := NewRouter(map[string]Notifier{ChannelEmail: email, ChannelSMS: sms})

	require.NoError(t, router.Send(context.Background(), Message{Channel: ChannelSMS, Destination: "+15550001"}))
	require.NoError(t, router.Send(context.Background(), Message{Channel: ChannelEmail, Destination: "a@x.com"}))

	require.Len(t, sms.sent, 1)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "+15550001", sms.sent[0].Destination)
	assert.Equal(t, "a@x.com", email.sent[0].Destination)
}

func TestRouterPropagatesFailure(t *testing.T) {
	boom := errors.New("relay down")
	router := NewRouter(map[string]Notifier{ChannelEmail: &recordingNotifier{err: boom}})

	err := router.Send(context.Background(), Message{Channel: ChannelEmail})
	assert.ErrorIs(t, err, boom)

	err = router.Send(context.Background(), Message{Channel: "pigeon"})
	assert.Error(t, err)
}

func TestRenderVerificationCode(t *testing.T) {
	subject, body := Render(Message{
		Kind:      KindVerificationCode,
		Recipient: "<Ann>",
		Code:      "123456",
		ExpiresIn: 10 * time.Minute,
	})

	assert.Contains(t, subject, "Verification Code")
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "10 minutes")
	assert.Contains(t, body, "&lt;Ann&gt;")
	assert.False(t, strings.Contains(body, "<Ann>"))
}

func TestLoggerNotifierNeverFails(t *testing.T) {
	var nilNotifier *LoggerNotifier
	assert.NoError(t, nilNotifier.Send(context.Background(), Message{}))
	assert.NoError(t, NewLoggerNotifier(logging.Discard()).Send(context.Background(), Message{Channel: ChannelSMS}))
}

func TestSMTPNotifierHonoursCancelledContext(t *testing.T) {
	n := NewSMTPNotifier("127.0.0.1", 1, "", "", "noreply@ridesync.test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Send(ctx, Message{Kind: KindVerificationCode, Destination: "a@x.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

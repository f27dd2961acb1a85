package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func newTestNotifier(client sesSender) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		client:      client,
		fromAddress: "security@example.com",
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSESLockoutNotifier_NotifyLocked(t *testing.T) {
	client := &fakeSES{}
	notifier := newTestNotifier(client)

	err := notifier.NotifyLocked(context.Background(), "alice@example.com", 15*time.Minute)
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "security@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"alice@example.com"}, client.input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "for 15 minutes")
	assert.Contains(t, aws.ToString(client.input.Message.Body.Html.Data), "for 15 minutes")
}

func TestSESLockoutNotifier_RoundsMinutesUp(t *testing.T) {
	client := &fakeSES{}
	notifier := newTestNotifier(client)

	require.NoError(t, notifier.NotifyLocked(context.Background(), "a@x.com", 90*time.Second))
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "for 2 minutes")
}

func TestSESLockoutNotifier_SendError(t *testing.T) {
	sendErr := errors.New("MessageRejected")
	notifier := newTestNotifier(&fakeSES{err: sendErr})

	err := notifier.NotifyLocked(context.Background(), "a@x.com", time.Minute)
	assert.ErrorIs(t, err, sendErr)
}

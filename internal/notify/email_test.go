package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderBuildsInput(t *testing.T) {
	client := &fakeSES{}
	s := NewSESSender(client, SESConfig{FromEmail: "noreply@clinic.test"}, zerolog.Nop())

	err := s.Send(context.Background(), EmailMessage{To: "a@example.com", Subject: "Appointment Approved", Body: "hello"})
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "Doctor Booking <noreply@clinic.test>", aws.ToString(client.input.FromEmailAddress))
	assert.Equal(t, []string{"a@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Appointment Approved", aws.ToString(client.input.Content.Simple.Subject.Data))
	assert.Equal(t, "hello", aws.ToString(client.input.Content.Simple.Body.Text.Data))
	assert.Nil(t, client.input.Content.Simple.Body.Html)
}

func TestSESSenderError(t *testing.T) {
	throttled := errors.New("throttled")
	s := NewSESSender(&fakeSES{err: throttled}, SESConfig{FromEmail: "noreply@clinic.test"}, zerolog.Nop())
	assert.ErrorIs(t, s.Send(context.Background(), EmailMessage{To: "a@example.com"}), throttled)
}

func TestSendersWithoutClient(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{}, zerolog.Nop()))
	assert.Nil(t, NewSESSender(nil, SESConfig{}, zerolog.Nop()))

	var sg *SendGridSender
	assert.Error(t, sg.Send(context.Background(), EmailMessage{}))
}

func TestNewEmailSender(t *testing.T) {
	ctx := context.Background()

	s, err := NewEmailSender(ctx, ProviderConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &StubEmailSender{}, s)

	s, err = NewEmailSender(ctx, ProviderConfig{Provider: "sendgrid"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &StubEmailSender{}, s, "missing key falls back to stub")

	s, err = NewEmailSender(ctx, ProviderConfig{Provider: "sendgrid", SendGridAPIKey: "SG.x", FromEmail: "noreply@clinic.test"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SendGridSender{}, s)

	s, err = NewEmailSender(ctx, ProviderConfig{
		Provider:           "ses",
		FromEmail:          "noreply@clinic.test",
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "AKIDEXAMPLE",
		AWSSecretAccessKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SESSender{}, s)

	_, err = NewEmailSender(ctx, ProviderConfig{Provider: "pigeon"}, zerolog.Nop())
	assert.Error(t, err)
}

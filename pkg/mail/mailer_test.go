package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Body:    "Hello",
	})
	require.ErrorIs(t, err, ErrDeliveryDisabled)
}

func TestFormatMessagePlain(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{
		Subject: "OTP for email verification - 123456\r\nBcc: x",
		Body:    "Body",
	})
	require.Contains(t, content, "From: from@example.com")
	require.Contains(t, content, "Subject: OTP for email verification - 123456  Bcc: x")
	require.Contains(t, content, "Content-Type: text/plain")
	require.True(t, strings.HasSuffix(content, "Body"))
}

func TestFormatMessageAlternative(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{
		Subject:  "Reset",
		Body:     "plain",
		HTMLBody: "<p>html</p>",
	})
	require.Contains(t, content, "multipart/alternative")
	require.Contains(t, content, "text/html")
	require.Contains(t, content, "<p>html</p>")
	require.True(t, strings.HasSuffix(content, "--"+mimeBoundary+"--"))
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	require.NoError(t, err)

	sm, ok := mailer.(*smtpMailer)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, sm.cfg.Timeout)
}

func TestSMTPMailerSendValidation(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"   ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")

	err = mailer.Send(context.Background(), Message{From: "invalid-from", To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = mailer.Send(context.Background(), Message{To: []string{"user@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")
}

func TestUniqueAddresses(t *testing.T) {
	result := uniqueAddresses([]string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com"})
	require.Equal(t, []string{"alice@example.com", "bob@example.com"}, result)
}

type stubSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (s *stubSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.inputs = append(s.inputs, params)
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func stubSESConstructors(t *testing.T, client *stubSES, loadErr error) *int {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newSESClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newSESClientFromConfig = origNew
	})

	calls := 0
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		calls++
		if loadErr != nil {
			return aws.Config{}, loadErr
		}
		var opts awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&opts); err != nil {
				return aws.Config{}, err
			}
		}
		return aws.Config{Region: opts.Region}, nil
	}
	newSESClientFromConfig = func(cfg aws.Config, optFns ...func(*sesv2.Options)) sesAPI {
		return client
	}
	return &calls
}

func TestNewSESMailerRequiresRegion(t *testing.T) {
	_, err := NewSESMailer(context.Background(), SESSettings{Enabled: true})
	require.ErrorContains(t, err, "region is required")
}

func TestNewSESMailerLoadError(t *testing.T) {
	stubSESConstructors(t, &stubSES{}, errors.New("no creds"))

	_, err := NewSESMailer(context.Background(), SESSettings{Enabled: true, Region: "eu-west-1"})
	require.ErrorContains(t, err, "load aws config")
}

func TestSESMailerDisabled(t *testing.T) {
	calls := stubSESConstructors(t, &stubSES{}, nil)

	mailer, err := NewSESMailer(context.Background(), SESSettings{})
	require.NoError(t, err)
	require.Zero(t, *calls)

	err = mailer.Send(context.Background(), Message{To: []string{"user@example.com"}})
	require.ErrorIs(t, err, ErrDeliveryDisabled)
}

func TestSESMailerSend(t *testing.T) {
	client := &stubSES{}
	stubSESConstructors(t, client, nil)

	mailer, err := NewSESMailer(context.Background(), SESSettings{
		Enabled:         true,
		Region:          "eu-west-1",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		From:            "no-reply@example.com",
	})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{
		To:       []string{"user@example.com", "user@example.com"},
		Subject:  "OTP for password reset - 654321",
		Body:     "plain",
		HTMLBody: "<b>654321</b>",
	})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	require.Equal(t, "no-reply@example.com", aws.ToString(input.FromEmailAddress))
	require.Equal(t, []string{"user@example.com"}, input.Destination.ToAddresses)
	require.Equal(t, "OTP for password reset - 654321", aws.ToString(input.Content.Simple.Subject.Data))
	require.Equal(t, "plain", aws.ToString(input.Content.Simple.Body.Text.Data))
	require.Equal(t, "<b>654321</b>", aws.ToString(input.Content.Simple.Body.Html.Data))
}

func TestSESMailerSendWrapsError(t *testing.T) {
	client := &stubSES{err: errors.New("throttled")}
	stubSESConstructors(t, client, nil)

	mailer, err := NewSESMailer(context.Background(), SESSettings{Enabled: true, Region: "us-east-1", From: "a@example.com"})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "ses: send email")
}

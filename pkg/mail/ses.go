package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESSettings configure delivery through Amazon SES.
type SESSettings struct {
	Enabled         bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
	// Endpoint overrides the service URL, e.g. for a local SES emulator.
	Endpoint string
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var (
	loadDefaultAWSConfig   = awsconfig.LoadDefaultConfig
	newSESClientFromConfig = func(cfg aws.Config, optFns ...func(*sesv2.Options)) sesAPI {
		return sesv2.NewFromConfig(cfg, optFns...)
	}
)

type sesMailer struct {
	cfg    SESSettings
	client sesAPI
}

// NewSESMailer builds a Mailer backed by the SES v2 SendEmail API. Static
// credentials are used when both key fields are set; otherwise the default
// AWS credential chain applies.
func NewSESMailer(ctx context.Context, cfg SESSettings) (Mailer, error) {
	if !cfg.Enabled {
		return &sesMailer{cfg: cfg}, nil
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("ses: region is required when enabled")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	client := newSESClientFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &sesMailer{cfg: cfg, client: client}, nil
}

func (m *sesMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled || m.client == nil {
		return ErrDeliveryDisabled
	}

	from, recipients, err := prepare(msg, m.cfg.From)
	if err != nil {
		return err
	}

	body := &types.Body{Text: utf8Content(msg.Body)}
	if msg.HTMLBody != "" {
		body.Html = utf8Content(msg.HTMLBody)
	}

	_, err = m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: recipients},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(escapeHeader(msg.Subject)),
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses: send email: %w", err)
	}
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

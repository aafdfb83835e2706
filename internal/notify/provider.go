package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/rs/zerolog"
)

const (
	ProviderStub     = "stub"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
)

type ProviderConfig struct {
	Provider           string
	SendGridAPIKey     string
	FromEmail          string
	FromName           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// NewEmailSender picks the delivery provider. An unconfigured provider falls back
// to the stub so the worker keeps draining in dev.
func NewEmailSender(ctx context.Context, cfg ProviderConfig, logger zerolog.Logger) (EmailSender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderSendGrid:
		if cfg.SendGridAPIKey == "" || cfg.FromEmail == "" {
			logger.Warn().Msg("sendgrid selected but SENDGRID_API_KEY or NOTIFY_FROM_EMAIL not set, using stub sender")
			return NewStubEmailSender(logger), nil
		}
		logger.Info().Msg("sendgrid email sender initialized")
		return NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger), nil

	case ProviderSES:
		if cfg.FromEmail == "" {
			logger.Warn().Msg("ses selected but NOTIFY_FROM_EMAIL not set, using stub sender")
			return NewStubEmailSender(logger), nil
		}
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("notify: load aws config: %w", err)
		}
		logger.Info().Str("region", awsCfg.Region).Msg("ses email sender initialized")
		return NewSESSender(sesv2.NewFromConfig(awsCfg), SESConfig{
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger), nil

	case "", ProviderStub:
		return NewStubEmailSender(logger), nil

	default:
		return nil, fmt.Errorf("notify: unknown provider %q", cfg.Provider)
	}
}

func loadAWSConfig(ctx context.Context, cfg ProviderConfig) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

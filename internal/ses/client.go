// Package ses is the fallback mail transport over AWS SES v2. It is used
// when no Microsoft Graph tenant is configured for the sending mailbox.
package ses

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/pkg/logger"
)

// Config holds static SES credentials.
type Config struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	DryRun    bool   `yaml:"dry_run"`
}

// Configured reports whether credentials are present.
func (c Config) Configured() bool { return c.AccessKey != "" && c.SecretKey != "" }

// sendAPI is the slice of the SES client the sender uses.
type sendAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender implements the scheduler's Transport contract over SES.
// SES has no conversation threading; replies rely on the Re: subject alone.
type Sender struct {
	client sendAPI
	dryRun bool
}

// New creates an SES sender. Returns an error when the SDK config cannot
// be assembled from the given credentials.
func New(cfg Config) (*Sender, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	s := &Sender{dryRun: cfg.DryRun}
	if cfg.Configured() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		)
		if err != nil {
			return nil, fmt.Errorf("ses config: %w", err)
		}
		s.client = sesv2.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Send delivers one rendered message through SES.
func (s *Sender) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("ses send: no recipients")
	}

	if s.dryRun {
		logger.Info("dry-run send",
			"from", logger.RedactAddress(msg.From),
			"recipients", fmt.Sprint(len(msg.To)),
			"subject", msg.Subject)
		return nil
	}
	if s.client == nil {
		return fmt.Errorf("ses send: client not initialized, check credentials")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

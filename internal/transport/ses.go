package transport

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends through AWS SES v2 as raw MIME, so custom headers such as
// List-Unsubscribe survive.
type SESSender struct {
	client sesAPI
}

// NewSESSender uses static credentials when both keys are set and the
// default credential chain otherwise.
func NewSESSender(ctx context.Context, region, accessKey, secretKey string) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: loading AWS config: %w", err)
	}
	logger.Info("transport: ses sender initialized", "region", region)
	return &SESSender{client: sesv2.NewFromConfig(cfg)}, nil
}

func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) error {
	if err := validate(msg); err != nil {
		return err
	}
	var raw bytes.Buffer
	if _, err := buildMessage(msg).WriteTo(&raw); err != nil {
		return fmt.Errorf("transport: render message: %w", err)
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw.Bytes()}},
	})
	if err != nil {
		return err
	}
	logger.Debug("transport: ses accepted", "to", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

package notify

import (
	"context"
	"fmt"

	"foodtruck-preorder/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailAPI is the subset of the SES v2 client used here.
type EmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// CustomerDirectory resolves the recipient address.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, customerID string) (*models.Customer, error)
}

// SESSender emails customers through Amazon SES.
type SESSender struct {
	api       EmailAPI
	from      string
	customers CustomerDirectory
}

func NewSESSender(api EmailAPI, from string, customers CustomerDirectory) *SESSender {
	return &SESSender{api: api, from: from, customers: customers}
}

// NewSESClient loads AWS credentials from the default chain.
func NewSESClient(ctx context.Context, region string) (*sesv2.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify.NewSESClient: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

func (s *SESSender) Send(ctx context.Context, customerID string, kind Kind, payload Payload) error {
	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return fmt.Errorf("notify.SESSender: lookup customer %s: %w", customerID, err)
	}
	if customer.Email == "" {
		return fmt.Errorf("notify.SESSender: customer %s has no email address", customerID)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{customer.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(Subject(kind, payload)), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(Body(kind, payload)), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("kind"), Value: aws.String(string(kind))},
		},
	}
	if _, err := s.api.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("notify.SESSender: send to %s: %w", customerID, err)
	}
	return nil
}

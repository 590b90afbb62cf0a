package mail

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

const charset = "UTF-8"

// SES only accepts tag names and values made of these characters.
var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// SESAPI is the part of *sesv2.Client the mailer calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESMailer struct {
	Client           SESAPI
	From             string
	ConfigurationSet string
}

func NewSESMailer(client SESAPI, from, configurationSet string) *SESMailer {
	return &SESMailer{
		Client:           client,
		From:             from,
		ConfigurationSet: configurationSet,
	}
}

// NewSESClient builds a client from static keys when given, otherwise from
// the default AWS credential chain.
func NewSESClient(ctx context.Context, region, accessKeyID, secretAccessKey string) (*sesv2.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

func (m *SESMailer) Send(ctx context.Context, email usecase.OutboundEmail) (string, error) {
	if email.To == "" {
		return "", errors.New("recipient is required")
	}

	msg := &types.Message{
		Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String(charset)},
		Body: &types.Body{
			Html: &types.Content{Data: aws.String(email.HTML), Charset: aws.String(charset)},
		},
	}
	if email.Text != "" {
		msg.Body.Text = &types.Content{Data: aws.String(email.Text), Charset: aws.String(charset)}
	}
	if email.UnsubscribeURL != "" {
		msg.Headers = []types.MessageHeader{
			{Name: aws.String("List-Unsubscribe"), Value: aws.String("<" + email.UnsubscribeURL + ">")},
			{Name: aws.String("List-Unsubscribe-Post"), Value: aws.String("List-Unsubscribe=One-Click")},
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.From),
		Destination:      &types.Destination{ToAddresses: []string{email.To}},
		Content:          &types.EmailContent{Simple: msg},
		EmailTags:        messageTags(email.Tags),
	}
	if m.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(m.ConfigurationSet)
	}

	out, err := m.Client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	if out.MessageId == nil || *out.MessageId == "" {
		return "", errors.New("ses send: empty message id")
	}
	return *out.MessageId, nil
}

func messageTags(tags map[string]string) []types.MessageTag {
	var out []types.MessageTag
	for k, v := range tags {
		v = tagUnsafe.ReplaceAllString(v, "_")
		if v == "" {
			continue
		}
		out = append(out, types.MessageTag{
			Name:  aws.String(tagUnsafe.ReplaceAllString(k, "_")),
			Value: aws.String(v),
		})
	}
	return out
}

package sns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeNotification             = "Notification"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

var (
	ErrUntrustedURL    = errors.New("url is not an SNS endpoint")
	ErrTopicNotAllowed = errors.New("topic arn not allowed")
)

// SNS serves certificates and subscription links only from these hosts.
var snsHost = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// Message is the SNS HTTP(S) delivery envelope.
type Message struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	Token            string `json:"Token,omitempty"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

// CheckTopic accepts any topic when allowed is empty.
func (m *Message) CheckTopic(allowed string) error {
	if allowed != "" && m.TopicArn != allowed {
		return fmt.Errorf("%w: %s", ErrTopicNotAllowed, m.TopicArn)
	}
	return nil
}

// stringToSign builds the canonical form SNS signs. Field order is fixed.
func (m *Message) stringToSign() (string, error) {
	var fields [][2]string
	switch m.Type {
	case TypeNotification:
		fields = append(fields, [2]string{"Message", m.Message}, [2]string{"MessageId", m.MessageID})
		if m.Subject != "" {
			fields = append(fields, [2]string{"Subject", m.Subject})
		}
		fields = append(fields,
			[2]string{"Timestamp", m.Timestamp},
			[2]string{"TopicArn", m.TopicArn},
			[2]string{"Type", m.Type},
		)
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		fields = [][2]string{
			{"Message", m.Message},
			{"MessageId", m.MessageID},
			{"SubscribeURL", m.SubscribeURL},
			{"Timestamp", m.Timestamp},
			{"Token", m.Token},
			{"TopicArn", m.TopicArn},
			{"Type", m.Type},
		}
	default:
		return "", fmt.Errorf("unknown message type %q", m.Type)
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f[0])
		b.WriteByte('\n')
		b.WriteString(f[1])
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ConfirmSubscription completes the subscription handshake by visiting the
// SubscribeURL SNS sent.
func ConfirmSubscription(ctx context.Context, client *http.Client, m *Message) error {
	u, err := trustedURL(m.SubscribeURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	return nil
}

func trustedURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedURL, err)
	}
	if u.Scheme != "https" || !snsHost.MatchString(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedURL, u.Host)
	}
	return u, nil
}

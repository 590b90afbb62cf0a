package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"

	"github.com/xavierca1/leaddrip/internal/infra/queue"
	"gopkg.in/gomail.v2"
)

var operatorTemplate = htmltemplate.Must(htmltemplate.New("operator").Parse(`
<h2>New {{.Temperature}} lead: {{.Name}}</h2>
<p>Score <strong>{{.Score}}</strong> (priority {{.Priority}}), campaign {{.Campaign}}.</p>
<table cellpadding="4">
  <tr><td>Email</td><td>{{.Email}}</td></tr>
  {{with .Phone}}<tr><td>Phone</td><td>{{.}}</td></tr>{{end}}
  {{with .Address}}<tr><td>Address</td><td>{{.}}</td></tr>{{end}}
  {{with .Town}}<tr><td>Town</td><td>{{.}} {{$.Zipcode}}</td></tr>{{end}}
  {{with .Intent}}<tr><td>Intent</td><td>{{.}}</td></tr>{{end}}
  {{with .Timeline}}<tr><td>Timeline</td><td>{{.}}</td></tr>{{end}}
  {{with .PropertyType}}<tr><td>Property</td><td>{{.}}</td></tr>{{end}}
  {{with .ValueRange}}<tr><td>Value range</td><td>{{.}}</td></tr>{{end}}
  {{with .PreApproval}}<tr><td>Pre-approved</td><td>{{.}}</td></tr>{{end}}
  {{with .ContactPreference}}<tr><td>Prefers</td><td>{{.}}</td></tr>{{end}}
</table>
<p>Welcome report sent: {{if .WelcomeEmailSent}}yes{{else}}no{{end}}</p>
`))

// Dialer is the part of *gomail.Dialer the notifier uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// OperatorNotifier emails the operator about every captured lead.
type OperatorNotifier struct {
	Dialer Dialer
	From   string
	To     string
}

func NewOperatorNotifier(host string, port int, user, password, from, to string) *OperatorNotifier {
	return &OperatorNotifier{
		Dialer: gomail.NewDialer(host, port, user, password),
		From:   from,
		To:     to,
	}
}

func (n *OperatorNotifier) Name() string { return "operator_email" }

func (n *OperatorNotifier) NotifyLeadCaptured(_ context.Context, p queue.LeadCapturedPayload) error {
	var body bytes.Buffer
	if err := operatorTemplate.Execute(&body, p); err != nil {
		return fmt.Errorf("render operator email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.From)
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", fmt.Sprintf("[%s] New lead: %s (score %d)", strings.ToUpper(p.Temperature), p.Name, p.Score))
	m.SetHeader("Reply-To", p.Email)
	m.SetBody("text/html", body.String())

	if err := n.Dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

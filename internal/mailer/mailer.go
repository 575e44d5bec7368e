// Package mailer delivers templated account messages. Callers hand over
// the recipient, a template identifier, and template context; the raw
// verification/reset tokens travel only inside the rendered link.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

const (
	TemplateVerifyEmail   = "verify-email"
	TemplateResetPassword = "reset-password"
)

type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var bodyTemplates = template.Must(template.New("mail").Parse(`
{{define "verify-email"}}<p>Hi {{.Username}},</p>
<p>Welcome to ArtMarket. Confirm your email address by opening
<a href="{{.Link}}">this link</a>. It expires in 24 hours.</p>
<p>If you did not create this account, ignore this message.</p>{{end}}
{{define "reset-password"}}<p>Hi {{.Username}},</p>
<p>We received a request to reset your password. Open
<a href="{{.Link}}">this link</a> to choose a new one. It expires in 15 minutes.</p>
<p>If you did not request this, ignore this message.</p>{{end}}
`))

func renderBody(msg Message) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplates.ExecuteTemplate(&buf, msg.Template, msg.Data); err != nil {
		return "", fmt.Errorf("render template %s: %w", msg.Template, err)
	}
	return buf.String(), nil
}

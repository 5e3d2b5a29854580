package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/notify"
	"github.com/google/jsonschema-go/jsonschema"
)

const SendEmailHTMLName = "send_email_html"

// Recipients decodes either one address or a list of addresses.
type Recipients []string

func (r *Recipients) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*r = Recipients{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("to must be an email address or a list of addresses")
	}
	*r = many
	return nil
}

type sendEmailArgs struct {
	To      Recipients `json:"to"`
	Subject string     `json:"subject"`
	HTML    string     `json:"html"`
	CC      []string   `json:"cc,omitempty"`
	BCC     []string   `json:"bcc,omitempty"`
	ReplyTo string     `json:"replyTo,omitempty"`
}

func (a sendEmailArgs) validate() []string {
	var problems []string
	check := func(field, addr string) {
		if _, err := mail.ParseAddress(addr); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %q is not a valid email address", field, addr))
		}
	}
	if len(a.To) == 0 {
		problems = append(problems, "to: at least one recipient is required")
	}
	for _, addr := range a.To {
		check("to", addr)
	}
	for _, addr := range a.CC {
		check("cc", addr)
	}
	for _, addr := range a.BCC {
		check("bcc", addr)
	}
	if a.ReplyTo != "" {
		check("replyTo", a.ReplyTo)
	}
	return problems
}

// SendEmailHTML lets the voice agent send an HTML email.
type SendEmailHTML struct {
	sender notify.Sender
}

func NewSendEmailHTML(sender notify.Sender) *SendEmailHTML {
	return &SendEmailHTML{sender: sender}
}

func (t *SendEmailHTML) Name() string { return SendEmailHTMLName }

func (t *SendEmailHTML) Description() string {
	return "Send an HTML email to one or more recipients."
}

func (t *SendEmailHTML) Schema() *jsonschema.Schema {
	addresses := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "array", Items: email(""), Description: desc}
	}
	subject := str("Email subject line")
	subject.MinLength = count(1)
	html := str("Raw HTML content for the email body")
	html.MinLength = count(1)

	return object([]string{"to", "subject", "html"}, map[string]*jsonschema.Schema{
		"to": {
			Description: "Recipient email address(es)",
			OneOf: []*jsonschema.Schema{
				email("Recipient email address"),
				{Type: "array", Items: email(""), MinItems: count(1), Description: "Recipient email addresses"},
			},
		},
		"subject": subject,
		"html":    html,
		"cc":      addresses("CC recipient email addresses"),
		"bcc":     addresses("BCC recipient email addresses"),
		"replyTo": email("Reply-to email address"),
	})
}

func (t *SendEmailHTML) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var in sendEmailArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return ErrorResult(map[string]any{"error": InvalidParameters, "details": []string{err.Error()}}), nil
	}
	if problems := in.validate(); len(problems) > 0 {
		return ErrorResult(map[string]any{"error": InvalidParameters, "details": problems}), nil
	}

	res, err := t.sender.Send(ctx, notify.Message{
		To:      in.To,
		Subject: in.Subject,
		HTML:    in.HTML,
		CC:      in.CC,
		BCC:     in.BCC,
		ReplyTo: in.ReplyTo,
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindConfig) {
			return ToolResult{}, err
		}
		return ErrorResult(map[string]any{"error": apperr.PublicMessage(err)}), nil
	}
	return JSONResult(map[string]any{
		"id":      res.ID,
		"to":      []string(in.To),
		"subject": in.Subject,
	})
}

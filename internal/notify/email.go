package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
)

const (
	DefaultEmailBaseURL = "https://api.resend.com"
	DefaultFrom         = "Toyotron <noreply@toyotron.local>"
)

type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	CC          []string
	BCC         []string
	ReplyTo     string
	Attachments []Attachment
}

type SendResult struct {
	ID string `json:"id"`
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// EmailClient sends through a Resend-compatible HTTP API.
type EmailClient struct {
	apiKey     string
	baseURL    string
	from       string
	httpClient *http.Client
}

type EmailOption func(*EmailClient)

func WithEmailBaseURL(u string) EmailOption {
	return func(c *EmailClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithFrom(from string) EmailOption {
	return func(c *EmailClient) {
		if from != "" {
			c.from = from
		}
	}
}

func NewEmailClient(apiKey string, opts ...EmailOption) *EmailClient {
	c := &EmailClient{
		apiKey:     apiKey,
		baseURL:    DefaultEmailBaseURL,
		from:       DefaultFrom,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

type wireEmail struct {
	From        string           `json:"from"`
	To          []string         `json:"to"`
	Subject     string           `json:"subject"`
	HTML        string           `json:"html"`
	CC          []string         `json:"cc,omitempty"`
	BCC         []string         `json:"bcc,omitempty"`
	ReplyTo     string           `json:"reply_to,omitempty"`
	Attachments []wireAttachment `json:"attachments,omitempty"`
}

func (c *EmailClient) Send(ctx context.Context, msg Message) (SendResult, error) {
	if c.apiKey == "" {
		return SendResult{}, apperr.New(apperr.KindConfig, "email provider is not configured: RESEND_API_KEY")
	}
	if len(msg.To) == 0 {
		return SendResult{}, apperr.New(apperr.KindValidation, "at least one recipient is required")
	}

	from := msg.From
	if from == "" {
		from = c.from
	}
	payload := wireEmail{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		CC:      msg.CC,
		BCC:     msg.BCC,
		ReplyTo: msg.ReplyTo,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, wireAttachment{
			Filename:    a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, apperr.Wrap(err, apperr.KindExternal, "email provider unavailable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, apperr.Wrap(err, apperr.KindExternal, "failed to read email provider response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Message == "" {
			e.Message = fmt.Sprintf("email provider returned status %d", resp.StatusCode)
		}
		return SendResult{}, apperr.New(apperr.KindExternal, e.Message).WithContext("status", resp.StatusCode)
	}

	var out SendResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return SendResult{}, apperr.Wrap(err, apperr.KindExternal, "failed to decode email provider response")
	}
	return out, nil
}

// Package webhook verifies and decodes voice-agent function calls.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Retell-Signature"

// Sign returns the hex signature of body under key.
func Sign(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the raw body. An empty key is a
// configuration error, a wrong signature an auth error.
func Verify(body []byte, key, signature string) error {
	if key == "" {
		return apperr.New(apperr.KindConfig, "webhook signing key is not configured").
			WithContext("missing", "RETELL_API_KEY")
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return apperr.New(apperr.KindAuth, "Unauthorized")
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperr.New(apperr.KindAuth, "Unauthorized")
	}
	return nil
}

// Shape tells how a call body was sent.
type Shape int

const (
	// ShapeEnvelope is {name, call, args}
	ShapeEnvelope Shape = iota
	// ShapeBare is the tool arguments sent directly
	ShapeBare
)

func (s Shape) String() string {
	if s == ShapeEnvelope {
		return "envelope"
	}
	return "bare"
}

// Call is a decoded function call. Args is always the canonical tool input.
type Call struct {
	Shape Shape
	Name  string
	Meta  json.RawMessage
	Args  json.RawMessage
}

// Decode resolves the body into a Call. A body whose "args" member is a
// JSON object is an envelope; anything else that is an object is taken as
// the arguments themselves.
func Decode(body []byte) (Call, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Call{}, apperr.New(apperr.KindValidation, "Invalid request body")
	}

	var envelope struct {
		Name string          `json:"name"`
		Call json.RawMessage `json:"call"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Call{}, apperr.Wrap(err, apperr.KindValidation, "Invalid request body")
	}

	args := bytes.TrimSpace(envelope.Args)
	if len(args) > 0 && args[0] == '{' {
		return Call{Shape: ShapeEnvelope, Name: envelope.Name, Meta: envelope.Call, Args: json.RawMessage(args)}, nil
	}
	return Call{Shape: ShapeBare, Args: json.RawMessage(trimmed)}, nil
}

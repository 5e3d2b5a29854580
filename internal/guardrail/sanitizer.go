package guardrail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MimeLyc/carshop-agent/pkg/log"
)

// SafeFallback replaces an assistant reply that still carries sensitive
// data after redaction.
const SafeFallback = "I apologize, but I cannot provide that information. How can I help you find the perfect Toyota vehicle?"

type Category string

const (
	CategoryCredential   Category = "credential"
	CategoryFinancial    Category = "financial_account"
	CategoryGovernmentID Category = "government_id"
	CategoryContact      Category = "contact"
	CategorySecret       Category = "secret"
)

type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

type rule struct {
	name        string
	category    Category
	re          *regexp.Regexp
	replacement string
	// accept filters raw matches, e.g. a Luhn check for card numbers
	accept func(string) bool
}

func (r rule) apply(text string) (string, int) {
	count := 0
	out := r.re.ReplaceAllStringFunc(text, func(m string) string {
		if r.accept != nil && !r.accept(m) {
			return m
		}
		count++
		return r.replacement
	})
	return out, count
}

func (r rule) matches(text string) bool {
	if r.accept == nil {
		return r.re.MatchString(text)
	}
	for _, m := range r.re.FindAllString(text, -1) {
		if r.accept(m) {
			return true
		}
	}
	return false
}

// Ordered: longer and more specific shapes go before the generic ones so a
// card number is never half-eaten by the phone rule.
var redactionRules = []rule{
	{
		name:        "private_key",
		category:    CategorySecret,
		re:          regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
		replacement: "[REDACTED_PRIVATE_KEY]",
	},
	{
		name:        "api_key",
		category:    CategorySecret,
		re:          regexp.MustCompile(`\b(?:sk-(?:proj-|ant-)?[A-Za-z0-9_-]{16,}|nvapi-[A-Za-z0-9_-]{16,}|AKIA[0-9A-Z]{16}|gh[pousr]_[A-Za-z0-9]{30,}|re_[A-Za-z0-9_]{20,})\b`),
		replacement: "[REDACTED_API_KEY]",
	},
	{
		name:        "bearer_token",
		category:    CategorySecret,
		re:          regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{20,}=*`),
		replacement: "[REDACTED_TOKEN]",
	},
	{
		name:        "password",
		category:    CategoryCredential,
		re:          regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|passcode)\s*(?:is|[:=])\s*\S+|\bpin\s*[:=]\s*\d{4,8}\b`),
		replacement: "[REDACTED_CREDENTIAL]",
	},
	{
		name:        "ssn",
		category:    CategoryGovernmentID,
		re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "[REDACTED_SSN]",
	},
	{
		name:        "credit_card",
		category:    CategoryFinancial,
		re:          regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		replacement: "[REDACTED_CARD]",
		accept:      luhnValid,
	},
	{
		name:        "iban",
		category:    CategoryFinancial,
		re:          regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){3,7}(?:\s?[A-Z0-9]{1,3})?\b`),
		replacement: "[REDACTED_BANK_ACCOUNT]",
	},
	{
		name:        "bank_account",
		category:    CategoryFinancial,
		re:          regexp.MustCompile(`(?i)\b(?:account|acct|routing)(?:\s*(?:number|no\.?|num|#))?\s*[:#]?\s*\d{6,17}\b`),
		replacement: "[REDACTED_BANK_ACCOUNT]",
	},
	{
		name:        "email",
		category:    CategoryContact,
		re:          regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		replacement: "[REDACTED_EMAIL]",
	},
	{
		name:        "phone",
		category:    CategoryContact,
		re:          regexp.MustCompile(`(?:\+?1[\s.-]?)?(?:\(\d{3}\)\s?|\b\d{3}[\s.-])\d{3}[\s.-]\d{4}\b`),
		replacement: "[REDACTED_PHONE]",
	},
}

// Shapes that are never partially redacted. Seeing one after redaction
// means the reply cannot be trusted.
var residueRules = []rule{
	{
		name:     "private_key_header",
		category: CategorySecret,
		re:       regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	},
	{
		name:     "env_secret",
		category: CategorySecret,
		re:       regexp.MustCompile(`\b[A-Z][A-Z0-9_]*(?:API_KEY|SECRET|SECRET_KEY|ACCESS_TOKEN|PASSWORD)\s*=\s*\S+`),
	},
}

type Finding struct {
	Rule     string   `json:"rule"`
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

type Result struct {
	Sanitized string    `json:"sanitized"`
	Removed   []Finding `json:"removed,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

func (r Result) Changed() bool {
	return len(r.Removed) > 0
}

// Sanitizer redacts sensitive data from chat text. It holds no mutable
// state and is safe for concurrent use.
type Sanitizer struct {
	rules    []rule
	residue  []rule
	reporter Reporter
	logger   *log.Logger
}

// Reporter is told about every redaction the sanitizer makes.
type Reporter func(dir Direction, f Finding)

type Option func(*Sanitizer)

func WithReporter(fn Reporter) Option {
	return func(s *Sanitizer) {
		s.reporter = fn
	}
}

func NewSanitizer(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		rules:   redactionRules,
		residue: residueRules,
		logger:  log.Named("guardrails"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sanitize applies every redaction rule once, in order.
func (s *Sanitizer) Sanitize(text string) Result {
	res := Result{Sanitized: text}
	for _, r := range s.rules {
		out, n := r.apply(res.Sanitized)
		if n == 0 {
			continue
		}
		res.Sanitized = out
		res.Removed = append(res.Removed, Finding{Rule: r.name, Category: r.category, Count: n})
		res.Warnings = append(res.Warnings, fmt.Sprintf("removed %d %s value(s)", n, strings.ReplaceAll(r.name, "_", " ")))
	}
	return res
}

// SanitizeInput redacts a user message. Processing continues with the
// redacted text.
func (s *Sanitizer) SanitizeInput(text string) Result {
	res := s.Sanitize(text)
	s.report(DirectionInput, res)
	return res
}

// ContainsSensitive reports whether any redaction or residue rule still
// matches text.
func (s *Sanitizer) ContainsSensitive(text string) bool {
	for _, r := range s.rules {
		if r.matches(text) {
			return true
		}
	}
	for _, r := range s.residue {
		if r.matches(text) {
			return true
		}
	}
	return false
}

// FinalizeOutput redacts an assistant reply. When anything sensitive is
// left afterwards the whole reply is replaced with SafeFallback and
// substituted is true.
func (s *Sanitizer) FinalizeOutput(text string) (final string, res Result, substituted bool) {
	res = s.Sanitize(text)
	s.report(DirectionOutput, res)

	if s.ContainsSensitive(res.Sanitized) {
		s.logger.Error("assistant reply still carries sensitive data after redaction, replacing it")
		return SafeFallback, res, true
	}
	return res.Sanitized, res, false
}

func (s *Sanitizer) report(dir Direction, res Result) {
	if !res.Changed() {
		return
	}
	total := 0
	cats := make([]string, 0, len(res.Removed))
	for _, f := range res.Removed {
		total += f.Count
		cats = append(cats, string(f.Category))
		if s.reporter != nil {
			s.reporter(dir, f)
		}
	}
	s.logger.Warn("sensitive data detected in %s: removed=%d categories=%s", dir, total, strings.Join(cats, ","))
}

func luhnValid(raw string) bool {
	digits := make([]int, 0, len(raw))
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

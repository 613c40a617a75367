// Package observability provides structured logging, request IDs and tracing
// for the watsonx.ai client.
package observability

import (
	"regexp"
	"strings"
)

// Redactor masks credentials in log output.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a new redactor with default patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// Order matters: headers and bearer tokens first, then the raw forms.
	r.AddPattern(`(?i)Authorization:\s*[^\s]+(\s+[^\s]+)?`, "Authorization: [REDACTED]", "auth_header")
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]", "bearer_token")
	r.AddPattern(`(?i)apikey=[^&\s]+`, "apikey=[REDACTED]", "iam_form_apikey")
	r.AddPattern(`eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]*`, "[REDACTED_JWT]", "jwt")

	// IBM Cloud API keys are 44 URL-safe characters.
	r.AddPattern(`\b[a-zA-Z0-9_\-]{44}\b`, "[REDACTED_IBM_API_KEY]", "ibm_api_key")

	// COS HMAC access keys (32 hex) and secrets (48 hex).
	r.AddPattern(`\b[a-f0-9]{48}\b`, "[REDACTED_HMAC_SECRET]", "hmac_secret")
	r.AddPattern(`\b[a-f0-9]{32}\b`, "[REDACTED_API_KEY]", "generic_api_key")

	r.AddPattern(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[REDACTED_EMAIL]", "email")
}

// AddPattern adds a custom redaction pattern. Invalid patterns are ignored.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// sensitiveKeys are attribute and map keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"apikey":            true,
	"api_key":           true,
	"token":             true,
	"access_token":      true,
	"refresh_token":     true,
	"secret":            true,
	"secret_access_key": true,
	"password":          true,
	"authorization":     true,
	"credentials":       true,
}

// IsSensitiveKey reports whether values stored under key are always masked.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

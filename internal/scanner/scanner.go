// Package scanner inspects tool output before it re-enters the message
// history: it redacts embedded secrets and flags prompt-injection attempts
// so the scheduler can surface a warning without ever feeding the raw
// injection text back to the model as trusted instruction.
package scanner

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// Severity classifies an injection warning's urgency.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Warning describes one detected prompt-injection attempt or anomaly.
type Warning struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Excerpt  string   `json:"excerpt,omitempty"`
}

// Result is the outcome of scanning one block of tool output text.
type Result struct {
	Redacted   string
	HadSecrets bool
	Warnings   []Warning
}

type secretPattern struct {
	name        string
	re          *regexp.Regexp
	placeholder string
}

// secretPatterns is applied, in order, against the pre-redaction text.
var secretPatterns = []secretPattern{
	{"openai_api_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:api_key]"},
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED:aws_key]"},
	{"github_pat", regexp.MustCompile(`ghp_[A-Za-z0-9]{36,}`), "[REDACTED:github_token]"},
	{"gitlab_pat", regexp.MustCompile(`glpat-[A-Za-z0-9_-]{20,}`), "[REDACTED:gitlab_token]"},
	{"pem_private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED:private_key]"},
	{"db_connection_string", regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://[^:\s]+:[^@\s]+@[^\s/]+`), "[REDACTED:connection_string]"},
	{"generic_env_assignment", regexp.MustCompile(`(?m)^[A-Z][A-Z0-9_]{2,}=[^\s]{8,}$`), "[REDACTED:env_value]"},
}

type injectionPattern struct {
	name string
	re   *regexp.Regexp
}

// injectionPatterns are all High severity, matching the source catalog.
var injectionPatterns = []injectionPattern{
	{"ignore_instructions", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`)},
	{"role_hijack", regexp.MustCompile(`(?i)you\s+are\s+now\s+an?\s+\w+`)},
	{"system_override", regexp.MustCompile(`(?i)system\s*:\s*you\s+(are|must|should)\b`)},
	{"disregard_prior", regexp.MustCompile(`(?i)disregard\s+(all\s+)?(above|prior)\b`)},
	{"new_instructions", regexp.MustCompile(`(?i)new\s+instructions\s*:`)},
}

// longLineThreshold matches the source scanner's single-line length cutoff.
const longLineThreshold = 10000

// base64RunPattern finds contiguous base64-alphabet runs long enough to be
// worth decoding and re-scanning for embedded injection text.
var base64RunPattern = regexp.MustCompile(`[A-Za-z0-9+/]{100,}={0,2}`)

// Scan redacts secrets from text and reports any injection warnings found in
// the pre-redaction text. Scanning twice over already-redacted output is a
// no-op (idempotent): placeholders do not themselves match any pattern.
func Scan(text string) Result {
	var warnings []Warning

	if w, ok := checkBase64Injection(text); ok {
		warnings = append(warnings, w)
	} else {
		warnings = append(warnings, checkInjectionPatterns(text)...)
	}

	if longestLine(text) > longLineThreshold {
		warnings = append(warnings, Warning{Name: "long_single_line", Severity: SeverityMedium})
	}

	redacted := text
	hadSecrets := false
	for _, p := range secretPatterns {
		if p.re.MatchString(redacted) {
			hadSecrets = true
			redacted = p.re.ReplaceAllString(redacted, p.placeholder)
		}
	}

	return Result{Redacted: redacted, HadSecrets: hadSecrets, Warnings: warnings}
}

func checkInjectionPatterns(text string) []Warning {
	var warnings []Warning
	for _, p := range injectionPatterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			warnings = append(warnings, Warning{
				Name:     p.name,
				Severity: SeverityHigh,
				Excerpt:  excerpt(text, loc[0], loc[1]),
			})
		}
	}
	return warnings
}

// checkBase64Injection decodes any sufficiently long base64 run in text and,
// if the decoded content matches an injection pattern, returns a single
// Medium warning and short-circuits the plaintext injection scan (matching
// the source scanner's early return).
func checkBase64Injection(text string) (Warning, bool) {
	matches := base64RunPattern.FindAllString(text, -1)
	for _, m := range matches {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimRight(m, "="))
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(m)
			if err != nil {
				continue
			}
		}
		decodedStr := string(decoded)
		for _, p := range injectionPatterns {
			if p.re.MatchString(decodedStr) {
				return Warning{Name: "base64_injection", Severity: SeverityMedium, Excerpt: excerpt(decodedStr, 0, min(len(decodedStr), 80))}, true
			}
		}
	}
	return Warning{}, false
}

func longestLine(text string) int {
	longest := 0
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			if n := i - start; n > longest {
				longest = n
			}
			start = i + 1
		}
	}
	return longest
}

func excerpt(text string, start, end int) string {
	const radius = 20
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// Package render produces output from a verdict.
package render

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dshills/contractcheck/internal/schema"
	"github.com/dshills/contractcheck/internal/verdict"
)

// Format selects a verdict rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCI       Format = "ci"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatMarkdown, FormatCI:
		return f, nil
	}
	return "", fmt.Errorf("render: unknown format %q (available: json, markdown, ci)", s)
}

// marshalIndent is swapped in tests to exercise the fallback path. HTML
// characters in messages and patterns are written as-is.
var marshalIndent = func(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndentWithOption(v, prefix, indent, json.DisableHTMLEscape())
}

// RenderJSON produces the pretty-printed public verdict document.
func RenderJSON(v schema.Verdict) ([]byte, error) {
	b, err := marshalIndent(verdict.Public(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// FallbackJSON is the hand-built failure document used when the verdict itself
// cannot be serialized. It depends on nothing that can fail.
func FallbackJSON(err error) []byte {
	msg := "Failed to serialize verdict: " + err.Error()
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString("  \"status\": \"fail\",\n")
	sb.WriteString("  \"violations\": [\n")
	sb.WriteString("    {\n")
	sb.WriteString("      \"field\": \"\",\n")
	sb.WriteString("      \"message\": " + quoteJSON(msg) + ",\n")
	sb.WriteString("      \"rule\": \"runtime\"\n")
	sb.WriteString("    }\n")
	sb.WriteString("  ]\n")
	sb.WriteString("}")
	return []byte(sb.String())
}

// quoteJSON quotes s as a JSON string literal.
func quoteJSON(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r < 0x20:
			fmt.Fprintf(&sb, "\\u%04x", r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// RenderMarkdown produces a GitHub-flavoured Markdown summary of the verdict,
// suitable for PR comments.
func RenderMarkdown(v schema.Verdict, title string) string {
	var sb strings.Builder

	if title == "" {
		title = "Contract Check"
	}
	fmt.Fprintf(&sb, "## %s\n\n", mdEscape(title))
	fmt.Fprintf(&sb, "**Status:** %s  \n", strings.ToUpper(string(v.Status)))
	fmt.Fprintf(&sb, "**Violations:** %d\n\n", len(v.Violations))

	if len(v.Violations) == 0 {
		return sb.String()
	}

	sb.WriteString("| Rule | Count |\n")
	sb.WriteString("|---|---|\n")
	for _, rc := range verdict.Counts(v) {
		fmt.Fprintf(&sb, "| %s | %d |\n", mdEscape(rc.RuleName), rc.Count)
	}
	sb.WriteString("\n")

	sb.WriteString("| # | Rule | Row | Field | Message | Expected | Actual |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for i, viol := range v.Violations {
		pv := verdict.PublicViolation(viol)
		row := ""
		if viol.Row != nil {
			row = strconv.Itoa(*viol.Row)
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %s | %s |\n",
			i+1, mdEscape(pv.Rule), row, code(pv.Field), mdEscape(pv.Message),
			code(string(pv.Expected)), code(string(pv.Actual)))
	}
	return sb.String()
}

// RenderCI formats violations as GitHub Actions error annotations against file.
func RenderCI(v schema.Verdict, file string) string {
	if v.Status == schema.StatusPass {
		return ""
	}
	var sb strings.Builder
	for _, viol := range v.Violations {
		pv := verdict.PublicViolation(viol)
		msg := pv.Message
		if len(pv.Expected) > 0 {
			msg += " expected=" + string(pv.Expected)
		}
		if len(pv.Actual) > 0 {
			msg += " actual=" + string(pv.Actual)
		}
		fmt.Fprintf(&sb, "::error file=%s,title=%s::%s\n", ciProperty(file), ciProperty(pv.Rule), ciData(msg))
	}
	fmt.Fprintf(&sb, "\nContract check failed: %d violation(s)\n", len(v.Violations))
	return sb.String()
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

func code(s string) string {
	if s == "" {
		return ""
	}
	return "`" + strings.ReplaceAll(mdEscape(s), "`", "'") + "`"
}

// ciData escapes a workflow-command message.
func ciData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// ciProperty escapes a workflow-command property value.
func ciProperty(s string) string {
	s = ciData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	s = strings.ReplaceAll(s, ",", "%2C")
	return s
}

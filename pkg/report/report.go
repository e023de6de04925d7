// Package report renders a research result for people: the downloadable text
// artifact and the terminal view.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/wilhg/sagebot/pkg/research"
)

// TimestampLayout formats the artifact timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Banners shown around a run.
const (
	SuccessBanner = "✅ Research complete!"
	FailurePrefix = "❌ Something went wrong: "
)

// Text renders the download artifact for res.
func Text(res research.Result, now time.Time) string {
	var b strings.Builder
	b.WriteString("--- RESEARCH OUTPUT ---\n")
	fmt.Fprintf(&b, "Timestamp: %s\n\n", now.Format(TimestampLayout))
	fmt.Fprintf(&b, "Topic: %s\n\n", res.Topic)
	fmt.Fprintf(&b, "Summary:\n%s\n\n", res.Summary)
	fmt.Fprintf(&b, "Sources: %s\n", PyList(res.Sources))
	fmt.Fprintf(&b, "Tools Used: %s\n", PyList(res.ToolsUsed))
	return b.String()
}

// filenameReplacer maps spaces and anything that could leave the target
// directory to underscores.
var filenameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "\x00", "_")

// Filename is the artifact name for a topic; spaces become underscores.
// The result never contains a path separator.
func Filename(topic string) string {
	return "research_summary_" + filenameReplacer.Replace(topic) + ".txt"
}

// Failure formats a terminal error line.
func Failure(err error) string {
	return FailurePrefix + err.Error()
}

// Render writes the result view: Summary, Topic, Sources, Tools Used.
// A non-empty style renders the summary as markdown through glamour.
func Render(w io.Writer, res research.Result, style string) error {
	summary := res.Summary
	if style != "" {
		styled, err := glamour.Render(summary, style)
		if err != nil {
			return fmt.Errorf("render summary: %w", err)
		}
		summary = strings.Trim(styled, "\n")
	}
	var b strings.Builder
	b.WriteString(SuccessBanner + "\n\n")
	fmt.Fprintf(&b, "📝 Summary\n%s\n\n", summary)
	fmt.Fprintf(&b, "📌 Topic\n%s\n\n", res.Topic)
	b.WriteString("🔗 Sources\n")
	for _, src := range res.Sources {
		fmt.Fprintf(&b, "- %s\n", src)
	}
	fmt.Fprintf(&b, "\n🛠️ Tools Used\n%s\n", strings.Join(res.ToolsUsed, ", "))
	_, err := io.WriteString(w, b.String())
	return err
}

// PyList formats a string list the way a Python list of str prints.
func PyList(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = pyRepr(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func pyRepr(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

package tools

import (
	"context"
	"strings"
)

// ShortenSummary keeps the first two ". "-separated segments of its input.
type ShortenSummary struct{}

func (ShortenSummary) Name() string { return "shorten_summary" }

func (ShortenSummary) Description() string {
	return "Use this tool to shorten a long summary into 2-3 lines."
}

func (ShortenSummary) Invoke(_ context.Context, input string) (string, error) {
	return Shorten(input), nil
}

// Shorten joins the first two segments with ". " and appends "..." when a third existed.
func Shorten(s string) string {
	parts := strings.Split(s, ". ")
	if len(parts) <= 2 {
		return strings.Join(parts, ". ")
	}
	return strings.Join(parts[:2], ". ") + "..."
}

// FormatMarkdown wraps its input in a fenced code block.
type FormatMarkdown struct{}

func (FormatMarkdown) Name() string { return "format_markdown" }

func (FormatMarkdown) Description() string {
	return "Wraps the research output in markdown-style code block formatting."
}

func (FormatMarkdown) Invoke(_ context.Context, input string) (string, error) {
	return Fence(input), nil
}

func Fence(s string) string { return "```\n" + s + "\n```" }

package tools

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTextFile receives save_text_to_file blocks.
	DefaultTextFile = "research_output.txt"
	// DefaultJSONFile receives save_as_json records.
	DefaultJSONFile = "research_output.json"

	// TimestampLayout renders YYYY-MM-DD HH:MM:SS.
	TimestampLayout = "2006-01-02 15:04:05"
)

// SaveText appends a timestamped research block to a text file.
type SaveText struct {
	Dir   string
	Files *Appender
	Now   func() time.Time
}

func (SaveText) Name() string { return "save_text_to_file" }

func (SaveText) Description() string {
	return "Use this tool to save structured research summaries to a local .txt file."
}

func (t SaveText) Invoke(ctx context.Context, input string) (string, error) {
	return t.Save(ctx, input, DefaultTextFile)
}

// Save appends data to filename under Dir. An empty filename selects DefaultTextFile.
func (t SaveText) Save(ctx context.Context, data, filename string) (string, error) {
	if filename == "" {
		filename = DefaultTextFile
	}
	block := fmt.Sprintf("--- RESEARCH OUTPUT ---\nTimestamp: %s\n\n%s\n\n", now(t.Now).Format(TimestampLayout), data)
	if err := appender(t.Files).Append(ctx, filepath.Join(t.Dir, filename), []byte(block)); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Data successfully saved to '%s'", filename), nil
}

// SaveJSON appends a pretty-printed JSON value and a ",\n" separator to a file.
// The file is a log of records, not a single JSON document.
type SaveJSON struct {
	Dir   string
	Files *Appender
}

func (SaveJSON) Name() string { return "save_as_json" }

func (SaveJSON) Description() string {
	return "Use this tool to save the research result as a JSON object (for programmatic use)."
}

// Invoke never returns an error: parse and write failures are reported in the text.
func (t SaveJSON) Invoke(ctx context.Context, input string) (string, error) {
	return t.Save(ctx, input, DefaultJSONFile), nil
}

// Save normalizes single quotes to double quotes, then appends the indented value.
// Apostrophes inside string values are corrupted by the normalization.
func (t SaveJSON) Save(ctx context.Context, data, filename string) string {
	if filename == "" {
		filename = DefaultJSONFile
	}
	record, err := indentJSON(data)
	if err == nil {
		err = appender(t.Files).Append(ctx, filepath.Join(t.Dir, filename), record)
	}
	if err != nil {
		return fmt.Sprintf("❌ Failed to save JSON: %v", err)
	}
	return fmt.Sprintf("✅ Research saved in JSON format to '%s'", filename)
}

func indentJSON(data string) ([]byte, error) {
	v, err := decodeOrdered(strings.TrimSpace(strings.ReplaceAll(data, "'", `"`)))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeIndented(&buf, v, 0)
	buf.WriteString(",\n")
	return buf.Bytes(), nil
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now()
	}
	return fn()
}

func appender(a *Appender) *Appender {
	if a == nil {
		return NewAppender()
	}
	return a
}

// Package report renders an extracted label as Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/splgest/internal/label"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown renders the metadata table followed by one heading per section,
// in extraction order.
func Markdown(res *label.Result) string {
	var b strings.Builder

	heading := res.Title
	if heading == "" {
		heading = res.DrugName
	}
	if heading == "" {
		heading = "Untitled label"
	}
	fmt.Fprintf(&b, "# %s\n\n", escapeInline(heading))

	b.WriteString("| Field | Value |\n|---|---|\n")
	for _, f := range res.Fields() {
		fmt.Fprintf(&b, "| %s | %s |\n", f.Key, escapeInline(f.Value))
	}

	for _, key := range res.SectionKeys {
		fmt.Fprintf(&b, "\n## %s\n\n", escapeInline(key))
		for _, line := range strings.Split(res.Sections[key], "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			b.WriteString(escapeLine(line))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// HTML converts the Markdown rendering with goldmark.
func HTML(res *label.Result) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(res)), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
	`>`, `\>`,
	`|`, `\|`,
	`#`, `\#`,
	`&`, `\&`,
	`!`, `\!`,
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}

// escapeLine also neutralizes block markers at the start of a line.
func escapeLine(s string) string {
	s = escapeInline(s)
	switch s[0] {
	case '-', '+', '=':
		return `\` + s
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[:i] + `\` + s[i:]
	}
	return s
}

package outbox

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownToHTML renders a draft body to HTML.
func markdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("outbox: render markdown: %w", err)
	}
	return buf.String(), nil
}

// markdownToText flattens a draft body to plaintext: paragraph breaks
// become blank lines, list items become "- " prefixed lines.
func markdownToText(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var out strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				out.Write(node.Segment.Value(source))
				if node.HardLineBreak() {
					out.WriteString("\n\n")
				} else if node.SoftLineBreak() {
					out.WriteString("\n")
				}
			}
		case *ast.ListItem:
			if entering {
				out.WriteString("- ")
			} else {
				ensureNewline(&out)
			}
		case *ast.Paragraph, *ast.List:
			if !entering {
				ensureNewline(&out)
				out.WriteString("\n")
			}
		case *ast.CodeSpan:
			// Children are Text nodes; nothing extra to emit.
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(out.String())
}

func ensureNewline(out *strings.Builder) {
	if s := out.String(); s != "" && !strings.HasSuffix(s, "\n") {
		out.WriteString("\n")
	}
}

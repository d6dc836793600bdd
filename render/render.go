// Package render produces the sanitized HTML and plaintext artifacts
// for inbound messages.
//
// Both renderers honor the same contract: bytes in, bytes out,
// nonzero exit (for external commands) or an error (for the built-in
// implementations) means failure. External commands receive the input
// on stdin and write the result to stdout.
package render

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/microcosm-cc/bluemonday"
)

// Default external commands.
const (
	DefaultSanitizeCommand = "sanitize-html"
	DefaultTextCommand     = "lynx"
)

var defaultTextArgs = []string{"-dump", "-stdin"}

// Sanitizer strips an HTML document down to a safe subset.
type Sanitizer struct {
	// Command names an external filter. When empty the built-in
	// policy is used.
	Command string
	Args    []string
}

// NewSanitizer returns a sanitizer using the external command when it
// is installed, and the built-in policy otherwise.
func NewSanitizer() Sanitizer {
	if _, err := exec.LookPath(DefaultSanitizeCommand); err == nil {
		return Sanitizer{Command: DefaultSanitizeCommand}
	}
	return Sanitizer{}
}

// Sanitize returns the safe rendering of input.
func (s Sanitizer) Sanitize(input string) (string, error) {
	if s.Command == "" {
		return bluemonday.UGCPolicy().Sanitize(input), nil
	}
	return runFilter(s.Command, s.Args, input)
}

// TextRenderer flattens sanitized HTML into readable plaintext.
type TextRenderer struct {
	// Command names an external filter. When empty the built-in
	// renderer is used.
	Command string
	Args    []string
}

// NewTextRenderer returns a renderer using lynx when it is installed,
// and the built-in renderer otherwise.
func NewTextRenderer() TextRenderer {
	if _, err := exec.LookPath(DefaultTextCommand); err == nil {
		return TextRenderer{Command: DefaultTextCommand, Args: defaultTextArgs}
	}
	return TextRenderer{}
}

// Render returns the plaintext rendering of input.
func (r TextRenderer) Render(input string) (string, error) {
	if r.Command == "" {
		out, err := html2text.FromString(input, html2text.Options{})
		if err != nil {
			return "", fmt.Errorf("render: html2text: %w", err)
		}
		return out, nil
	}
	return runFilter(r.Command, r.Args, input)
}

func runFilter(name string, args []string, input string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(input)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errOut.String())
		if msg != "" {
			return "", fmt.Errorf("render: running %s: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("render: running %s: %w", name, err)
	}
	return out.String(), nil
}

// EscapeToPre wraps plain text in a <pre> block with HTML metacharacters
// escaped, for messages that carry no HTML part.
func EscapeToPre(text string) string {
	var b strings.Builder
	b.WriteString("<pre>")
	for _, r := range text {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("</pre>")
	return b.String()
}

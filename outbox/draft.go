package outbox

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// Draft is a parsed draft file: YAML front matter fenced by "---"
// lines followed by a Markdown body. The file's stem must be a ULID.
type Draft struct {
	ULID    string
	Subject string
	From    *mail.Address
	To      []*mail.Address
	Cc      []*mail.Address
	ReplyTo *mail.Address
	Body    string
	Domain  string
}

type frontMatter struct {
	Subject string   `yaml:"subject"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
	Cc      []string `yaml:"cc"`
	ReplyTo string   `yaml:"reply_to"`
}

// ParseDraft reads and validates a draft file.
func ParseDraft(path string) (*Draft, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := ulid.Parse(stem); err != nil {
		return nil, fmt.Errorf("outbox: draft filename must be a ULID: %q", stem)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}
	front, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, err
	}
	var meta frontMatter
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return nil, fmt.Errorf("outbox: draft front matter: %w", err)
	}
	if meta.From == "" {
		return nil, fmt.Errorf("outbox: draft front matter missing 'from'")
	}
	if len(meta.To) == 0 {
		return nil, fmt.Errorf("outbox: draft front matter must include at least one recipient")
	}

	from, err := mail.ParseAddress(meta.From)
	if err != nil {
		return nil, fmt.Errorf("outbox: draft 'from': %w", err)
	}
	_, domain, ok := strings.Cut(from.Address, "@")
	if !ok {
		return nil, fmt.Errorf("outbox: from address missing domain: %q", from.Address)
	}

	to, err := parseMailboxes(meta.To)
	if err != nil {
		return nil, fmt.Errorf("outbox: draft 'to': %w", err)
	}
	cc, err := parseMailboxes(meta.Cc)
	if err != nil {
		return nil, fmt.Errorf("outbox: draft 'cc': %w", err)
	}
	var replyTo *mail.Address
	if meta.ReplyTo != "" {
		replyTo, err = mail.ParseAddress(meta.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("outbox: draft 'reply_to': %w", err)
		}
	}

	return &Draft{
		ULID:    stem,
		Subject: meta.Subject,
		From:    from,
		To:      to,
		Cc:      cc,
		ReplyTo: replyTo,
		Body:    body,
		Domain:  domain,
	}, nil
}

func parseMailboxes(raw []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(raw))
	for _, r := range raw {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", r, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func splitFrontMatter(contents string) (front, body string, err error) {
	normalized := strings.ReplaceAll(contents, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return "", "", fmt.Errorf("outbox: draft missing front matter fence")
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", "", fmt.Errorf("outbox: draft front matter not terminated")
	}
	front = rest[:end+1]
	body = rest[end+1+len("---"):]
	body = strings.TrimPrefix(body, "\n")
	return front, body, nil
}

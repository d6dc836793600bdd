package email

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"owlery.ink/fsatom"
)

// SidecarSchema is the current sidecar schema version.
const SidecarSchema = 1

// Outbound dispatch states.
const (
	OutboundPending = "pending"
	OutboundSent    = "sent"
)

// Sidecar is the hidden YAML file that records metadata for one
// message. It exclusively owns its sibling .eml/.html/.txt artifact
// group; moving a message means moving all of them and rewriting
// StatusShadow.
type Sidecar struct {
	Schema       int              `yaml:"schema"`
	ULID         string           `yaml:"ulid"`
	Filename     string           `yaml:"filename"`
	StatusShadow string           `yaml:"status_shadow"`
	Read         bool             `yaml:"read"`
	Starred      bool             `yaml:"starred"`
	Pinned       bool             `yaml:"pinned"`
	HashSHA256   string           `yaml:"hash_sha256"`
	ReceivedAt   string           `yaml:"received_at"`
	LastActivity string           `yaml:"last_activity"`
	Render       RenderInfo       `yaml:"render"`
	Attachments  []AttachmentMeta `yaml:"attachments"`
	HeadersCache HeadersCache     `yaml:"headers_cache"`
	Rspamd       *RspamdSummary   `yaml:"rspamd,omitempty"`
	Outbound     *OutboundState   `yaml:"outbound,omitempty"`
	History      []string         `yaml:"history"`
}

// RenderInfo records which renderings exist beside the .eml.
type RenderInfo struct {
	Mode  string `yaml:"mode"`
	HTML  string `yaml:"html"`
	Plain string `yaml:"plain,omitempty"`
}

// AttachmentMeta references one blob in the list's attachment store.
type AttachmentMeta struct {
	SHA256 string `yaml:"sha256"`
	Name   string `yaml:"name"`
}

// HeadersCache holds the header fields the engine needs without
// re-parsing the .eml.
type HeadersCache struct {
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
	Cc      []string `yaml:"cc"`
	Subject string   `yaml:"subject"`
	Date    string   `yaml:"date"`
}

// RspamdSummary is the spam filter verdict lifted from the message
// headers at delivery time.
type RspamdSummary struct {
	Score   float64  `yaml:"score"`
	Symbols []string `yaml:"symbols"`
}

// OutboundState tracks dispatch progress for queued messages.
type OutboundState struct {
	Status        string `yaml:"status"`
	Attempts      int    `yaml:"attempts"`
	NextAttemptAt string `yaml:"next_attempt_at,omitempty"`
	LastError     string `yaml:"last_error,omitempty"`
}

// NewSidecar constructs a sidecar stamped with the current time.
func NewSidecar(ulid, filename, statusShadow, renderMode, htmlName, hashSHA256 string, headers HeadersCache) *Sidecar {
	now := Now()
	return &Sidecar{
		Schema:       SidecarSchema,
		ULID:         ulid,
		Filename:     filename,
		StatusShadow: statusShadow,
		HashSHA256:   hashSHA256,
		ReceivedAt:   now,
		LastActivity: now,
		Render: RenderInfo{
			Mode: renderMode,
			HTML: htmlName,
		},
		HeadersCache: headers,
	}
}

// Now is the RFC 3339 UTC timestamp format used throughout sidecars.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Touch updates LastActivity to the current time.
func (s *Sidecar) Touch() { s.LastActivity = Now() }

// MarkRead flags the message read and touches it.
func (s *Sidecar) MarkRead() {
	s.Read = true
	s.Touch()
}

// AddAttachment appends a blob reference, preserving order.
func (s *Sidecar) AddAttachment(sha256, name string) {
	s.Attachments = append(s.Attachments, AttachmentMeta{SHA256: sha256, Name: name})
}

// AddHistory appends a timestamped history entry.
func (s *Sidecar) AddHistory(event string) {
	s.History = append(s.History, Now()+" "+event)
}

// EnsureOutbound returns the outbound state, creating a pending one
// if the sidecar has none.
func (s *Sidecar) EnsureOutbound() *OutboundState {
	if s.Outbound == nil {
		s.Outbound = &OutboundState{Status: OutboundPending}
	}
	return s.Outbound
}

// LoadSidecar reads and parses a sidecar file.
func LoadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	s := new(Sidecar)
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("email: parse sidecar %s: %w", path, err)
	}
	return s, nil
}

// Save atomically writes the sidecar to path.
func (s *Sidecar) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("email: encode sidecar: %w", err)
	}
	return fsatom.WriteFile(path, data)
}

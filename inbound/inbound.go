// Package inbound implements the inbound delivery pipeline: size-gate,
// persist the raw message, split MIME parts, sanitize and render, and
// register attachments in the list's content-addressed store.
package inbound

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jhillyerd/enmime/v2"
	"github.com/oklog/ulid/v2"

	"owlery.ink/attach"
	"owlery.ink/email"
	"owlery.ink/envcfg"
	"owlery.ink/fsatom"
	"owlery.ink/layout"
	"owlery.ink/render"
	"owlery.ink/rules"
)

// Pipeline lands inbound messages in the mail tree.
type Pipeline struct {
	// Sanitizer and TextRenderer may be replaced before first use,
	// e.g. by tests or alternate render configurations.
	Sanitizer    render.Sanitizer
	TextRenderer render.TextRenderer

	layout          layout.Layout
	cfg             envcfg.Config
	approvedLimit   uint64
	quarantineLimit uint64
}

// New builds a pipeline from the configured size caps.
func New(lay layout.Layout, cfg envcfg.Config) (*Pipeline, error) {
	approved, err := envcfg.ParseSize(cfg.MaxSizeApprovedDefault)
	if err != nil {
		return nil, fmt.Errorf("inbound: max_size_approved_default: %w", err)
	}
	quarantine, err := envcfg.ParseSize(cfg.MaxSizeQuarantine)
	if err != nil {
		return nil, fmt.Errorf("inbound: max_size_quarantine: %w", err)
	}
	return &Pipeline{
		Sanitizer:       render.NewSanitizer(),
		TextRenderer:    render.NewTextRenderer(),
		layout:          lay,
		cfg:             cfg,
		approvedLimit:   approved,
		quarantineLimit: quarantine,
	}, nil
}

// Deliver routes the message through the loaded rules and lands it.
func (p *Pipeline) Deliver(sender email.Address, subject string, raw []byte, loaded rules.LoadedRules) (string, error) {
	route, err := rules.DetermineRoute(sender, loaded)
	if err != nil {
		return "", err
	}
	return p.DeliverRoute(route, sender, subject, raw)
}

// DeliverRoute lands the message in the given list, bypassing rule
// evaluation. Quarantine is gated by the quarantine cap, every other
// route by the approved cap.
func (p *Pipeline) DeliverRoute(route rules.Route, sender email.Address, subject string, raw []byte) (string, error) {
	limit, configured := p.approvedLimit, p.cfg.MaxSizeApprovedDefault
	if route == rules.RouteQuarantine {
		limit, configured = p.quarantineLimit, p.cfg.MaxSizeQuarantine
	}
	if uint64(len(raw)) > limit {
		return "", fmt.Errorf("inbound: message size %d bytes exceeds %s limit (%s)", len(raw), route, configured)
	}

	list := route.String()
	dir := filepath.Join(p.layout.List(list), sender.Canonical())
	id := ulid.Make().String()

	messageName := email.MessageFilename(subject, id)
	messagePath := filepath.Join(dir, messageName)
	if err := fsatom.WriteFile(messagePath, raw); err != nil {
		return "", err
	}

	sum := sha256.Sum256(raw)

	parsed, err := parseMessage(raw)
	if err != nil {
		return "", fmt.Errorf("inbound: parse mime: %w", err)
	}

	htmlInput := parsed.html
	if htmlInput == "" {
		htmlInput = render.EscapeToPre(parsed.text)
	}
	sanitized, err := p.Sanitizer.Sanitize(htmlInput)
	if err != nil {
		return "", err
	}
	plain, err := p.TextRenderer.Render(sanitized)
	if err != nil {
		// The original text part, possibly empty, is the fallback.
		plain = parsed.text
	}

	htmlName := email.HTMLFilename(subject, id)
	textName := email.TextFilename(subject, id)
	headers := email.HeadersCache{
		From:    sender.String(),
		Subject: subject,
		Date:    email.Now(),
	}
	sidecar := email.NewSidecar(id, messageName, list, p.cfg.RenderMode, htmlName, hex.EncodeToString(sum[:]), headers)
	sidecar.Render.Plain = textName
	sidecar.Rspamd = parsed.rspamd

	if route != rules.RouteQuarantine {
		store := attach.NewStore(p.layout.Attachments(list))
		for _, att := range parsed.attachments {
			stored, err := store.Put(att.name, att.data)
			if err != nil {
				return "", err
			}
			sidecar.AddAttachment(stored.SHA256, att.name)
		}
	}

	if err := sidecar.Save(filepath.Join(dir, email.SidecarFilename(subject, id))); err != nil {
		return "", err
	}
	if err := fsatom.WriteFile(filepath.Join(dir, htmlName), []byte(sanitized)); err != nil {
		return "", err
	}
	if err := fsatom.WriteFile(filepath.Join(dir, textName), []byte(plain)); err != nil {
		return "", err
	}
	return messagePath, nil
}

type parsedMessage struct {
	html        string
	text        string
	attachments []attachment
	rspamd      *email.RspamdSummary
}

type attachment struct {
	name string
	data []byte
}

func parseMessage(raw []byte) (parsedMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return parsedMessage{}, err
	}
	parsed := parsedMessage{
		html:   env.HTML,
		text:   env.Text,
		rspamd: extractRspamd(env),
	}
	for _, part := range env.Attachments {
		parsed.attachments = append(parsed.attachments, attachment{name: part.FileName, data: part.Content})
	}
	// Inline and otherwise-disposed parts count as attachments when
	// they are named and not text.
	for _, part := range append(env.Inlines, env.OtherParts...) {
		if part.FileName == "" || strings.HasPrefix(part.ContentType, "text/") {
			continue
		}
		parsed.attachments = append(parsed.attachments, attachment{name: part.FileName, data: part.Content})
	}
	return parsed, nil
}

func extractRspamd(env *enmime.Envelope) *email.RspamdSummary {
	raw := env.GetHeader("X-Spam-Score")
	if raw == "" {
		raw = env.GetHeader("X-Rspamd-Score")
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	symbolsRaw := env.GetHeader("X-Spam-Symbols")
	if symbolsRaw == "" {
		symbolsRaw = env.GetHeader("X-Rspamd-Report")
	}
	var symbols []string
	for _, s := range strings.Split(symbolsRaw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return &email.RspamdSummary{Score: score, Symbols: symbols}
}

// Package outbox implements the outbound pipeline: drafts are
// rendered into signed MIME messages queued under outbox/, and a
// dispatch sweep relays them, retrying failures on a backoff schedule
// (the number of attempts is not capped), and promotes sent messages
// to sent/.
package outbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"owlery.ink/email"
	"owlery.ink/email/dkim"
	"owlery.ink/email/msgbuild"
	"owlery.ink/envcfg"
	"owlery.ink/fsatom"
	"owlery.ink/layout"
	"owlery.ink/owlog"
)

// Pipeline queues and dispatches outbound messages. Dispatch is
// idempotent and serialized through an internal mutex, so concurrent
// watcher wakeups cannot double-send.
type Pipeline struct {
	layout    layout.Layout
	cfg       envcfg.Config
	log       *owlog.Logger
	transport Transport
	schedule  []time.Duration

	mu sync.Mutex
}

// New builds a pipeline relaying through the configured SMTP host.
func New(lay layout.Layout, cfg envcfg.Config, log *owlog.Logger) *Pipeline {
	return NewWithTransport(lay, cfg, log, NewSMTPRelay(cfg))
}

// NewWithTransport substitutes the relay transport, e.g. for tests.
func NewWithTransport(lay layout.Layout, cfg envcfg.Config, log *owlog.Logger, t Transport) *Pipeline {
	return &Pipeline{
		layout:    lay,
		cfg:       cfg,
		log:       log,
		transport: t,
		schedule:  parseSchedule(cfg.RetryBackoff),
	}
}

// parseSchedule converts the configured retry backoff into durations.
// Unparseable entries are dropped; an empty result degrades to a
// single one-minute interval.
func parseSchedule(entries []string) []time.Duration {
	var schedule []time.Duration
	for _, entry := range entries {
		if d, err := time.ParseDuration(strings.TrimSpace(entry)); err == nil && d > 0 {
			schedule = append(schedule, d)
		}
	}
	if len(schedule) == 0 {
		schedule = []time.Duration{time.Minute}
	}
	return schedule
}

// nextDelay returns the backoff before the next attempt; the last
// interval repeats indefinitely.
func (p *Pipeline) nextDelay(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.schedule) {
		idx = len(p.schedule) - 1
	}
	return p.schedule[idx]
}

// QueueDraft renders the draft at path into a signed message under
// outbox/ and returns the queued .eml path.
func (p *Pipeline) QueueDraft(draftPath string) (string, error) {
	draft, err := ParseDraft(draftPath)
	if err != nil {
		return "", err
	}

	material, err := dkim.EnsureKeypair(p.layout.DKIMDir(), p.cfg.DKIMSelector)
	if err != nil {
		return "", err
	}
	signer, err := dkim.NewSigner(material)
	if err != nil {
		return "", err
	}

	htmlBody, err := markdownToHTML(draft.Body)
	if err != nil {
		return "", err
	}
	textBody := markdownToText(draft.Body)

	now := time.Now().UTC()
	msg := &msgbuild.Message{
		From:      draft.From.String(),
		To:        formatMailboxes(draft.To),
		Cc:        formatMailboxes(draft.Cc),
		Subject:   draft.Subject,
		Date:      now,
		MessageID: "<" + draft.ULID + "@" + draft.Domain + ">",
		Text:      textBody,
		HTML:      htmlBody,
	}
	if draft.ReplyTo != nil {
		msg.ReplyTo = draft.ReplyTo.String()
	}
	headers, body, err := msg.Build()
	if err != nil {
		return "", err
	}

	sigValue, err := signer.Sign(draft.Domain, string(headers), body, dkim.SignedHeaders)
	if err != nil {
		return "", err
	}

	var final []byte
	final = append(final, []byte("DKIM-Signature: "+sigValue+"\r\n")...)
	final = append(final, headers...)
	final = append(final, []byte("\r\n")...)
	final = append(final, body...)

	sum := sha256.Sum256(final)

	messageName := email.OutboxMessageFilename(draft.ULID)
	messagePath := filepath.Join(p.layout.Outbox(), messageName)
	if err := fsatom.WriteFile(messagePath, final); err != nil {
		return "", err
	}
	htmlName := email.OutboxHTMLFilename(draft.ULID)
	if err := fsatom.WriteFile(filepath.Join(p.layout.Outbox(), htmlName), []byte(htmlBody)); err != nil {
		return "", err
	}

	headersCache := email.HeadersCache{
		From:    draft.From.String(),
		To:      formatMailboxes(draft.To),
		Cc:      formatMailboxes(draft.Cc),
		Subject: draft.Subject,
		Date:    now.Format(time.RFC1123Z),
	}
	sidecar := email.NewSidecar(draft.ULID, messageName, "outbox", p.cfg.RenderMode, htmlName, hex.EncodeToString(sum[:]), headersCache)
	sidecar.EnsureOutbound()
	if err := sidecar.Save(filepath.Join(p.layout.Outbox(), email.OutboxSidecarFilename(draft.ULID))); err != nil {
		return "", err
	}
	return messagePath, nil
}

// Outcome is the result of one dispatch attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeRetried
)

// DispatchResult reports what happened to one queued message.
type DispatchResult struct {
	ULID    string
	Outcome Outcome
}

// DispatchPending sweeps the outbox and attempts every due message.
// It is safe to call repeatedly: sent messages have left the outbox,
// and messages whose next attempt lies in the future are skipped.
func (p *Pipeline) DispatchPending() ([]DispatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	outboxDir := p.layout.Outbox()
	entries, err := os.ReadDir(outboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("outbox: %w", err)
	}

	var results []DispatchResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		sidecarPath := filepath.Join(outboxDir, entry.Name())
		result, err := p.dispatchOne(sidecarPath)
		if err != nil {
			return results, err
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

func (p *Pipeline) dispatchOne(sidecarPath string) (*DispatchResult, error) {
	sidecar, err := email.LoadSidecar(sidecarPath)
	if err != nil {
		return nil, err
	}
	if sidecar.StatusShadow != "outbox" {
		return nil, nil
	}
	outbound := sidecar.EnsureOutbound()
	if outbound.Status == email.OutboundSent {
		return nil, nil
	}
	if outbound.NextAttemptAt != "" {
		if next, err := time.Parse(time.RFC3339, outbound.NextAttemptAt); err == nil && next.After(time.Now()) {
			return nil, nil
		}
	}
	messagePath := filepath.Join(p.layout.Outbox(), sidecar.Filename)
	raw, err := os.ReadFile(messagePath)
	if err != nil {
		if os.IsNotExist(err) {
			p.log.Log(owlog.Minimal, "outbox.missing_eml", "file="+messagePath)
			return nil, nil
		}
		return nil, fmt.Errorf("outbox: %w", err)
	}

	env, err := envelopeFor(sidecar)
	if err != nil {
		return nil, err
	}

	outbound.Attempts++
	if sendErr := p.transport.Send(raw, env); sendErr != nil {
		outbound.Status = email.OutboundPending
		outbound.LastError = sendErr.Error()
		delay := p.nextDelay(outbound.Attempts)
		outbound.NextAttemptAt = time.Now().UTC().Add(delay).Format(time.RFC3339)
		if err := sidecar.Save(sidecarPath); err != nil {
			return nil, err
		}
		p.log.Log(owlog.Minimal, "outbox.retry",
			fmt.Sprintf("ulid=%s attempts=%d next=%s error=%s", sidecar.ULID, outbound.Attempts, outbound.NextAttemptAt, sendErr))
		return &DispatchResult{ULID: sidecar.ULID, Outcome: OutcomeRetried}, nil
	}

	outbound.Status = email.OutboundSent
	outbound.LastError = ""
	outbound.NextAttemptAt = ""
	sidecar.StatusShadow = "sent"
	sidecar.Touch()
	sidecar.AddHistory("sent after " + fmt.Sprint(outbound.Attempts) + " attempt(s)")
	p.log.Log(owlog.Minimal, "outbox.sent",
		fmt.Sprintf("ulid=%s attempts=%d", sidecar.ULID, outbound.Attempts))
	if err := p.finishDispatch(sidecar, messagePath, sidecarPath); err != nil {
		return nil, err
	}
	return &DispatchResult{ULID: sidecar.ULID, Outcome: OutcomeSent}, nil
}

// finishDispatch relocates the artifact group into sent/. The sidecar
// moves last: if a crash interleaves, the surviving outbox sidecar
// still reads status_shadow=outbox and the message is re-attempted.
func (p *Pipeline) finishDispatch(sidecar *email.Sidecar, messagePath, sidecarPath string) error {
	sentDir := p.layout.Sent()
	if err := fsatom.MkdirAll(sentDir); err != nil {
		return err
	}

	htmlPath := filepath.Join(filepath.Dir(messagePath), sidecar.Render.HTML)
	if _, err := os.Stat(htmlPath); err == nil {
		if err := os.Rename(htmlPath, filepath.Join(sentDir, sidecar.Render.HTML)); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
	}
	if sidecar.Render.Plain != "" {
		plainPath := filepath.Join(filepath.Dir(messagePath), sidecar.Render.Plain)
		if _, err := os.Stat(plainPath); err == nil {
			if err := os.Rename(plainPath, filepath.Join(sentDir, sidecar.Render.Plain)); err != nil {
				return fmt.Errorf("outbox: %w", err)
			}
		}
	}
	if err := os.Rename(messagePath, filepath.Join(sentDir, sidecar.Filename)); err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	if err := sidecar.Save(filepath.Join(sentDir, filepath.Base(sidecarPath))); err != nil {
		return err
	}
	if err := os.Remove(sidecarPath); err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	return nil
}

// envelopeFor derives the SMTP envelope from the sidecar's cached
// headers. At least one recipient is required.
func envelopeFor(sidecar *email.Sidecar) (Envelope, error) {
	from, err := mail.ParseAddress(sidecar.HeadersCache.From)
	if err != nil {
		return Envelope{}, fmt.Errorf("outbox: envelope from: %w", err)
	}
	var recipients []string
	for _, raw := range append(append([]string{}, sidecar.HeadersCache.To...), sidecar.HeadersCache.Cc...) {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return Envelope{}, fmt.Errorf("outbox: envelope recipient %q: %w", raw, err)
		}
		recipients = append(recipients, addr.Address)
	}
	if len(recipients) == 0 {
		return Envelope{}, fmt.Errorf("outbox: envelope has no recipients")
	}
	return Envelope{From: from.Address, Recipients: recipients}, nil
}

func formatMailboxes(addrs []*mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

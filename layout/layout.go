// Package layout defines the on-disk mail tree and its bootstrap.
//
// Everything the engine persists lives under a single root:
//
//	quarantine/<sender>/<slug> (<ULID>).eml
//	accepted/{.rules, .settings, attachments/, <sender>/...}
//	spam/, banned/        same shape as accepted
//	drafts/ outbox/ sent/ logs/ dkim/
//
// The accepted, spam, and banned lists are governed: each carries a
// .rules and .settings file. Quarantine has neither.
package layout

import (
	"os"
	"path/filepath"

	"owlery.ink/fsatom"
)

// GovernedLists are the lists that carry .rules and .settings.
var GovernedLists = []string{"accepted", "spam", "banned"}

// Layout resolves canonical paths under a mail root.
type Layout struct {
	root string
}

func New(root string) Layout { return Layout{root: root} }

func (l Layout) Root() string       { return l.root }
func (l Layout) Quarantine() string { return filepath.Join(l.root, "quarantine") }
func (l Layout) Accepted() string   { return filepath.Join(l.root, "accepted") }
func (l Layout) Spam() string       { return filepath.Join(l.root, "spam") }
func (l Layout) Banned() string     { return filepath.Join(l.root, "banned") }
func (l Layout) Drafts() string     { return filepath.Join(l.root, "drafts") }
func (l Layout) Outbox() string     { return filepath.Join(l.root, "outbox") }
func (l Layout) Sent() string       { return filepath.Join(l.root, "sent") }
func (l Layout) LogsDir() string    { return filepath.Join(l.root, "logs") }
func (l Layout) LogFile() string    { return filepath.Join(l.LogsDir(), "owl.log") }
func (l Layout) DKIMDir() string    { return filepath.Join(l.root, "dkim") }

// List returns the base directory of a list by name.
func (l Layout) List(name string) string { return filepath.Join(l.root, name) }

// Attachments returns the content-addressed blob directory of a list.
func (l Layout) Attachments(list string) string {
	return filepath.Join(l.root, list, "attachments")
}

func (l Layout) RulesFile(list string) string    { return filepath.Join(l.root, list, ".rules") }
func (l Layout) SettingsFile(list string) string { return filepath.Join(l.root, list, ".settings") }

func (l Layout) DKIMPrivateKey(selector string) string {
	return filepath.Join(l.DKIMDir(), selector+".private")
}

func (l Layout) DKIMPublicKey(selector string) string {
	return filepath.Join(l.DKIMDir(), selector+".public")
}

func (l Layout) DKIMDNSRecord(selector string) string {
	return filepath.Join(l.DKIMDir(), selector+".dns")
}

// Ensure creates the full tree. It is idempotent and never overwrites
// an existing .rules or .settings file.
func (l Layout) Ensure() error {
	if err := fsatom.MkdirAll(l.root); err != nil {
		return err
	}
	if err := fsatom.MkdirAll(l.Quarantine()); err != nil {
		return err
	}
	for _, list := range GovernedLists {
		if err := l.ensureList(list); err != nil {
			return err
		}
	}
	for _, leaf := range []string{"drafts", "outbox", "sent", "logs", "dkim"} {
		if err := fsatom.MkdirAll(filepath.Join(l.root, leaf)); err != nil {
			return err
		}
	}
	return nil
}

func (l Layout) ensureList(list string) error {
	dir := l.List(list)
	if err := fsatom.MkdirAll(dir); err != nil {
		return err
	}
	if err := fsatom.MkdirAll(l.Attachments(list)); err != nil {
		return err
	}
	rules := l.RulesFile(list)
	if _, err := os.Stat(rules); os.IsNotExist(err) {
		if err := fsatom.WriteFile(rules, []byte("# owl routing rules\n")); err != nil {
			return err
		}
	}
	settings := l.SettingsFile(list)
	if _, err := os.Stat(settings); os.IsNotExist(err) {
		if err := fsatom.WriteFile(settings, defaultSettings(list)); err != nil {
			return err
		}
	}
	return nil
}

func defaultSettings(list string) []byte {
	status := "accepted"
	switch list {
	case "spam":
		status = "rejected"
	case "banned":
		status = "banned"
	}
	return []byte("list_status=" + status +
		"\ndelete_after=never\nfrom=\nreply_to=\nsignature=\nbody_format=both\ncollapse_signatures=true\n")
}

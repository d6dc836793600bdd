package rules

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoadedList pairs one governed list's ruleset with its settings.
type LoadedList struct {
	Rules    RuleSet
	Settings ListSettings
}

// LoadedRules is the route input: the three governed lists. Quarantine
// has neither rules nor settings.
type LoadedRules struct {
	Accepted LoadedList
	Spam     LoadedList
	Banned   LoadedList
}

// DefaultLoadedRules returns empty rulesets with per-list default
// settings, the state of a freshly bootstrapped tree.
func DefaultLoadedRules() LoadedRules {
	return LoadedRules{
		Accepted: LoadedList{Settings: DefaultSettingsFor("accepted")},
		Spam:     LoadedList{Settings: DefaultSettingsFor("spam")},
		Banned:   LoadedList{Settings: DefaultSettingsFor("banned")},
	}
}

// Loader reads rules and settings from the mail tree. Files are read
// fresh on every Load; the daemon tolerates edits in flight.
type Loader struct {
	root string
}

func NewLoader(root string) Loader { return Loader{root: root} }

// Load reads the three governed lists. A missing .rules or .settings
// file falls back to the list's defaults.
func (l Loader) Load() (LoadedRules, error) {
	accepted, err := l.loadList("accepted")
	if err != nil {
		return LoadedRules{}, err
	}
	spam, err := l.loadList("spam")
	if err != nil {
		return LoadedRules{}, err
	}
	banned, err := l.loadList("banned")
	if err != nil {
		return LoadedRules{}, err
	}
	return LoadedRules{Accepted: accepted, Spam: spam, Banned: banned}, nil
}

func (l Loader) loadList(name string) (LoadedList, error) {
	dir := filepath.Join(l.root, name)
	list := LoadedList{Settings: DefaultSettingsFor(name)}

	data, err := os.ReadFile(filepath.Join(dir, ".rules"))
	switch {
	case err == nil:
		list.Rules, err = ParseRuleSet(string(data))
		if err != nil {
			return LoadedList{}, fmt.Errorf("rules: %s: %w", name, err)
		}
	case !os.IsNotExist(err):
		return LoadedList{}, fmt.Errorf("rules: %w", err)
	}

	data, err = os.ReadFile(filepath.Join(dir, ".settings"))
	switch {
	case err == nil:
		list.Settings, err = ParseSettings(string(data))
		if err != nil {
			return LoadedList{}, fmt.Errorf("rules: %s: %w", name, err)
		}
	case !os.IsNotExist(err):
		return LoadedList{}, fmt.Errorf("rules: %w", err)
	}

	return list, nil
}

package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ListSettings govern one list's behavior. Optional string fields are
// empty when unset.
type ListSettings struct {
	ListStatus         string
	DeleteAfter        string
	From               string
	ReplyTo            string
	Signature          string
	BodyFormat         string
	CollapseSignatures bool
}

// DefaultSettings returns the neutral settings record.
func DefaultSettings() ListSettings {
	return ListSettings{
		ListStatus:         "accepted",
		DeleteAfter:        "never",
		BodyFormat:         "both",
		CollapseSignatures: true,
	}
}

// DefaultSettingsFor returns the per-list defaults: spam is rejected,
// banned is banned, everything else accepted.
func DefaultSettingsFor(list string) ListSettings {
	s := DefaultSettings()
	switch list {
	case "spam":
		s.ListStatus = "rejected"
	case "banned":
		s.ListStatus = "banned"
	}
	return s
}

// ParseSettings parses a .settings file body: key=value lines, #
// comments and blanks skipped, unknown keys rejected.
func ParseSettings(data string) (ListSettings, error) {
	s := DefaultSettings()
	for i, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return ListSettings{}, fmt.Errorf("rules: invalid settings line %d", i+1)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "list_status":
			s.ListStatus = value
		case "delete_after":
			s.DeleteAfter = value
		case "from":
			s.From = value
		case "reply_to":
			s.ReplyTo = value
		case "signature":
			s.Signature = value
		case "body_format":
			s.BodyFormat = value
		case "collapse_signatures":
			s.CollapseSignatures = Truthy(value)
		default:
			return ListSettings{}, fmt.Errorf("rules: unknown settings key %q", key)
		}
	}
	return s, nil
}

// Truthy reports whether a settings value means true.
func Truthy(value string) bool {
	switch value {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ParseDeleteAfter parses a retention policy into a duration. The
// grammar is Nd, Nm (months of 30 days), or Ny (years of 365 days);
// "never" and anything unparseable report ok=false.
func ParseDeleteAfter(value string) (time.Duration, bool) {
	v := strings.TrimSpace(value)
	if v == "never" || len(v) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(v[:len(v)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	day := 24 * time.Hour
	switch v[len(v)-1] {
	case 'd':
		return time.Duration(n) * day, true
	case 'm':
		return time.Duration(n) * 30 * day, true
	case 'y':
		return time.Duration(n) * 365 * day, true
	}
	return 0, false
}

// RetentionDue reports whether a message whose last activity was at
// last is past the policy's horizon at now.
func RetentionDue(last time.Time, policy string, now time.Time) bool {
	d, ok := ParseDeleteAfter(policy)
	if !ok {
		return false
	}
	return last.Add(d).Before(now)
}

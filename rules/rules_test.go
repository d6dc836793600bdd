package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"owlery.ink/email"
)

func addr(t *testing.T, raw string) email.Address {
	t.Helper()
	a, err := email.ParseAddress(raw, false)
	require.NoError(t, err)
	return a
}

func TestParseRuleFlavors(t *testing.T) {
	tests := []struct {
		line    string
		matches []string
		misses  []string
	}{
		{
			line:    "carol@example.org",
			matches: []string{"carol@example.org", "Carol@EXAMPLE.org"},
			misses:  []string{"bob@example.org"},
		},
		{
			line:    "@example.org",
			matches: []string{"a@example.org", "a@mail.example.org"},
			misses:  []string{"a@example.com"},
		},
		{
			line:    "@.Example.Org",
			matches: []string{"user@example.org"},
			misses:  []string{"user@example.net"},
		},
		{
			line:    "@=example.org",
			matches: []string{"bob@example.org"},
			misses:  []string{"bob@mail.example.org"},
		},
		{
			line:    "/foo/",
			matches: []string{"foo@example.org", "xfoox@example.org"},
			misses:  []string{"bar@example.org"},
		},
		{
			line:    `/^admin@.*\.test$/`,
			matches: []string{"admin@corp.test"},
			misses:  []string{"admin@corp.example", "xadmin@corp.test"},
		},
	}
	for _, tt := range tests {
		rule, err := ParseRule(tt.line)
		require.NoError(t, err, tt.line)
		for _, m := range tt.matches {
			require.True(t, rule.Matches(addr(t, m)), "%s should match %s", tt.line, m)
		}
		for _, m := range tt.misses {
			require.False(t, rule.Matches(addr(t, m)), "%s should not match %s", tt.line, m)
		}
	}
}

func TestParseRuleRejects(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment", "no-at-sign", "/unclosed"} {
		_, err := ParseRule(line)
		require.Error(t, err, line)
	}
}

func TestParseRuleInvalidRegex(t *testing.T) {
	_, err := ParseRule("/[/")
	require.Error(t, err)
}

func TestRuleSetFirstMatchWins(t *testing.T) {
	set, err := ParseRuleSet("@example.org\ncarol@example.org\n")
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	matched, ok := set.Evaluate(addr(t, "carol@example.org"))
	require.True(t, ok)
	// The suffix rule appears first, so it wins.
	require.Equal(t, ruleDomainSuffix, matched.kind)
}

func TestRuleSetSkipsCommentsAndBlanks(t *testing.T) {
	set, err := ParseRuleSet("# banned senders\n\n@spam.test\n")
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
}

func TestRuleSetBadLineErrors(t *testing.T) {
	_, err := ParseRuleSet("@ok.org\nbogus\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestEvaluatePrecedence(t *testing.T) {
	accepted, err := ParseRuleSet("@example.com")
	require.NoError(t, err)
	spam, err := ParseRuleSet("foo@example.com")
	require.NoError(t, err)
	banned, err := ParseRuleSet("@example.com")
	require.NoError(t, err)

	// All three match; banned wins.
	require.Equal(t, RouteBanned, Evaluate(addr(t, "foo@example.com"), accepted, spam, banned))

	// Only spam and accepted match; spam wins.
	require.Equal(t, RouteSpam, Evaluate(addr(t, "foo@example.com"), accepted, spam, RuleSet{}))

	// Only accepted matches.
	require.Equal(t, RouteAccepted, Evaluate(addr(t, "bar@example.com"), accepted, RuleSet{}, RuleSet{}))

	// Nothing matches.
	require.Equal(t, RouteQuarantine, Evaluate(addr(t, "x@other.org"), RuleSet{}, RuleSet{}, RuleSet{}))
}

func TestDetermineRouteStatusRemap(t *testing.T) {
	loaded := DefaultLoadedRules()
	var err error
	loaded.Spam.Rules, err = ParseRuleSet("@spam.test")
	require.NoError(t, err)

	route, err := DetermineRoute(addr(t, "x@spam.test"), loaded)
	require.NoError(t, err)
	require.Equal(t, RouteSpam, route)

	loaded.Spam.Settings.ListStatus = "accepted"
	route, err = DetermineRoute(addr(t, "x@spam.test"), loaded)
	require.NoError(t, err)
	require.Equal(t, RouteAccepted, route)
}

func TestDetermineRouteUnknownStatus(t *testing.T) {
	loaded := DefaultLoadedRules()
	var err error
	loaded.Accepted.Rules, err = ParseRuleSet("@example.com")
	require.NoError(t, err)
	loaded.Accepted.Settings.ListStatus = "unknown"

	_, err = DetermineRoute(addr(t, "x@example.com"), loaded)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown list_status")
}

func TestDetermineRouteQuarantineHasNoSettings(t *testing.T) {
	route, err := DetermineRoute(addr(t, "nobody@unknown.invalid"), DefaultLoadedRules())
	require.NoError(t, err)
	require.Equal(t, RouteQuarantine, route)
}

func TestRouteString(t *testing.T) {
	require.Equal(t, "banned", RouteBanned.String())
	require.Equal(t, "spam", RouteSpam.String())
	require.Equal(t, "accepted", RouteAccepted.String())
	require.Equal(t, "quarantine", RouteQuarantine.String())
}

// Package rules implements the per-list classification machinery:
// rule parsing and matching, list settings, the directory-backed
// loader, and route evaluation with status remapping.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"owlery.ink/email"
)

type ruleKind int

const (
	ruleExactAddress ruleKind = iota
	ruleDomainSuffix
	ruleDomainExact
	ruleRegex
)

// Rule is a single classification rule. The four flavors are
// distinguished by a kind tag rather than an interface hierarchy.
type Rule struct {
	kind  ruleKind
	value string
}

// ParseRule parses one rule line:
//
//	carol@example.org   exact address
//	@example.org        domain suffix (subdomains match)
//	@=example.org       domain exact
//	/pattern/           regex against the canonical address
func ParseRule(line string) (Rule, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Rule{}, fmt.Errorf("rules: empty rule")
	}
	if strings.HasPrefix(trimmed, "/") && strings.HasSuffix(trimmed, "/") && len(trimmed) >= 2 {
		body := trimmed[1 : len(trimmed)-1]
		if _, err := regexp.Compile(body); err != nil {
			return Rule{}, fmt.Errorf("rules: invalid regex: %w", err)
		}
		return Rule{kind: ruleRegex, value: body}, nil
	}
	if rest, ok := strings.CutPrefix(trimmed, "@"); ok {
		if domain, ok := strings.CutPrefix(rest, "="); ok {
			return Rule{kind: ruleDomainExact, value: strings.ToLower(domain)}, nil
		}
		return Rule{kind: ruleDomainSuffix, value: strings.ToLower(rest)}, nil
	}
	if strings.Contains(trimmed, "@") {
		return Rule{kind: ruleExactAddress, value: strings.ToLower(trimmed)}, nil
	}
	return Rule{}, fmt.Errorf("rules: unsupported rule: %q", trimmed)
}

// Matches reports whether the rule matches the canonical address.
func (r Rule) Matches(addr email.Address) bool {
	switch r.kind {
	case ruleExactAddress:
		return addr.Canonical() == r.value
	case ruleDomainSuffix:
		return strings.HasSuffix(addr.Domain(), strings.TrimPrefix(r.value, "."))
	case ruleDomainExact:
		return addr.Domain() == r.value
	case ruleRegex:
		re, err := regexp.Compile(r.value)
		if err != nil {
			// An invalid pattern never matches.
			return false
		}
		return re.MatchString(addr.Canonical())
	}
	return false
}

// RuleSet is an ordered rule sequence; the first match wins.
type RuleSet struct {
	rules []Rule
}

// ParseRuleSet parses a .rules file body. Blank lines and # comments
// are ignored; any other unparseable line is an error.
func ParseRuleSet(data string) (RuleSet, error) {
	var set RuleSet
	for i, line := range strings.Split(data, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		rule, err := ParseRule(trimmed)
		if err != nil {
			return RuleSet{}, fmt.Errorf("rules: line %d: %w", i+1, err)
		}
		set.rules = append(set.rules, rule)
	}
	return set, nil
}

// Evaluate returns the first matching rule, if any.
func (s RuleSet) Evaluate(addr email.Address) (Rule, bool) {
	for _, rule := range s.rules {
		if rule.Matches(addr) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Len reports the number of rules in the set.
func (s RuleSet) Len() int { return len(s.rules) }

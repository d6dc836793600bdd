package rules

import (
	"fmt"

	"owlery.ink/email"
)

// Route is a terminal message disposition. It doubles as the target
// list name for inbound delivery.
type Route int

const (
	RouteBanned Route = iota
	RouteSpam
	RouteAccepted
	RouteQuarantine
)

func (r Route) String() string {
	switch r {
	case RouteBanned:
		return "banned"
	case RouteSpam:
		return "spam"
	case RouteAccepted:
		return "accepted"
	case RouteQuarantine:
		return "quarantine"
	}
	return "unknown"
}

// Evaluate classifies an address against the three rulesets with
// fixed precedence: banned, then spam, then accepted. No match means
// quarantine.
func Evaluate(addr email.Address, accepted, spam, banned RuleSet) Route {
	if _, ok := banned.Evaluate(addr); ok {
		return RouteBanned
	}
	if _, ok := spam.Evaluate(addr); ok {
		return RouteSpam
	}
	if _, ok := accepted.Evaluate(addr); ok {
		return RouteAccepted
	}
	return RouteQuarantine
}

// DetermineRoute evaluates the rulesets and then remaps the result
// through the matching list's list_status, so an operator can e.g.
// promote a spam-listed sender by setting list_status=accepted.
func DetermineRoute(sender email.Address, loaded LoadedRules) (Route, error) {
	route := Evaluate(sender, loaded.Accepted.Rules, loaded.Spam.Rules, loaded.Banned.Rules)
	switch route {
	case RouteAccepted:
		return mapStatus(loaded.Accepted.Settings.ListStatus)
	case RouteSpam:
		return mapStatus(loaded.Spam.Settings.ListStatus)
	case RouteBanned:
		return mapStatus(loaded.Banned.Settings.ListStatus)
	}
	return RouteQuarantine, nil
}

func mapStatus(status string) (Route, error) {
	switch status {
	case "accepted":
		return RouteAccepted, nil
	case "rejected":
		return RouteSpam, nil
	case "banned":
		return RouteBanned, nil
	}
	return RouteQuarantine, fmt.Errorf("rules: unknown list_status: %q", status)
}

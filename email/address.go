// Package email is a light-weight set of types fundamental to the
// mail tree: canonical addresses, artifact filenames, and the YAML
// sidecar that records per-message metadata.
package email

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// Address is a normalized mailbox address.
//
// The canonical form is local@domain with the local part ASCII
// lowercased (plus-tags stripped unless configured otherwise) and the
// domain converted to lowercase IDNA ASCII. Canonicalization is
// idempotent: re-parsing a canonical address yields itself.
type Address struct {
	original  string
	local     string
	domain    string
	canonical string
}

// ParseAddress normalizes input into an Address. It fails when the
// input has no @ or the domain does not survive IDNA conversion.
func ParseAddress(input string, keepPlusTags bool) (Address, error) {
	cleaned := strings.TrimSpace(input)
	localRaw, domainRaw, ok := strings.Cut(cleaned, "@")
	if !ok {
		return Address{}, fmt.Errorf("email: missing @ in address: %q", input)
	}
	local := strings.ToLower(strings.TrimSpace(localRaw))
	if !keepPlusTags {
		if base, _, found := strings.Cut(local, "+"); found {
			local = base
		}
	}
	domainLower := strings.ToLower(strings.TrimSpace(domainRaw))
	domain, err := idna.ToASCII(domainLower)
	if err != nil {
		return Address{}, fmt.Errorf("email: idna conversion of %q: %w", domainRaw, err)
	}
	return Address{
		original:  cleaned,
		local:     local,
		domain:    domain,
		canonical: local + "@" + domain,
	}, nil
}

// Canonical returns the normalized local@domain form.
func (a Address) Canonical() string { return a.canonical }

// Local returns the normalized local part.
func (a Address) Local() string { return a.local }

// Domain returns the IDNA-ASCII domain.
func (a Address) Domain() string { return a.domain }

func (a Address) String() string { return a.canonical }

// Package dkim implements DKIM message signing with ed25519 keys.
//
// Keys live as files under the mail tree's dkim directory: a PKCS#8
// private key, a base64 public key, and the DNS TXT record value the
// operator publishes at <selector>._domainkey.<domain>.
package dkim

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"owlery.ink/fsatom"
)

// SignedHeaders is the header set covered by outbound signatures,
// in signing order.
var SignedHeaders = []string{"from", "to", "subject", "date", "mime-version", "content-type"}

// Material locates the on-disk key files for one selector.
type Material struct {
	Selector       string
	PrivateKeyPath string
	PublicKeyPath  string
	DNSRecordPath  string
	PublicKeyB64   string
}

// EnsureKeypair creates an ed25519 keypair for selector under dir if
// one does not exist, and keeps the .dns record in sync with the
// public key. A pair whose .private and .public files both exist is
// never regenerated; if either file is missing, a fresh pair replaces
// both.
func EnsureKeypair(dir, selector string) (Material, error) {
	if err := fsatom.MkdirAll(dir); err != nil {
		return Material{}, err
	}
	m := Material{
		Selector:       selector,
		PrivateKeyPath: filepath.Join(dir, selector+".private"),
		PublicKeyPath:  filepath.Join(dir, selector+".public"),
		DNSRecordPath:  filepath.Join(dir, selector+".dns"),
	}

	generated := false
	if !exists(m.PrivateKeyPath) || !exists(m.PublicKeyPath) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return Material{}, fmt.Errorf("dkim: generate keypair: %w", err)
		}
		pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return Material{}, fmt.Errorf("dkim: encode private key: %w", err)
		}
		if err := fsatom.WriteFile(m.PrivateKeyPath, pkcs8); err != nil {
			return Material{}, err
		}
		if err := os.Chmod(m.PrivateKeyPath, 0o600); err != nil {
			return Material{}, fmt.Errorf("dkim: chmod private key: %w", err)
		}
		pubB64 := base64.StdEncoding.EncodeToString(pub)
		if err := fsatom.WriteFile(m.PublicKeyPath, []byte(pubB64)); err != nil {
			return Material{}, err
		}
		generated = true
	}

	pubData, err := fsatom.ReadString(m.PublicKeyPath)
	if err != nil {
		return Material{}, err
	}
	m.PublicKeyB64 = strings.TrimSpace(pubData)

	dnsValue := "v=DKIM1; k=ed25519; p=" + m.PublicKeyB64
	refresh := generated || !exists(m.DNSRecordPath)
	if !refresh {
		existing, err := fsatom.ReadString(m.DNSRecordPath)
		if err != nil {
			return Material{}, err
		}
		refresh = strings.TrimSpace(existing) != dnsValue
	}
	if refresh {
		if err := fsatom.WriteFile(m.DNSRecordPath, []byte(dnsValue)); err != nil {
			return Material{}, err
		}
	}
	return m, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// A Signer signs message bodies and header sets for one selector.
type Signer struct {
	selector string
	key      ed25519.PrivateKey
}

// NewSigner loads the private key referenced by m.
func NewSigner(m Material) (*Signer, error) {
	pkcs8, err := os.ReadFile(m.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("dkim: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(pkcs8)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("dkim: private key is not ed25519")
	}
	return &Signer{selector: m.Selector, key: key}, nil
}

// Sign computes a DKIM-Signature header value over body and the named
// headers extracted from headersRaw. Canonicalization is
// simple/simple. The returned value does not include the
// "DKIM-Signature:" field name.
func (s *Signer) Sign(domain, headersRaw string, body []byte, headerNames []string) (string, error) {
	signed := make([]string, 0, len(headerNames))
	for _, name := range headerNames {
		h, ok := ExtractHeader(headersRaw, name)
		if !ok {
			return "", fmt.Errorf("dkim: header %s missing for signing", name)
		}
		signed = append(signed, h)
	}

	bodyHash := sha256.Sum256(CanonicalizeBody(body))
	bh := base64.StdEncoding.EncodeToString(bodyHash[:])

	value := fmt.Sprintf("v=1; a=ed25519-sha256; d=%s; s=%s; c=simple/simple; q=dns/txt; t=%d; h=%s; bh=%s; b=",
		domain, s.selector, time.Now().Unix(), strings.Join(headerNames, ":"), bh)

	var toSign strings.Builder
	for _, h := range signed {
		toSign.WriteString(h)
	}
	toSign.WriteString("DKIM-Signature: ")
	toSign.WriteString(value)
	toSign.WriteString("\r\n")

	sig := ed25519.Sign(s.key, []byte(toSign.String()))
	return value + base64.StdEncoding.EncodeToString(sig), nil
}

// ExtractHeader returns the named header from a raw CRLF header block,
// preserving folding. The match is case-insensitive.
func ExtractHeader(headersRaw, name string) (string, bool) {
	target := strings.ToLower(name)
	var collected strings.Builder
	capture := false
	for _, line := range splitInclusive(headersRaw) {
		if line == "\r\n" {
			break
		}
		trimmed := strings.TrimSuffix(line, "\r\n")
		if trimmed == "" {
			if capture {
				break
			}
			continue
		}
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if capture {
				collected.WriteString(line)
			}
			continue
		}
		field, _, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(field, target) {
			collected.Reset()
			collected.WriteString(line)
			capture = true
		} else if capture {
			break
		}
	}
	if capture && collected.Len() > 0 {
		return collected.String(), true
	}
	return "", false
}

// splitInclusive splits s after each CRLF, keeping the terminator.
func splitInclusive(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.Index(s, "\r\n")
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+2])
		s = s[i+2:]
	}
	return lines
}

// CanonicalizeBody applies DKIM simple body canonicalization: trailing
// CRLF runs collapse to a single CRLF, and an empty body becomes one
// CRLF.
func CanonicalizeBody(body []byte) []byte {
	if len(body) == 0 {
		return []byte("\r\n")
	}
	end := len(body)
	for end >= 2 && body[end-2] == '\r' && body[end-1] == '\n' {
		end -= 2
	}
	canonical := make([]byte, end, end+2)
	copy(canonical, body[:end])
	return append(canonical, '\r', '\n')
}

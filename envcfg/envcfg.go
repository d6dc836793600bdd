// Package envcfg loads the engine's environment configuration from a
// key=value .env file.
package envcfg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the engine configuration record. Every field has a
// default; an empty file is a valid configuration.
type Config struct {
	DmarcPolicy            string
	DKIMSelector           string
	LetsencryptMethod      string
	KeepPlusTags           bool
	MaxSizeQuarantine      string
	MaxSizeApprovedDefault string
	ContactsDir            string
	Logging                string
	RenderMode             string
	LoadExternalPerMessage bool
	RetryBackoff           []string
	SMTPHost               string
	SMTPPort               uint16
	SMTPUsername           string
	SMTPPassword           string
	SMTPStartTLS           bool
}

// Default returns the configuration used when no .env file exists.
func Default() Config {
	return Config{
		DmarcPolicy:            "none",
		DKIMSelector:           "mail",
		LetsencryptMethod:      "http",
		KeepPlusTags:           false,
		MaxSizeQuarantine:      "25M",
		MaxSizeApprovedDefault: "50M",
		ContactsDir:            "/home/pi/contacts",
		Logging:                "minimal",
		RenderMode:             "strict",
		LoadExternalPerMessage: true,
		RetryBackoff:           []string{"1m", "5m", "15m", "1h"},
		SMTPHost:               "127.0.0.1",
		SMTPPort:               25,
		SMTPStartTLS:           true,
	}
}

// Load reads and parses the .env file at path.
func Load(path string) (Config, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("envcfg: %w", err)
	}
	return fromMap(vars), nil
}

// Parse parses .env file contents.
func Parse(data string) (Config, error) {
	vars, err := godotenv.Unmarshal(data)
	if err != nil {
		return Config{}, fmt.Errorf("envcfg: %w", err)
	}
	return fromMap(vars), nil
}

func fromMap(vars map[string]string) Config {
	m := make(map[string]string, len(vars))
	for k, v := range vars {
		m[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	cfg := Default()
	str := func(key string, dst *string) {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := m[key]; ok {
			*dst = truthy(v)
		}
	}
	str("dmarc_policy", &cfg.DmarcPolicy)
	str("dkim_selector", &cfg.DKIMSelector)
	str("letsencrypt_method", &cfg.LetsencryptMethod)
	boolean("keep_plus_tags", &cfg.KeepPlusTags)
	str("max_size_quarantine", &cfg.MaxSizeQuarantine)
	str("max_size_approved_default", &cfg.MaxSizeApprovedDefault)
	str("contacts_dir", &cfg.ContactsDir)
	str("logging", &cfg.Logging)
	str("render_mode", &cfg.RenderMode)
	boolean("load_external_per_message", &cfg.LoadExternalPerMessage)
	if v, ok := m["retry_backoff"]; ok {
		var entries []string
		for _, entry := range strings.Split(v, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				entries = append(entries, entry)
			}
		}
		if len(entries) > 0 {
			cfg.RetryBackoff = entries
		}
	}
	str("smtp_host", &cfg.SMTPHost)
	if v, ok := m["smtp_port"]; ok {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.SMTPPort = uint16(port)
		}
	}
	str("smtp_username", &cfg.SMTPUsername)
	str("smtp_password", &cfg.SMTPPassword)
	boolean("smtp_starttls", &cfg.SMTPStartTLS)
	return cfg
}

func truthy(value string) bool {
	switch value {
	case "true", "1", "yes":
		return true
	}
	return false
}

// String renders the canonical .env text for this configuration,
// used by the install command to seed a new tree.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dmarc_policy=%s\n", c.DmarcPolicy)
	fmt.Fprintf(&b, "dkim_selector=%s\n", c.DKIMSelector)
	fmt.Fprintf(&b, "letsencrypt_method=%s\n", c.LetsencryptMethod)
	fmt.Fprintf(&b, "keep_plus_tags=%t\n", c.KeepPlusTags)
	fmt.Fprintf(&b, "max_size_quarantine=%s\n", c.MaxSizeQuarantine)
	fmt.Fprintf(&b, "max_size_approved_default=%s\n", c.MaxSizeApprovedDefault)
	fmt.Fprintf(&b, "contacts_dir=%s\n", c.ContactsDir)
	fmt.Fprintf(&b, "logging=%s\n", c.Logging)
	fmt.Fprintf(&b, "render_mode=%s\n", c.RenderMode)
	fmt.Fprintf(&b, "load_external_per_message=%t\n", c.LoadExternalPerMessage)
	fmt.Fprintf(&b, "retry_backoff=%s\n", strings.Join(c.RetryBackoff, ","))
	fmt.Fprintf(&b, "smtp_host=%s\n", c.SMTPHost)
	fmt.Fprintf(&b, "smtp_port=%d\n", c.SMTPPort)
	fmt.Fprintf(&b, "smtp_starttls=%t\n", c.SMTPStartTLS)
	return b.String()
}

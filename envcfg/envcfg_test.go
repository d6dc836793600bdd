package envcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "mail", cfg.DKIMSelector)
	require.Equal(t, []string{"1m", "5m", "15m", "1h"}, cfg.RetryBackoff)
	require.Equal(t, uint16(25), cfg.SMTPPort)
	require.True(t, cfg.SMTPStartTLS)
	require.False(t, cfg.KeepPlusTags)
	require.Equal(t, "25M", cfg.MaxSizeQuarantine)
	require.Equal(t, "50M", cfg.MaxSizeApprovedDefault)
	require.Equal(t, "minimal", cfg.Logging)
	require.Equal(t, "strict", cfg.RenderMode)
}

func TestParseIgnoresCommentsAndBlanks(t *testing.T) {
	cfg, err := Parse("# comment\n\nlogging=verbose_full\n")
	require.NoError(t, err)
	require.Equal(t, "verbose_full", cfg.Logging)
}

func TestParseCustomValues(t *testing.T) {
	cfg, err := Parse("keep_plus_tags=true\nretry_backoff=1m,2m\nsmtp_port=2525\nsmtp_host=smtp.example.org\nsmtp_username=alice\nsmtp_password=secret\nsmtp_starttls=false\n")
	require.NoError(t, err)
	require.True(t, cfg.KeepPlusTags)
	require.Equal(t, []string{"1m", "2m"}, cfg.RetryBackoff)
	require.Equal(t, uint16(2525), cfg.SMTPPort)
	require.Equal(t, "smtp.example.org", cfg.SMTPHost)
	require.Equal(t, "alice", cfg.SMTPUsername)
	require.Equal(t, "secret", cfg.SMTPPassword)
	require.False(t, cfg.SMTPStartTLS)
}

func TestParseUppercaseKeys(t *testing.T) {
	cfg, err := Parse("LOGGING=off\n")
	require.NoError(t, err)
	require.Equal(t, "off", cfg.Logging)
}

func TestParseEmptyRetryBackoffKeepsDefault(t *testing.T) {
	cfg, err := Parse("retry_backoff=\n")
	require.NoError(t, err)
	require.Equal(t, []string{"1m", "5m", "15m", "1h"}, cfg.RetryBackoff)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("render_mode=moderate\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "moderate", cfg.RenderMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
}

func TestStringRoundtrip(t *testing.T) {
	cfg := Default()
	cfg.Logging = "verbose_sanitized"
	cfg.RetryBackoff = []string{"2m", "10m"}

	parsed, err := Parse(cfg.String())
	require.NoError(t, err)
	require.Equal(t, cfg.Logging, parsed.Logging)
	require.Equal(t, cfg.RetryBackoff, parsed.RetryBackoff)
	require.Equal(t, cfg.SMTPPort, parsed.SMTPPort)
}

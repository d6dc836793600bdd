package email

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSidecarRoundtrip(t *testing.T) {
	headers := HeadersCache{
		From:    "alice@example.org",
		To:      []string{"Bob <bob@example.org>"},
		Subject: "Hello",
		Date:    Now(),
	}
	s := NewSidecar("01ABC", "Hello (01ABC).eml", "accepted", "strict", ".Hello (01ABC).html", "deadbeef", headers)
	s.AddAttachment("aa", "file.pdf")
	s.Render.Plain = ".Hello (01ABC).txt"
	s.MarkRead()
	s.AddHistory("delivered to accepted")

	path := filepath.Join(t.TempDir(), ".Hello (01ABC).yml")
	require.NoError(t, s.Save(path))

	parsed, err := LoadSidecar(path)
	require.NoError(t, err)
	require.Equal(t, SidecarSchema, parsed.Schema)
	require.Equal(t, "01ABC", parsed.ULID)
	require.Equal(t, "accepted", parsed.StatusShadow)
	require.True(t, parsed.Read)
	require.Len(t, parsed.Attachments, 1)
	require.Equal(t, "aa", parsed.Attachments[0].SHA256)
	require.Equal(t, ".Hello (01ABC).txt", parsed.Render.Plain)
	require.Len(t, parsed.History, 1)
	require.Nil(t, parsed.Outbound)
	require.Nil(t, parsed.Rspamd)
}

func TestSidecarOutboundState(t *testing.T) {
	s := NewSidecar("01ABC", "01ABC.eml", "outbox", "strict", ".01ABC.html", "hash", HeadersCache{})
	out := s.EnsureOutbound()
	require.Equal(t, OutboundPending, out.Status)
	require.Zero(t, out.Attempts)
	// EnsureOutbound returns the same state on the second call.
	out.Attempts = 2
	require.Equal(t, 2, s.EnsureOutbound().Attempts)

	path := filepath.Join(t.TempDir(), ".01ABC.yml")
	require.NoError(t, s.Save(path))
	parsed, err := LoadSidecar(path)
	require.NoError(t, err)
	require.NotNil(t, parsed.Outbound)
	require.Equal(t, 2, parsed.Outbound.Attempts)
}

func TestSidecarTimestampsAreRFC3339UTC(t *testing.T) {
	s := NewSidecar("01ABC", "f.eml", "spam", "strict", ".f.html", "h", HeadersCache{})
	ts, err := time.Parse(time.RFC3339, s.ReceivedAt)
	require.NoError(t, err)
	_, offset := ts.Zone()
	require.Zero(t, offset)
}

func TestLoadSidecarMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("::not yaml::\n\tbroken"), 0o644))
	_, err := LoadSidecar(path)
	require.Error(t, err)
}

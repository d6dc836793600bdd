package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"owlery.ink/envcfg"
	"owlery.ink/layout"
	"owlery.ink/outbox"
	"owlery.ink/owlog"
)

type countingTransport struct {
	mu    sync.Mutex
	sends int
}

func (c *countingTransport) Send(msg []byte, env outbox.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	return nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func newDaemonFixture(t *testing.T) (layout.Layout, envcfg.Config, *owlog.Logger) {
	t.Helper()
	lay := layout.New(filepath.Join(t.TempDir(), "mail"))
	require.NoError(t, lay.Ensure())
	cfg := envcfg.Default()
	log, err := owlog.New(lay.Root(), owlog.Minimal)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return lay, cfg, log
}

func queueDraft(t *testing.T, lay layout.Layout, cfg envcfg.Config, log *owlog.Logger, transport outbox.Transport) string {
	t.Helper()
	id := ulid.Make().String()
	draft := filepath.Join(lay.Drafts(), id+".md")
	require.NoError(t, os.WriteFile(draft, []byte("---\nsubject: Hi\nfrom: Owl <owl@example.org>\nto:\n  - Bob <bob@example.org>\n---\nHello!\n"), 0o644))
	p := outbox.NewWithTransport(lay, cfg, log, transport)
	_, err := p.QueueDraft(draft)
	require.NoError(t, err)
	return id
}

func TestStartDispatchesQueuedMail(t *testing.T) {
	lay, cfg, log := newDaemonFixture(t)
	transport := &countingTransport{}
	id := queueDraft(t, lay, cfg, log, transport)

	d, err := StartWithTransport(lay, cfg, log, transport)
	require.NoError(t, err)
	defer d.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if transport.count() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, 1, transport.count())
	require.FileExists(t, filepath.Join(lay.Sent(), id+".eml"))
}

func TestWatcherTriggersDispatchOnOutboxChange(t *testing.T) {
	lay, cfg, log := newDaemonFixture(t)
	transport := &countingTransport{}

	d, err := StartWithTransport(lay, cfg, log, transport)
	require.NoError(t, err)
	defer d.Stop()

	// Queue after startup; only the watcher can pick this up.
	id := queueDraft(t, lay, cfg, log, transport)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if transport.count() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.GreaterOrEqual(t, transport.count(), 1)
	require.FileExists(t, filepath.Join(lay.Sent(), id+".eml"))

	entries, err := os.ReadDir(lay.Outbox())
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".eml"))
	}
}

func TestQuarantineEventsAreLogged(t *testing.T) {
	lay, cfg, log := newDaemonFixture(t)
	d, err := StartWithTransport(lay, cfg, log, &countingTransport{})
	require.NoError(t, err)
	defer d.Stop()

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(lay.Quarantine(), "stray"), []byte("x"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := owlog.LoadEntries(lay.LogFile())
		for _, e := range entries {
			if e.Message == "daemon.quarantine" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.Fail(t, "daemon.quarantine event not logged")
}

func TestStopIsBounded(t *testing.T) {
	lay, cfg, log := newDaemonFixture(t)
	d, err := StartWithTransport(lay, cfg, log, &countingTransport{})
	require.NoError(t, err)

	start := time.Now()
	d.Stop()
	require.Less(t, time.Since(start), 3*time.Second)

	// Stop is idempotent.
	d.Stop()
}

// Package daemon composes the long-running engine: an initial outbox
// sweep, the filesystem watcher driving dispatch, and a periodic
// retention loop.
package daemon

import (
	"sync"
	"time"

	"owlery.ink/envcfg"
	"owlery.ink/layout"
	"owlery.ink/outbox"
	"owlery.ink/owlog"
	"owlery.ink/reconcile"
	"owlery.ink/rules"
	"owlery.ink/watch"
)

const retentionInterval = 60 * time.Second

// Daemon is a running engine instance. Stop shuts it down within
// about a second.
type Daemon struct {
	shutdown      chan struct{}
	stopOnce      sync.Once
	watch         *watch.Service
	retentionDone chan struct{}
}

// Start launches the daemon with the SMTP relay transport.
func Start(lay layout.Layout, cfg envcfg.Config, log *owlog.Logger) (*Daemon, error) {
	return StartWithTransport(lay, cfg, log, nil)
}

// StartWithTransport substitutes the outbound transport, e.g. for
// tests. A nil transport selects the configured SMTP relay.
func StartWithTransport(lay layout.Layout, cfg envcfg.Config, log *owlog.Logger, transport outbox.Transport) (*Daemon, error) {
	var pipeline *outbox.Pipeline
	if transport == nil {
		pipeline = outbox.New(lay, cfg, log)
	} else {
		pipeline = outbox.NewWithTransport(lay, cfg, log, transport)
	}

	if _, err := pipeline.DispatchPending(); err != nil {
		log.Log(owlog.Minimal, "daemon.outbox.start_error", err.Error())
	}

	watcher, err := watch.Spawn(lay, func(ev watch.Event) {
		if ev.Kind == watch.Error {
			log.Log(owlog.Minimal, "daemon.watch.error", ev.Err)
			return
		}
		switch ev.List {
		case watch.ListOutbox:
			if ev.Kind == watch.Created || ev.Kind == watch.Modified {
				if _, err := pipeline.DispatchPending(); err != nil {
					log.Log(owlog.Minimal, "daemon.outbox.error", err.Error())
				}
			}
		case watch.ListQuarantine:
			switch ev.Kind {
			case watch.Created:
				log.Log(owlog.Minimal, "daemon.quarantine", "path="+ev.Path)
			case watch.Modified:
				log.Log(owlog.VerboseSanitized, "daemon.quarantine.update", "path="+ev.Path)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		shutdown:      make(chan struct{}),
		watch:         watcher,
		retentionDone: make(chan struct{}),
	}
	go d.retentionLoop(lay, log)
	return d, nil
}

// retentionLoop reloads the rules and enforces retention every
// minute, waking every second to honor shutdown.
func (d *Daemon) retentionLoop(lay layout.Layout, log *owlog.Logger) {
	defer close(d.retentionDone)
	loader := rules.NewLoader(lay.Root())
	for {
		loaded, err := loader.Load()
		if err != nil {
			log.Log(owlog.Minimal, "daemon.retention.rules_error", err.Error())
		} else if _, err := reconcile.EnforceRetention(lay, loaded, time.Now().UTC()); err != nil {
			log.Log(owlog.Minimal, "daemon.retention.error", err.Error())
		}
		for i := 0; i < int(retentionInterval/time.Second); i++ {
			select {
			case <-d.shutdown:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// Stop sets the shutdown flag, joins the retention loop, and stops
// the watcher workers.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.shutdown)
		<-d.retentionDone
		d.watch.Stop()
	})
}

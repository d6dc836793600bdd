// Package watch observes the outbox and quarantine directories with
// one worker per list. Each worker runs both a native
// filesystem-notification source and a 200 ms poller feeding the same
// handler, so events still arrive on filesystems where native
// notifications are lossy (bind mounts, network shares).
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"owlery.ink/fsatom"
	"owlery.ink/layout"
)

// List identifies a watched directory.
type List int

const (
	ListOutbox List = iota
	ListQuarantine
)

func (l List) String() string {
	if l == ListOutbox {
		return "outbox"
	}
	return "quarantine"
}

// Kind classifies an observed change.
type Kind int

const (
	Created Kind = iota
	Modified
	Removed
	Error
)

// Event is one observed change, or a watcher error surfaced to the
// handler (the daemon logs it and keeps running).
type Event struct {
	List List
	Path string
	Kind Kind
	Err  string
}

const pollInterval = 200 * time.Millisecond

// Service owns the watcher goroutines. Stop shuts them down within
// one poll interval.
type Service struct {
	shutdown chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Spawn starts one worker per watched list. The handler is invoked
// from the worker goroutines and must be safe for concurrent use.
func Spawn(lay layout.Layout, handler func(Event)) (*Service, error) {
	s := &Service{shutdown: make(chan struct{})}
	for list, dir := range map[List]string{
		ListOutbox:     lay.Outbox(),
		ListQuarantine: lay.Quarantine(),
	} {
		if err := fsatom.MkdirAll(dir); err != nil {
			return nil, err
		}
		s.wg.Add(1)
		go s.worker(list, dir, handler)
	}
	return s, nil
}

// Stop signals shutdown and joins the workers.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.wg.Wait()
}

func (s *Service) worker(list List, dir string, handler func(Event)) {
	defer s.wg.Done()

	var nativeEvents <-chan fsnotify.Event
	var nativeErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		handler(Event{List: list, Path: dir, Kind: Error, Err: "native watcher failed: " + err.Error()})
	} else {
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			handler(Event{List: list, Path: dir, Kind: Error, Err: "watch failed: " + err.Error()})
		} else {
			nativeEvents = watcher.Events
			nativeErrors = watcher.Errors
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	snapshot := scanDir(dir)

	for {
		select {
		case <-s.shutdown:
			return
		case ev, ok := <-nativeEvents:
			if !ok {
				nativeEvents = nil
				continue
			}
			if kind, ok := classify(ev.Op); ok {
				handler(Event{List: list, Path: ev.Name, Kind: kind})
			}
		case err, ok := <-nativeErrors:
			if !ok {
				nativeErrors = nil
				continue
			}
			if err != nil {
				handler(Event{List: list, Path: dir, Kind: Error, Err: err.Error()})
			}
		case <-ticker.C:
			snapshot = s.poll(list, dir, snapshot, handler)
		}
	}
}

func classify(op fsnotify.Op) (Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return Removed, true
	}
	return 0, false
}

type fileState struct {
	size    int64
	modTime time.Time
}

func scanDir(dir string) map[string]fileState {
	state := make(map[string]fileState)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return state
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		state[entry.Name()] = fileState{size: info.Size(), modTime: info.ModTime()}
	}
	return state
}

// poll diffs the directory against the previous snapshot and emits
// synthetic events for anything the native watcher may have missed.
func (s *Service) poll(list List, dir string, prev map[string]fileState, handler func(Event)) map[string]fileState {
	current := scanDir(dir)
	for name, state := range current {
		old, existed := prev[name]
		switch {
		case !existed:
			handler(Event{List: list, Path: filepath.Join(dir, name), Kind: Created})
		case old != state:
			handler(Event{List: list, Path: filepath.Join(dir, name), Kind: Modified})
		}
	}
	for name := range prev {
		if _, still := current[name]; !still {
			handler(Event{List: list, Path: filepath.Join(dir, name), Kind: Removed})
		}
	}
	return current
}

// Command owl is the command-line front end for the file-first mail
// engine: bootstrap the tree, inspect lists, move senders, queue and
// send drafts, and read the log.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"owlery.ink/email"
	"owlery.ink/email/dkim"
	"owlery.ink/envcfg"
	"owlery.ink/fsatom"
	"owlery.ink/layout"
	"owlery.ink/outbox"
	"owlery.ink/owlog"
)

const defaultEnvPath = "/home/pi/mail/.env"

func main() {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	flagEnv := flag.String("env", defaultEnvPath, "path to the engine .env file")
	flag.Usage = usage
	flag.Parse()

	if err := run(*flagEnv, flag.Args()); err != nil {
		zlog.Error().Err(err).Msg("owl")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: owl [-env path] <command> [args]

commands:
  install                      bootstrap the mail tree and default .env
  triage                       per-list message counts (default)
  list-senders <list>          senders with mail in a list
  move-sender <from> <to> <a>  relocate a sender between lists
  send <draft>                 queue a draft and dispatch the outbox
  logs                         print parsed log entries
`)
	flag.PrintDefaults()
}

func run(envPath string, args []string) error {
	root := filepath.Dir(envPath)
	lay := layout.New(root)

	cfg := envcfg.Default()
	if loaded, err := envcfg.Load(envPath); err == nil {
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	command := "triage"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "install":
		return install(lay, cfg, envPath)
	case "triage":
		return triage(lay)
	case "list-senders":
		if len(args) != 1 {
			return fmt.Errorf("usage: owl list-senders <list>")
		}
		return listSenders(lay, args[0])
	case "move-sender":
		if len(args) != 3 {
			return fmt.Errorf("usage: owl move-sender <from-list> <to-list> <address>")
		}
		return moveSender(lay, cfg, args[0], args[1], args[2])
	case "send":
		if len(args) != 1 {
			return fmt.Errorf("usage: owl send <draft>")
		}
		return send(lay, cfg, args[0])
	case "logs":
		return printLogs(lay)
	}
	return fmt.Errorf("unknown command %q", command)
}

// install bootstraps the tree, seeds a default .env if absent, and
// creates the DKIM material for the configured selector.
func install(lay layout.Layout, cfg envcfg.Config, envPath string) error {
	if err := lay.Ensure(); err != nil {
		return err
	}
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := fsatom.WriteFile(envPath, []byte(cfg.String())); err != nil {
			return err
		}
	}
	if _, err := dkim.EnsureKeypair(lay.DKIMDir(), cfg.DKIMSelector); err != nil {
		return err
	}
	fmt.Printf("installed mail tree at %s\n", lay.Root())
	return nil
}

func triage(lay layout.Layout) error {
	for _, list := range []string{"quarantine", "accepted", "spam", "banned", "outbox", "sent"} {
		count, err := countMessages(lay.List(list))
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %d\n", list, count)
	}
	return nil
}

func countMessages(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".yml") {
			count++
		}
		return nil
	})
	return count, err
}

func listSenders(lay layout.Layout, list string) error {
	entries, err := os.ReadDir(lay.List(list))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var senders []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != "attachments" {
			senders = append(senders, entry.Name())
		}
	}
	sort.Strings(senders)
	for _, s := range senders {
		fmt.Println(s)
	}
	return nil
}

// moveSender relocates a sender's directory between lists and
// rewrites each sidecar's status shadow.
func moveSender(lay layout.Layout, cfg envcfg.Config, fromList, toList, address string) error {
	addr, err := email.ParseAddress(address, cfg.KeepPlusTags)
	if err != nil {
		return err
	}
	src := filepath.Join(lay.List(fromList), addr.Canonical())
	dst := filepath.Join(lay.List(toList), addr.Canonical())
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("no mail from %s in %s", addr, fromList)
	}
	if err := fsatom.MkdirAll(lay.List(toList)); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return err
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		path := filepath.Join(dst, entry.Name())
		sidecar, err := email.LoadSidecar(path)
		if err != nil {
			return err
		}
		sidecar.StatusShadow = toList
		sidecar.AddHistory("moved from " + fromList + " to " + toList)
		sidecar.Touch()
		if err := sidecar.Save(path); err != nil {
			return err
		}
	}
	fmt.Printf("moved %s from %s to %s\n", addr, fromList, toList)
	return nil
}

func send(lay layout.Layout, cfg envcfg.Config, draftPath string) error {
	level, err := owlog.ParseLevel(cfg.Logging)
	if err != nil {
		return err
	}
	log, err := owlog.New(lay.Root(), level)
	if err != nil {
		return err
	}
	defer log.Close()

	pipeline := outbox.New(lay, cfg, log)
	queued, err := pipeline.QueueDraft(draftPath)
	if err != nil {
		return err
	}
	fmt.Printf("queued %s\n", queued)
	results, err := pipeline.DispatchPending()
	if err != nil {
		return err
	}
	for _, r := range results {
		switch r.Outcome {
		case outbox.OutcomeSent:
			fmt.Printf("sent %s\n", r.ULID)
		case outbox.OutcomeRetried:
			fmt.Printf("retry scheduled for %s\n", r.ULID)
		}
	}
	return nil
}

func printLogs(lay layout.Layout) error {
	entries, err := owlog.LoadEntries(lay.LogFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.Detail != "" {
			fmt.Printf("%s %s %s %s\n", e.Timestamp, e.Level, e.Message, e.Detail)
		} else {
			fmt.Printf("%s %s %s\n", e.Timestamp, e.Level, e.Message)
		}
	}
	return nil
}

// Package reconcile enforces per-list retention: expired messages are
// pruned by the list's delete_after policy, and attachment blobs no
// longer referenced by any surviving sidecar are swept.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"owlery.ink/email"
	"owlery.ink/layout"
	"owlery.ink/rules"
)

// Summary reports what one list's reconciliation removed.
type Summary struct {
	MessagesRemoved    []string
	AttachmentsRemoved []string
}

// EnforceRetention reconciles the three governed lists against their
// settings at the given instant.
func EnforceRetention(lay layout.Layout, loaded rules.LoadedRules, now time.Time) (map[string]Summary, error) {
	results := make(map[string]Summary, 3)
	for list, settings := range map[string]rules.ListSettings{
		"accepted": loaded.Accepted.Settings,
		"spam":     loaded.Spam.Settings,
		"banned":   loaded.Banned.Settings,
	} {
		summary, err := PruneList(lay, list, settings.DeleteAfter, now)
		if err != nil {
			return results, err
		}
		results[list] = summary
	}
	return results, nil
}

// PruneList applies the retention policy to one list and then sweeps
// its orphaned attachment blobs. A policy of "never" (or empty) skips
// pruning but still sweeps orphans.
func PruneList(lay layout.Layout, list, policy string, now time.Time) (Summary, error) {
	var summary Summary
	listDir := lay.List(list)

	prune, err := shouldPrune(policy)
	if err != nil {
		return Summary{}, err
	}
	if prune {
		entries, err := os.ReadDir(listDir)
		if err != nil && !os.IsNotExist(err) {
			return Summary{}, fmt.Errorf("reconcile: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == "attachments" {
				continue
			}
			removed, err := pruneDirectory(filepath.Join(listDir, entry.Name()), policy, now)
			if err != nil {
				return Summary{}, err
			}
			summary.MessagesRemoved = append(summary.MessagesRemoved, removed...)
		}
	}

	references, err := collectAttachmentRefs(listDir)
	if err != nil {
		return Summary{}, err
	}
	swept, err := pruneAttachments(lay.Attachments(list), references)
	if err != nil {
		return Summary{}, err
	}
	summary.AttachmentsRemoved = swept
	return summary, nil
}

func shouldPrune(policy string) (bool, error) {
	trimmed := strings.TrimSpace(policy)
	if trimmed == "" || strings.EqualFold(trimmed, "never") {
		return false, nil
	}
	if _, ok := rules.ParseDeleteAfter(trimmed); ok {
		return true, nil
	}
	return false, fmt.Errorf("reconcile: invalid delete_after policy: %q", policy)
}

// pruneDirectory removes every expired artifact group in one sender
// directory.
func pruneDirectory(dir, policy string, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		sidecar, err := email.LoadSidecar(path)
		if err != nil {
			return removed, err
		}
		last, err := time.Parse(time.RFC3339, sidecar.LastActivity)
		if err != nil {
			return removed, fmt.Errorf("reconcile: %s last_activity: %w", path, err)
		}
		if !rules.RetentionDue(last, policy, now) {
			continue
		}
		if err := removeArtifactGroup(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// removeArtifactGroup deletes the sidecar's siblings first and the
// sidecar itself last, so an interrupted removal is retried on the
// next cycle.
func removeArtifactGroup(sidecarPath string) error {
	base := strings.TrimPrefix(strings.TrimSuffix(filepath.Base(sidecarPath), ".yml"), ".")
	dir := filepath.Dir(sidecarPath)
	for _, name := range []string{base + ".eml", "." + base + ".html", "." + base + ".txt"} {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reconcile: %w", err)
		}
	}
	if err := os.Remove(sidecarPath); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return nil
}

// collectAttachmentRefs gathers the sha256 values referenced by every
// surviving sidecar under the list directory.
func collectAttachmentRefs(listDir string) (map[string]bool, error) {
	refs := make(map[string]bool)
	err := filepath.WalkDir(listDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yml") {
			return nil
		}
		sidecar, err := email.LoadSidecar(path)
		if err != nil {
			return err
		}
		for _, att := range sidecar.Attachments {
			refs[att.SHA256] = true
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	return refs, nil
}

// pruneAttachments removes blobs whose sha256 prefix is unreferenced.
func pruneAttachments(dir string, refs map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		sha, _, found := strings.Cut(name, "__")
		if !found {
			sha = name
		}
		if refs[sha] {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("reconcile: %w", err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// Package cleanup trims the local state tide accumulates over time: old
// entries in the event log and stale rows in the session cache.
package cleanup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tide-dev/tide/internal/history"
	"github.com/tide-dev/tide/internal/log"
)

// Options controls a cleanup pass.
type Options struct {
	MaxAge      time.Duration // entries older than this are removed
	KeepPrompts int           // prompts kept per server for recall
	DryRun      bool
}

// Result counts what was (or, on a dry run, would be) removed.
type Result struct {
	LogEntries int
	Sessions   int64
	Prompts    int64
}

// Run prunes log.jsonl and history.db inside dir.
func Run(dir string, opts Options, now time.Time) (Result, error) {
	var res Result
	cutoff := now.Add(-opts.MaxAge)

	n, err := PruneLog(filepath.Join(dir, log.FileName), cutoff, opts.DryRun)
	if err != nil {
		return res, err
	}
	res.LogEntries = n

	dbPath := filepath.Join(dir, history.FileName)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	store, err := history.NewStore(dbPath)
	if err != nil {
		return res, err
	}
	defer func() { _ = store.Close() }()

	if opts.DryRun {
		res.Sessions, res.Prompts, err = store.CountPrunable(cutoff, opts.KeepPrompts)
		return res, err
	}
	if res.Sessions, err = store.PruneSessions(cutoff); err != nil {
		return res, err
	}
	if res.Prompts, err = store.PrunePrompts(opts.KeepPrompts); err != nil {
		return res, err
	}
	return res, nil
}

// PruneLog removes log lines whose time is before cutoff. Lines without a
// readable time are kept. The file is replaced atomically; a missing file
// is not an error.
func PruneLog(path string, cutoff time.Time, dryRun bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading log: %w", err)
	}

	var kept bytes.Buffer
	removed := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if ts := gjson.GetBytes(line, "time"); ts.Exists() {
			if t := ts.Time(); !t.IsZero() && t.Before(cutoff) {
				removed++
				continue
			}
		}
		kept.Write(line)
		kept.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanning log: %w", err)
	}
	if removed == 0 || dryRun {
		return removed, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".log-*.jsonl")
	if err != nil {
		return 0, fmt.Errorf("creating temp log: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(kept.Bytes()); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("writing temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("replacing log: %w", err)
	}
	return removed, nil
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/harube/kakeai/internal/bus"
)

// WatchScript blocks until script.json inside runDir is written, then
// returns. The run directory is watched rather than the file itself
// because most editors replace the file by rename, which would drop a
// file-level watch.
func WatchScript(ctx context.Context, runDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(runDir); err != nil {
		return err
	}

	target := filepath.Join(runDir, ScriptFile)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("script watcher closed")
			}
			if ev.Name == target && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("script watcher closed")
			}
			return err
		}
	}
}

// AwaitScriptEdit waits for the user's editor to write the run's
// script, then announces the edit on the bus.
func (o *Orchestrator) AwaitScriptEdit(ctx context.Context, run *Run) error {
	if err := WatchScript(ctx, run.Dir()); err != nil {
		return err
	}
	o.events.Publish(bus.Event{Type: bus.EventTypeScriptEdited, Data: map[string]any{
		"run_id": run.ID,
	}})
	return nil
}

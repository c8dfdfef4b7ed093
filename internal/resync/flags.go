package resync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const flagsFileName = "resync-flags.json"

// flagsState is the cross-process handshake persisted in the shared app
// group directory. The file provider extension reads ShouldReenumerate,
// sets EnumerationInProgress while it re-walks its working set, and
// clears both when done.
type flagsState struct {
	ShouldReenumerate     bool `json:"shouldReenumerate"`
	EnumerationInProgress bool `json:"enumerationInProgress"`
}

// SharedFlags reads and writes the handshake file. Writes go through a
// temp file and rename so a reader never observes a torn write.
type SharedFlags struct {
	dir  string
	path string
}

func NewSharedFlags(dir string) *SharedFlags {
	return &SharedFlags{dir: dir, path: filepath.Join(dir, flagsFileName)}
}

func (f *SharedFlags) load() (flagsState, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return flagsState{}, nil
	}
	if err != nil {
		return flagsState{}, fmt.Errorf("reading flags file: %w", err)
	}

	var state flagsState
	if err := json.Unmarshal(data, &state); err != nil {
		return flagsState{}, fmt.Errorf("parsing flags file: %w", err)
	}
	return state, nil
}

func (f *SharedFlags) save(state flagsState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, flagsFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp flags file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing flags: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp flags file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publishing flags file: %w", err)
	}
	return nil
}

// SetShouldReenumerate raises the reenumeration request flag.
func (f *SharedFlags) SetShouldReenumerate(v bool) error {
	state, err := f.load()
	if err != nil {
		return err
	}
	state.ShouldReenumerate = v
	return f.save(state)
}

// SetEnumerationInProgress marks whether an enumeration is running.
func (f *SharedFlags) SetEnumerationInProgress(v bool) error {
	state, err := f.load()
	if err != nil {
		return err
	}
	state.EnumerationInProgress = v
	return f.save(state)
}

func (f *SharedFlags) ShouldReenumerate() (bool, error) {
	state, err := f.load()
	return state.ShouldReenumerate, err
}

func (f *SharedFlags) EnumerationInProgress() (bool, error) {
	state, err := f.load()
	return state.EnumerationInProgress, err
}

// AwaitEnumerationDone watches the flags file until EnumerationInProgress
// goes false or the timeout expires. Returns whether the other process
// responded in time. The directory is watched rather than the file, so
// the rename-based writes are observed reliably.
func (f *SharedFlags) AwaitEnumerationDone(ctx context.Context, timeout time.Duration) (bool, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("creating flags watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return false, fmt.Errorf("watching flags directory: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	check := func() (bool, error) {
		state, err := f.load()
		if err != nil {
			return false, err
		}
		return !state.EnumerationInProgress, nil
	}

	// The flag may already be clear before any event arrives.
	if done, err := check(); err != nil || done {
		return done, err
	}

	for {
		select {
		case event := <-watcher.Events:
			if filepath.Base(event.Name) != flagsFileName {
				continue
			}
			if done, err := check(); err != nil || done {
				return done, err
			}

		case err := <-watcher.Errors:
			return false, fmt.Errorf("watching flags file: %w", err)

		case <-deadline.C:
			return false, nil

		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// settings_watcher.go: Hot reload of module settings documents
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// maxWatchedSettings bounds the number of settings documents one watcher tracks.
const maxWatchedSettings = 1024

// SettingsWatcher detects edits of module settings documents.
//
// Argus reports changes on its own goroutine, while module state may only be
// touched from the control goroutine. The watcher therefore only records the
// ids of changed modules; Loader.ApplySettingsChanges drains them.
type SettingsWatcher struct {
	watcher *argus.Watcher
	logger  Logger

	mu      sync.Mutex
	paths   map[string]string // settings path -> module id
	pending map[string]struct{}

	running atomic.Bool
}

// NewSettingsWatcher creates a stopped watcher polling at interval.
func NewSettingsWatcher(interval time.Duration, logger Logger) *SettingsWatcher {
	if logger == nil {
		logger = DefaultLogger()
	}
	sw := &SettingsWatcher{
		logger:  logger,
		paths:   make(map[string]string),
		pending: make(map[string]struct{}),
	}
	sw.watcher = argus.New(argus.Config{
		PollInterval:         interval,
		CacheTTL:             interval / 2,
		MaxWatchedFiles:      maxWatchedSettings,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, path string) {
			logger.Error("Settings file watching error", "error", err, "file", path)
		},
	})
	return sw
}

// Watch starts tracking the settings document of m. Paths are keyed in
// absolute form, matching the paths argus reports.
func (sw *SettingsWatcher) Watch(m *Module) error {
	path, err := watchKey(m.SettingsPath())
	if err != nil {
		return NewConfigError(m.SettingsPath(), "failed to resolve settings path of "+m.ID(), err)
	}

	sw.mu.Lock()
	if _, ok := sw.paths[path]; ok {
		sw.mu.Unlock()
		return nil
	}
	sw.paths[path] = m.ID()
	sw.mu.Unlock()

	if err := sw.watcher.Watch(path, sw.handleChange); err != nil {
		sw.mu.Lock()
		delete(sw.paths, path)
		sw.mu.Unlock()
		return NewConfigError(path, "failed to watch settings of "+m.ID(), err)
	}
	return nil
}

// Unwatch stops tracking the settings document of m and drops any queued
// change for it.
func (sw *SettingsWatcher) Unwatch(m *Module) error {
	path, err := watchKey(m.SettingsPath())
	if err != nil {
		return NewConfigError(m.SettingsPath(), "failed to resolve settings path of "+m.ID(), err)
	}

	sw.mu.Lock()
	if _, ok := sw.paths[path]; !ok {
		sw.mu.Unlock()
		return nil
	}
	delete(sw.paths, path)
	delete(sw.pending, m.ID())
	sw.mu.Unlock()

	if sw.watcher == nil {
		return nil
	}
	if err := sw.watcher.Unwatch(path); err != nil {
		return NewConfigError(path, "failed to unwatch settings of "+m.ID(), err)
	}
	return nil
}

// IsWatching reports whether the settings document of m is tracked.
func (sw *SettingsWatcher) IsWatching(m *Module) bool {
	path, err := watchKey(m.SettingsPath())
	if err != nil {
		return false
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, ok := sw.paths[path]
	return ok
}

func watchKey(path string) (string, error) {
	return filepath.Abs(path)
}

// Start begins polling.
func (sw *SettingsWatcher) Start() error {
	if !sw.running.CompareAndSwap(false, true) {
		return nil
	}
	if err := sw.watcher.Start(); err != nil {
		sw.running.Store(false)
		return NewConfigError("", "failed to start settings watcher", err)
	}
	sw.logger.Info("Settings watcher started", "files", sw.watchedCount())
	return nil
}

// Stop ends polling. A stopped watcher cannot be restarted.
func (sw *SettingsWatcher) Stop() error {
	if !sw.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := sw.watcher.Stop(); err != nil {
		return NewConfigError("", "failed to stop settings watcher", err)
	}
	sw.logger.Info("Settings watcher stopped")
	return nil
}

// Drain returns the ids of modules whose settings changed since the last
// call, sorted, and clears the queue.
func (sw *SettingsWatcher) Drain() []string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if len(sw.pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sw.pending))
	for id := range sw.pending {
		ids = append(ids, id)
	}
	sw.pending = make(map[string]struct{})
	sort.Strings(ids)
	return ids
}

func (sw *SettingsWatcher) watchedCount() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.paths)
}

func (sw *SettingsWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		sw.logger.Debug("Settings file deleted, ignoring", "path", event.Path)
		return
	}
	sw.enqueuePath(event.Path)
}

func (sw *SettingsWatcher) enqueuePath(path string) {
	if abs, err := watchKey(path); err == nil {
		path = abs
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	id, ok := sw.paths[path]
	if !ok {
		return
	}
	sw.pending[id] = struct{}{}
	sw.logger.Debug("Settings change queued", "module", id, "path", path)
}

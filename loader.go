// loader.go: The module registry and dependency resolution driver
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PackageExtension is the file extension InstallAll looks for.
const PackageExtension = ".zip"

// Option customizes a Loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	logger   Logger
	sink     EventSink
	hooks    HookEngine
	patches  PatchEngine
	binaries BinaryLoader
	archives ArchiveOpener
}

// WithLogger sets the logger. It accepts the same types as NewLogger.
func WithLogger(logger any) Option {
	return func(o *loaderOptions) { o.logger = NewLogger(logger) }
}

// WithEventSink adds a sink receiving every lifecycle event next to the
// loader's own EventBus.
func WithEventSink(sink EventSink) Option {
	return func(o *loaderOptions) { o.sink = sink }
}

// WithHookEngine sets the engine that enables and disables hooks.
func WithHookEngine(engine HookEngine) Option {
	return func(o *loaderOptions) { o.hooks = engine }
}

// WithPatchEngine sets the engine that applies and restores patches.
func WithPatchEngine(engine PatchEngine) Option {
	return func(o *loaderOptions) { o.patches = engine }
}

// WithBinaryLoader sets how module binaries are mapped.
func WithBinaryLoader(loader BinaryLoader) Option {
	return func(o *loaderOptions) { o.binaries = loader }
}

// WithArchiveOpener sets how package archives are opened.
func WithArchiveOpener(open ArchiveOpener) Option {
	return func(o *loaderOptions) { o.archives = open }
}

type eventSinks []EventSink

func (s eventSinks) Post(m *Module, kind EventKind) {
	for _, sink := range s {
		sink.Post(m, kind)
	}
}

// Loader owns every registered module and drives dependency resolution.
//
// Like Module, a Loader is driven from a single control goroutine. The only
// concurrent piece is the optional settings watcher, whose events are queued
// until ApplySettingsChanges runs.
type Loader struct {
	config  LoaderConfig
	logger  Logger
	bus     *EventBus
	env     *moduleEnv
	modules map[string]*Module
	watcher *SettingsWatcher
	metrics LoaderMetrics

	resolving bool
	dirty     bool
	closing   bool
}

// NewLoader creates a loader and its save and temp roots.
func NewLoader(cfg LoaderConfig, opts ...Option) (*Loader, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := loaderOptions{
		hooks:    nopEngine{},
		patches:  nopEngine{},
		binaries: GoPluginLoader{},
		archives: OpenZipArchive,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		if cfg.LogLevel != "" {
			zl, err := NewLeveledZapLogger(cfg.LogLevel)
			if err != nil {
				return nil, err
			}
			o.logger = zl
		} else {
			o.logger = DefaultLogger()
		}
	}

	for _, dir := range []string{cfg.SaveDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewFilesystemError(dir, "unable to create loader directory", err)
		}
	}

	l := &Loader{
		config:  cfg,
		logger:  o.logger,
		bus:     NewEventBus(o.logger),
		modules: make(map[string]*Module),
	}
	var sink EventSink = l.bus
	if o.sink != nil {
		sink = eventSinks{l.bus, o.sink}
	}
	l.env = &moduleEnv{
		registry: l,
		events:   sink,
		hooks:    o.hooks,
		patches:  o.patches,
		binaries: o.binaries,
		archives: o.archives,
		saveRoot: cfg.SaveDir,
		tempRoot: cfg.TempDir,
		logger:   o.logger,
		metrics:  &l.metrics,
	}

	if cfg.WatchSettings {
		l.watcher = NewSettingsWatcher(cfg.PollInterval(), o.logger)
		if err := l.watcher.Start(); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("Module loader created",
		"save_dir", cfg.SaveDir,
		"temp_dir", cfg.TempDir,
		"watch_settings", cfg.WatchSettings)
	return l, nil
}

// Config returns the effective configuration.
func (l *Loader) Config() LoaderConfig { return l.config }

// Events returns the bus every lifecycle event is posted to.
func (l *Loader) Events() *EventBus { return l.bus }

// Metrics returns a snapshot of the loader counters.
func (l *Loader) Metrics() MetricsSnapshot { return l.metrics.Snapshot() }

// AddModule registers a module from its metadata. The module starts unloaded;
// modules named in the configured disabled list are registered without load
// intent.
func (l *Loader) AddModule(info ModuleInfo) (*Module, error) {
	if l.closing {
		return nil, NewRegistryError("loader is closed", nil)
	}
	if _, exists := l.modules[info.ID]; exists {
		return nil, NewRegistryError("module "+info.ID+" is already registered", nil).
			WithContext("module_id", info.ID)
	}

	m, err := newModule(info, l.env)
	if err != nil {
		return nil, err
	}
	if l.config.IsDisabled(m.ID()) {
		m.shouldLoad = false
	}
	l.modules[m.ID()] = m

	if l.watcher != nil {
		if err := l.watcher.Watch(m); err != nil {
			l.logger.Warn("Settings of module will not be watched", "module", m.ID(), "error", err)
		}
	}

	l.logger.Info("Module registered",
		"module", m.ID(),
		"version", m.Version().String(),
		"should_load", m.shouldLoad)
	return m, nil
}

// InstallPackage reads the manifest of the package at path and registers it.
func (l *Loader) InstallPackage(path string) (*Module, error) {
	info, err := ReadPackageManifest(l.env.archives, path)
	if err != nil {
		return nil, err
	}
	return l.AddModule(*info)
}

// InstallAll registers every package found in the configured modules
// directory. Packages that fail to install are logged and skipped; the first
// failure is returned alongside the installed modules.
func (l *Loader) InstallAll() ([]*Module, error) {
	if l.config.ModulesDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(l.config.ModulesDir)
	if err != nil {
		return nil, NewFilesystemError(l.config.ModulesDir, "unable to read modules directory", err)
	}

	var installed []*Module
	var firstErr error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), PackageExtension) {
			continue
		}
		path := filepath.Join(l.config.ModulesDir, entry.Name())
		m, err := l.InstallPackage(path)
		if err != nil {
			l.logger.Warn("Unable to install package", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		installed = append(installed, m)
	}
	return installed, firstErr
}

// Module returns the module registered under id, or nil.
func (l *Loader) Module(id string) *Module { return l.modules[id] }

// Modules returns every registered module ordered by id.
func (l *Loader) Modules() []*Module {
	ids := make([]string, 0, len(l.modules))
	for id := range l.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.modules[id])
	}
	return out
}

// RemoveModule unregisters a module that is no longer loaded, typically after
// Uninstall. Dependents lose their link to it and are re-resolved.
func (l *Loader) RemoveModule(id string) error {
	m, ok := l.modules[id]
	if !ok {
		return NewRegistryError("module "+id+" is not registered", nil).WithContext("module_id", id)
	}
	if m.IsLoaded() {
		return NewRegistryError("module "+id+" is still loaded", nil).WithContext("module_id", id)
	}

	if l.watcher != nil {
		if err := l.watcher.Unwatch(m); err != nil {
			l.logger.Warn("Unable to stop watching settings", "module", id, "error", err)
		}
	}

	delete(l.modules, id)
	for _, other := range l.modules {
		for _, dep := range other.deps {
			if dep.target == m {
				dep.forget()
			}
		}
	}
	l.logger.Info("Module removed", "module", id)

	l.NotifyDependencyGraphChanged()
	return nil
}

// FindByID implements Registry
func (l *Loader) FindByID(id string) *Module { return l.modules[id] }

// ForEachModule implements Registry. Modules are visited in id order.
func (l *Loader) ForEachModule(fn func(m *Module)) {
	for _, m := range l.Modules() {
		fn(m)
	}
}

// NotifyDependencyGraphChanged implements Registry
func (l *Loader) NotifyDependencyGraphChanged() {
	if l.closing {
		return
	}
	l.UpdateAllDependencies()
}

// UpdateAllDependencies resolves the whole graph, loading modules whose
// dependencies became satisfied and unloading those that lost one.
//
// A change notified while a pass is running marks the graph dirty instead of
// starting a nested pass; the outermost call repeats passes until a pass
// completes without changes, up to MaxResolutionRounds.
func (l *Loader) UpdateAllDependencies() {
	if l.resolving {
		l.dirty = true
		return
	}
	l.resolving = true
	defer func() { l.resolving = false }()

	for round := 0; ; round++ {
		if round >= l.config.MaxResolutionRounds {
			l.metrics.UnconvergedSweeps.Add(1)
			l.logger.Warn("Dependency resolution did not settle",
				"rounds", l.config.MaxResolutionRounds)
			l.dirty = false
			return
		}
		l.dirty = false
		l.metrics.ResolutionPasses.Add(1)
		newResolutionPass(l, &l.metrics).run()
		if !l.dirty {
			return
		}
	}
}

// LoadAll runs a resolution sweep and returns the modules that are meant to
// run but are not loaded afterwards.
func (l *Loader) LoadAll() []*Module {
	l.UpdateAllDependencies()

	var failed []*Module
	for _, m := range l.Modules() {
		if !m.WasSuccessfullyLoaded() {
			failed = append(failed, m)
		}
	}
	if len(failed) > 0 {
		l.logger.Warn("Some modules could not be loaded", "count", len(failed))
	}
	return failed
}

// ApplySettingsChanges reloads the settings of loaded modules whose settings
// document changed on disk, and returns how many were reloaded.
func (l *Loader) ApplySettingsChanges() int {
	if l.watcher == nil {
		return 0
	}
	reloaded := 0
	for _, id := range l.watcher.Drain() {
		m := l.modules[id]
		if m == nil || !m.IsLoaded() {
			continue
		}
		if err := m.ReloadSettings(); err != nil {
			l.metrics.DataErrors.Add(1)
			m.logger.Warn("Unable to reload settings", "error", err)
			continue
		}
		l.metrics.SettingsReloads.Add(1)
		m.logger.Info("Settings reloaded")
		reloaded++
	}
	return reloaded
}

// Close stops the settings watcher and unloads every module that supports
// unloading, dependents before their dependencies; the data of the others is
// saved. Dependency resolution is
// suspended during and after Close.
func (l *Loader) Close() error {
	if l.closing {
		return nil
	}
	l.closing = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.watcher != nil {
		keep(l.watcher.Stop())
	}

	modules := l.shutdownOrder()
	for _, m := range modules {
		if !m.IsLoaded() {
			continue
		}
		if m.SupportsUnloading() {
			keep(m.unload())
		} else {
			keep(m.saveData())
		}
	}
	l.logger.Info("Module loader closed", "modules", len(modules))
	return firstErr
}

// shutdownOrder returns every module with dependents ahead of the modules
// they depend on. Ties and cycles fall back to reverse id order.
func (l *Loader) shutdownOrder() []*Module {
	modules := l.Modules()
	visited := make(map[*Module]bool, len(modules))
	order := make([]*Module, 0, len(modules))

	var visit func(m *Module)
	visit = func(m *Module) {
		if visited[m] {
			return
		}
		visited[m] = true
		for _, dep := range m.deps {
			if target := l.modules[dep.ID()]; target != nil {
				visit(target)
			}
		}
		order = append(order, m)
	}
	for i := len(modules) - 1; i >= 0; i-- {
		visit(modules[i])
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

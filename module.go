// module.go: The module entity and its state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// moduleEnv holds the collaborators shared by every module of one loader.
type moduleEnv struct {
	registry Registry
	events   EventSink
	hooks    HookEngine
	patches  PatchEngine
	binaries BinaryLoader
	archives ArchiveOpener
	saveRoot string
	tempRoot string
	logger   Logger
	metrics  *LoaderMetrics
}

// Module is one loadable unit of code and the holder of its lifecycle state.
//
// A Module is not safe for concurrent use: every lifecycle operation is
// expected to run on the host's control goroutine. Operations are re-entrant,
// since loading one module may resolve, load or unload others, including the
// caller.
type Module struct {
	info     ModuleInfo
	version  *Version
	deps     []*Dependency
	settings map[string]Setting
	keys     []string
	saved    map[string]json.RawMessage

	saveDir string
	tempDir string

	binaryLoaded bool
	enabled      bool
	resolved     bool
	// shouldLoad is the load intent: set by Load/Enable, cleared by an
	// explicit Unload/Disable/Uninstall, kept across forced unloads.
	shouldLoad bool

	binary  Binary
	hooks   []*Hook
	patches []*Patch

	env    *moduleEnv
	logger Logger
}

// newModule builds a module from validated metadata and creates its save
// directory. The module starts unloaded.
func newModule(info ModuleInfo, env *moduleEnv) (*Module, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	version, err := ParseVersion(info.Version)
	if err != nil {
		return nil, err
	}

	m := &Module{
		info:       info,
		version:    version,
		settings:   make(map[string]Setting, len(info.Settings)),
		saved:      make(map[string]json.RawMessage),
		saveDir:    filepath.Join(env.saveRoot, info.ID),
		shouldLoad: true,
		env:        env,
		logger:     env.logger.With("module", info.ID),
	}
	for _, dep := range info.Dependencies {
		m.deps = append(m.deps, newDependency(dep))
	}
	for key, decl := range info.Settings {
		sett, err := NewSetting(key, decl)
		if err != nil {
			return nil, NewManifestError(info.Path, "invalid setting declaration", err)
		}
		m.settings[key] = sett
		m.keys = append(m.keys, key)
	}
	sort.Strings(m.keys)

	if err := os.MkdirAll(m.saveDir, 0o755); err != nil {
		return nil, NewFilesystemError(m.saveDir, "unable to create module save directory", err)
	}
	return m, nil
}

// ID returns the unique module id.
func (m *Module) ID() string { return m.info.ID }

// Name returns the human readable name.
func (m *Module) Name() string { return m.info.Name }

// Developer returns the module developer.
func (m *Module) Developer() string { return m.info.Developer }

// Description returns the optional description.
func (m *Module) Description() string { return m.info.Description }

// Version returns the parsed module version.
func (m *Module) Version() *Version { return m.version }

// Info returns a copy of the package metadata.
func (m *Module) Info() ModuleInfo { return m.info }

// PackagePath returns the on-disk package location.
func (m *Module) PackagePath() string { return m.info.Path }

// SaveDir returns the private directory holding persisted data.
func (m *Module) SaveDir() string { return m.saveDir }

// TempDir returns the staging directory, empty until the package was extracted.
func (m *Module) TempDir() string { return m.tempDir }

// BinaryPath returns the location of the extracted binary.
func (m *Module) BinaryPath() string { return filepath.Join(m.tempDir, m.info.Binary) }

// IsLoaded reports whether the binary is mapped.
func (m *Module) IsLoaded() bool { return m.binaryLoaded }

// IsEnabled reports whether hooks and patches are active.
func (m *Module) IsEnabled() bool { return m.enabled }

// IsResolved reports whether all dependencies were satisfied at the last pass.
func (m *Module) IsResolved() bool { return m.resolved }

// ShouldLoad reports whether the module is meant to be running.
func (m *Module) ShouldLoad() bool { return m.shouldLoad }

// SupportsUnloading reports the unloading capability from the manifest.
func (m *Module) SupportsUnloading() bool { return m.info.SupportsUnloading }

// SupportsDisabling reports the disabling capability from the manifest.
func (m *Module) SupportsDisabling() bool { return m.info.SupportsDisabling }

// WasSuccessfullyLoaded is false when the module is meant to run but is not loaded.
func (m *Module) WasSuccessfullyLoaded() bool { return !m.shouldLoad || m.binaryLoaded }

// IsUninstalled reports whether the package file is gone.
func (m *Module) IsUninstalled() bool {
	_, err := os.Stat(m.info.Path)
	return os.IsNotExist(err)
}

// Dependencies returns the dependency records in declaration order.
func (m *Module) Dependencies() []*Dependency {
	out := make([]*Dependency, len(m.deps))
	copy(out, m.deps)
	return out
}

// Depends reports whether the module declares a dependency on id.
func (m *Module) Depends(id string) bool {
	for _, dep := range m.deps {
		if dep.ID() == id {
			return true
		}
	}
	return false
}

// HasUnresolvedDependencies reports whether any record blocks loading.
func (m *Module) HasUnresolvedDependencies() bool {
	for _, dep := range m.deps {
		if dep.IsUnresolved() {
			return true
		}
	}
	return false
}

// UnresolvedDependencies returns the records that block loading.
func (m *Module) UnresolvedDependencies() []*Dependency {
	var res []*Dependency
	for _, dep := range m.deps {
		if dep.IsUnresolved() {
			res = append(res, dep)
		}
	}
	return res
}

func (m *Module) unresolvedIDs() []string {
	ids := make([]string, 0, len(m.deps))
	for _, dep := range m.UnresolvedDependencies() {
		ids = append(ids, dep.ID())
	}
	return ids
}

// Hooks returns the hooks owned by the module.
func (m *Module) Hooks() []*Hook {
	out := make([]*Hook, len(m.hooks))
	copy(out, m.hooks)
	return out
}

// Patches returns the patches owned by the module.
func (m *Module) Patches() []*Patch {
	out := make([]*Patch, len(m.patches))
	copy(out, m.patches)
	return out
}

// AddHook registers a hook. It is only valid while the binary is mapped,
// normally from the entry point. When the module is already enabled the hook
// is enabled immediately.
func (m *Module) AddHook(name string, address uintptr, detour any) (*Hook, error) {
	if m.binary == nil {
		return nil, NewBinaryLoadError(m.ID(), "hooks can only be added while the binary is loaded", nil)
	}
	h := &Hook{name: name, address: address, detour: detour}
	m.hooks = append(m.hooks, h)
	if m.enabled {
		if err := m.enableHook(h); err != nil {
			return h, err
		}
	}
	return h, nil
}

// AddPatch registers a patch writing data at address. Same rules as AddHook.
func (m *Module) AddPatch(address uintptr, data []byte) (*Patch, error) {
	if m.binary == nil {
		return nil, NewBinaryLoadError(m.ID(), "patches can only be added while the binary is loaded", nil)
	}
	p := &Patch{address: address, bytes: append([]byte(nil), data...)}
	m.patches = append(m.patches, p)
	if m.enabled {
		if err := m.applyPatch(p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Setting returns a declared setting, or nil.
func (m *Module) Setting(key string) Setting { return m.settings[key] }

// HasSetting reports whether key is a declared setting.
func (m *Module) HasSetting(key string) bool {
	_, ok := m.settings[key]
	return ok
}

// Settings returns the declared settings ordered by key.
func (m *Module) Settings() []Setting {
	out := make([]Setting, 0, len(m.keys))
	for _, key := range m.keys {
		out = append(out, m.settings[key])
	}
	return out
}

// GetSettingValue returns the current value of a setting, or def when the
// setting is unknown or holds another type.
func GetSettingValue[T any](m *Module, key string, def T) T {
	sett := m.Setting(key)
	if sett == nil {
		return def
	}
	if v, ok := sett.Value().(T); ok {
		return v
	}
	return def
}

// RuntimeInfo returns a diagnostic document of the module and its runtime state.
func (m *Module) RuntimeInfo() map[string]any {
	hooks := make([]map[string]any, 0, len(m.hooks))
	for _, h := range m.hooks {
		hooks = append(hooks, h.RuntimeInfo())
	}
	patches := make([]map[string]any, 0, len(m.patches))
	for _, p := range m.patches {
		patches = append(patches, p.RuntimeInfo())
	}
	deps := make([]map[string]any, 0, len(m.deps))
	for _, d := range m.deps {
		deps = append(deps, map[string]any{
			"id":       d.ID(),
			"required": d.Required(),
			"state":    d.State().String(),
		})
	}
	return map[string]any{
		"id":           m.info.ID,
		"name":         m.info.Name,
		"developer":    m.info.Developer,
		"version":      m.version.String(),
		"dependencies": deps,
		"runtime": map[string]any{
			"hooks":    hooks,
			"patches":  patches,
			"enabled":  m.enabled,
			"loaded":   m.binaryLoaded,
			"resolved": m.resolved,
			"temp-dir": m.tempDir,
			"save-dir": m.saveDir,
		},
	}
}

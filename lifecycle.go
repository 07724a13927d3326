// lifecycle.go: Load, unload, enable, disable and uninstall of a module
//
// Every operation is guarded by its preconditions and re-checks them on
// entry, because a resolution pass may call back into a module whose own
// operation is still on the stack. Partially applied side effects are not
// rolled back: on failure the module flags reflect exactly what completed.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
)

// Load maps the module binary, runs its entry point, loads persisted data and
// enables the module. Loading an already loaded module is a no-op.
func (m *Module) Load() error {
	m.shouldLoad = true
	return m.load()
}

// Unload persists data, disables the module, releases its hooks and patches
// and unmaps the binary. Unloading an unloaded module is a no-op.
func (m *Module) Unload() error {
	if err := m.unload(); err != nil {
		return err
	}
	m.shouldLoad = false
	return nil
}

// Enable activates every hook and patch. An unloaded module is loaded instead.
func (m *Module) Enable() error {
	m.shouldLoad = true
	return m.enable()
}

// Disable deactivates every hook and patch, leaving the binary mapped.
func (m *Module) Disable() error {
	if err := m.disable(); err != nil {
		return err
	}
	m.shouldLoad = false
	return nil
}

// Uninstall disables and unloads the module where its capabilities allow it,
// then deletes the package file.
func (m *Module) Uninstall() error {
	if m.info.SupportsDisabling {
		if err := m.disable(); err != nil {
			return err
		}
		if m.info.SupportsUnloading {
			if err := m.unload(); err != nil {
				return err
			}
		}
	}
	m.shouldLoad = false

	if err := os.Remove(m.info.Path); err != nil && !os.IsNotExist(err) {
		return NewFilesystemError(m.info.Path, "unable to delete module package of "+m.ID(), err)
	}
	m.logger.Info("Module uninstalled", "package", m.info.Path)
	return nil
}

func (m *Module) load() error {
	if m.binaryLoaded {
		return nil
	}

	if err := m.createTempDir(); err != nil {
		m.env.metrics.LoadFailures.Add(1)
		return err
	}

	if m.HasUnresolvedDependencies() {
		m.env.metrics.LoadFailures.Add(1)
		return NewDependencyError(m.ID(), m.unresolvedIDs())
	}
	m.resolved = true

	if err := m.loadPlatformBinary(); err != nil {
		m.env.metrics.LoadFailures.Add(1)
		return err
	}

	m.binaryLoaded = true
	m.env.metrics.ModulesLoaded.Add(1)
	m.env.events.Post(m, EventLoaded)
	m.logger.Info("Module loaded", "version", m.version.String())

	if err := m.loadData(); err != nil {
		m.env.metrics.DataErrors.Add(1)
		m.logger.Warn("Unable to load data", "error", err)
	}

	m.env.registry.NotifyDependencyGraphChanged()

	return m.enable()
}

func (m *Module) unload() error {
	if !m.binaryLoaded {
		return nil
	}
	if !m.info.SupportsUnloading {
		return NewUnsupportedOperationError(m.ID(), "unloading")
	}

	if err := m.saveData(); err != nil {
		m.env.metrics.DataErrors.Add(1)
		return err
	}

	if err := m.teardown(); err != nil {
		return err
	}

	if err := m.binary.Unload(); err != nil {
		return NewBinaryLoadError(m.ID(), "unable to unload binary", err)
	}
	m.binary = nil
	m.binaryLoaded = false
	m.env.metrics.ModulesUnloaded.Add(1)
	m.env.events.Post(m, EventUnloaded)
	m.logger.Info("Module unloaded")

	m.env.registry.NotifyDependencyGraphChanged()
	return nil
}

// teardown deactivates the module and releases every owned handle. The
// release runs on every exit path, including a failed deactivation.
func (m *Module) teardown() error {
	defer m.releaseHandles()
	return m.deactivate(false)
}

func (m *Module) enable() error {
	if !m.binaryLoaded {
		return m.load()
	}
	if m.enabled {
		return nil
	}

	for _, h := range m.hooks {
		if err := m.enableHook(h); err != nil {
			return err
		}
	}
	for _, p := range m.patches {
		if err := m.applyPatch(p); err != nil {
			return err
		}
	}

	m.env.events.Post(m, EventEnabled)
	m.enabled = true
	m.logger.Debug("Module enabled", "hooks", len(m.hooks), "patches", len(m.patches))

	m.env.registry.NotifyDependencyGraphChanged()
	return nil
}

func (m *Module) disable() error {
	return m.deactivate(true)
}

// deactivate disables hooks and restores patches. The capability check only
// applies to an explicit disable; unloading always deactivates.
func (m *Module) deactivate(checkCapability bool) error {
	if !m.enabled {
		return nil
	}
	if checkCapability && !m.info.SupportsDisabling {
		return NewUnsupportedOperationError(m.ID(), "disabling")
	}

	m.env.events.Post(m, EventDisabled)

	for _, h := range m.hooks {
		if err := m.disableHook(h); err != nil {
			return err
		}
	}
	for _, p := range m.patches {
		if err := m.restorePatch(p); err != nil {
			return err
		}
	}

	m.enabled = false
	m.logger.Debug("Module disabled")

	m.env.registry.NotifyDependencyGraphChanged()
	return nil
}

func (m *Module) enableHook(h *Hook) error {
	if h.active {
		return nil
	}
	if err := m.env.hooks.EnableHook(h); err != nil {
		return NewHookError(m.ID(), h, "enable", err)
	}
	h.active = true
	return nil
}

func (m *Module) disableHook(h *Hook) error {
	if !h.active {
		return nil
	}
	if err := m.env.hooks.DisableHook(h); err != nil {
		return NewHookError(m.ID(), h, "disable", err)
	}
	h.active = false
	return nil
}

func (m *Module) applyPatch(p *Patch) error {
	if p.applied {
		return nil
	}
	if err := m.env.patches.ApplyPatch(p); err != nil {
		return NewPatchError(m.ID(), p, "apply", err)
	}
	p.applied = true
	return nil
}

func (m *Module) restorePatch(p *Patch) error {
	if !p.applied {
		return nil
	}
	if err := m.env.patches.RestorePatch(p); err != nil {
		return NewPatchError(m.ID(), p, "restore", err)
	}
	p.applied = false
	return nil
}

// releaseHandles deactivates whatever is still active and drops every handle.
func (m *Module) releaseHandles() {
	for _, h := range m.hooks {
		if err := m.disableHook(h); err != nil {
			m.logger.Warn("Hook still active on release", "error", err)
		}
	}
	for _, p := range m.patches {
		if err := m.restorePatch(p); err != nil {
			m.logger.Warn("Patch still applied on release", "error", err)
		}
	}
	m.hooks = nil
	m.patches = nil
}

// createTempDir extracts the package into the module staging directory once.
func (m *Module) createTempDir() error {
	if m.tempDir != "" {
		return nil
	}

	tempPath := filepath.Join(m.env.tempRoot, m.ID())
	if err := os.MkdirAll(tempPath, 0o755); err != nil {
		return NewPackageError(m.ID(), "unable to create module temp directory", err)
	}

	archive, err := m.env.archives(m.info.Path)
	if err != nil {
		return NewPackageError(m.ID(), "unable to open package", err)
	}
	defer func() { _ = archive.Close() }()

	if !archive.HasEntry(m.info.Binary) {
		return NewMissingBinaryError(m.ID(), m.info.Binary)
	}
	if err := archive.ExtractAllTo(tempPath); err != nil {
		return NewPackageError(m.ID(), "unable to extract package", err)
	}

	m.tempDir = tempPath
	return nil
}

// loadPlatformBinary maps the binary and runs its entry point. When the entry
// point fails the handles it registered are dropped and the binary unmapped.
func (m *Module) loadPlatformBinary() error {
	bin, err := m.env.binaries.Load(m.BinaryPath())
	if err != nil {
		return NewBinaryLoadError(m.ID(), "unable to load "+m.BinaryPath(), err)
	}
	entry, err := bin.EntryPoint()
	if err != nil {
		_ = bin.Unload()
		return NewBinaryLoadError(m.ID(), "unable to find entry point", err)
	}

	m.binary = bin
	if err := recoverEntryPoint(entry, m); err != nil {
		m.hooks = nil
		m.patches = nil
		m.binary = nil
		_ = bin.Unload()
		return NewBinaryLoadError(m.ID(), "entry point failed", err)
	}
	return nil
}

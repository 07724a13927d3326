// Package modloader loads, resolves and manages in-process code modules.
//
// A module is shipped as a package archive holding a manifest (module.json or
// module.yaml) and a platform binary. The loader registers packages, resolves
// the dependencies between them, maps binaries, runs their entry points and
// drives every module through load, enable, disable, unload and uninstall.
//
// Key Features:
//   - Dependency resolution with required and optional edges, version
//     constraints and cycle detection
//   - Cascading unload of dependents when a dependency goes away, and
//     automatic reload when it comes back
//   - Hooks and patches owned by modules, activated on enable and released
//     on unload
//   - Per-module persisted settings and saved values
//   - Lifecycle events, metrics and pluggable structured logging
//   - Optional hot reload of settings documents
//
// Basic Usage:
//
//	cfg, err := modloader.LoadLoaderConfig("modloader.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	loader, err := modloader.NewLoader(cfg, modloader.WithLogger(zapLogger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer loader.Close()
//
//	if _, err := loader.InstallAll(); err != nil {
//		log.Printf("some packages were skipped: %v", err)
//	}
//	for _, m := range loader.LoadAll() {
//		log.Printf("module %s did not load", m.ID())
//	}
//
// A module binary exports an entry point that registers its hooks:
//
//	var Module modloader.EntryFunc = func(m *modloader.Module) error {
//		_, err := m.AddHook("render", renderAddr, onRender)
//		return err
//	}
//
// Threading:
//
// Modules and the Loader are driven from one control goroutine. Lifecycle
// operations are re-entrant: loading a module may resolve, load or unload
// other modules before it returns.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package modloader

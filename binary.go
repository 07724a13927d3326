// binary.go: Platform binary loading and module entry points
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sync"
)

// EntryPointSymbol is the exported symbol looked up in a Go plugin binary.
const EntryPointSymbol = "Module"

// EntryPoint is the code a module binary runs once it is mapped. OnLoad
// typically registers hooks and patches on the owning module.
type EntryPoint interface {
	OnLoad(m *Module) error
}

// EntryFunc adapts a plain function to EntryPoint.
type EntryFunc func(m *Module) error

// OnLoad implements EntryPoint
func (f EntryFunc) OnLoad(m *Module) error { return f(m) }

// Binary is a mapped module binary.
type Binary interface {
	// EntryPoint resolves the entry point of the binary
	EntryPoint() (EntryPoint, error)

	// Unload unmaps the binary
	Unload() error
}

// BinaryLoader maps module binaries into the host process.
type BinaryLoader interface {
	Load(path string) (Binary, error)
}

// GoPluginLoader loads binaries built with -buildmode=plugin.
//
// The Go runtime cannot unmap a plugin, so Unload only forgets the handle;
// the code stays resident until the process exits.
type GoPluginLoader struct{}

// Load implements BinaryLoader
func (GoPluginLoader) Load(path string) (Binary, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return &goPluginBinary{path: path, plugin: p}, nil
}

type goPluginBinary struct {
	path   string
	plugin *plugin.Plugin
}

func (b *goPluginBinary) EntryPoint() (EntryPoint, error) {
	sym, err := b.plugin.Lookup(EntryPointSymbol)
	if err != nil {
		return nil, err
	}
	switch entry := sym.(type) {
	case EntryPoint:
		return entry, nil
	case *EntryPoint:
		return *entry, nil
	case func(*Module) error:
		return EntryFunc(entry), nil
	default:
		return nil, fmt.Errorf("symbol %s in %s has unsupported type %T", EntryPointSymbol, b.path, sym)
	}
}

func (b *goPluginBinary) Unload() error {
	b.plugin = nil
	return nil
}

// StaticBinaryLoader serves entry points linked into the host, keyed by the
// binary file name declared in the manifest. It stands in for GoPluginLoader
// on platforms without plugin support and for hosts that ship their modules
// built in.
type StaticBinaryLoader struct {
	mu      sync.RWMutex
	entries map[string]EntryPoint
}

// NewStaticBinaryLoader creates an empty static loader.
func NewStaticBinaryLoader() *StaticBinaryLoader {
	return &StaticBinaryLoader{entries: make(map[string]EntryPoint)}
}

// Register binds binary to entry.
func (s *StaticBinaryLoader) Register(binary string, entry EntryPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[binary] = entry
}

// Load implements BinaryLoader
func (s *StaticBinaryLoader) Load(path string) (Binary, error) {
	name := filepath.Base(path)
	s.mu.RLock()
	entry, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no built-in binary registered as %q", name)
	}
	return staticBinary{entry: entry}, nil
}

type staticBinary struct {
	entry EntryPoint
}

func (b staticBinary) EntryPoint() (EntryPoint, error) { return b.entry, nil }

func (staticBinary) Unload() error { return nil }

// testing_helpers_test.go: fakes and fixtures shared by the module loader tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeArchive is an in-memory package.
type fakeArchive struct {
	entries map[string][]byte
}

func (a *fakeArchive) HasEntry(name string) bool {
	_, ok := a.entries[name]
	return ok
}

func (a *fakeArchive) ReadEntry(name string) ([]byte, error) {
	data, ok := a.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry %q not found", name)
	}
	return data, nil
}

func (a *fakeArchive) ExtractAllTo(dir string) error {
	for name, data := range a.entries {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (a *fakeArchive) Close() error { return nil }

// fakeArchives serves packages registered by path.
type fakeArchives struct {
	packages map[string]map[string][]byte
	opens    int
}

func newFakeArchives() *fakeArchives {
	return &fakeArchives{packages: make(map[string]map[string][]byte)}
}

func (f *fakeArchives) open(path string) (Archive, error) {
	f.opens++
	entries, ok := f.packages[path]
	if !ok {
		return nil, NewPackageError(filepath.Base(path), "no such package", os.ErrNotExist)
	}
	return &fakeArchive{entries: entries}, nil
}

// fakeBinaryLoader maps binaries by file name to entry points.
type fakeBinaryLoader struct {
	entries   map[string]EntryPoint
	loadErrs  map[string]error
	unloadErr map[string]error
	loads     []string
	unloads   []string
}

func newFakeBinaryLoader() *fakeBinaryLoader {
	return &fakeBinaryLoader{
		entries:   make(map[string]EntryPoint),
		loadErrs:  make(map[string]error),
		unloadErr: make(map[string]error),
	}
}

func (f *fakeBinaryLoader) Load(path string) (Binary, error) {
	name := filepath.Base(path)
	if err := f.loadErrs[name]; err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f.loads = append(f.loads, name)
	return &fakeBinary{name: name, loader: f}, nil
}

type fakeBinary struct {
	name   string
	loader *fakeBinaryLoader
}

func (b *fakeBinary) EntryPoint() (EntryPoint, error) {
	if entry, ok := b.loader.entries[b.name]; ok {
		return entry, nil
	}
	return EntryFunc(func(*Module) error { return nil }), nil
}

func (b *fakeBinary) Unload() error {
	if err := b.loader.unloadErr[b.name]; err != nil {
		return err
	}
	b.loader.unloads = append(b.loader.unloads, b.name)
	return nil
}

// recordingEngine implements HookEngine and PatchEngine, failing on demand.
type recordingEngine struct {
	failEnable  map[string]error
	failDisable map[string]error
	failApply   map[uintptr]error
	failRestore map[uintptr]error
	calls       []string
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{
		failEnable:  make(map[string]error),
		failDisable: make(map[string]error),
		failApply:   make(map[uintptr]error),
		failRestore: make(map[uintptr]error),
	}
}

func (e *recordingEngine) EnableHook(h *Hook) error {
	if err := e.failEnable[h.Name()]; err != nil {
		return err
	}
	e.calls = append(e.calls, "enable:"+h.Name())
	return nil
}

func (e *recordingEngine) DisableHook(h *Hook) error {
	if err := e.failDisable[h.Name()]; err != nil {
		return err
	}
	e.calls = append(e.calls, "disable:"+h.Name())
	return nil
}

func (e *recordingEngine) ApplyPatch(p *Patch) error {
	if err := e.failApply[p.Address()]; err != nil {
		return err
	}
	e.calls = append(e.calls, fmt.Sprintf("apply:%#x", p.Address()))
	return nil
}

func (e *recordingEngine) RestorePatch(p *Patch) error {
	if err := e.failRestore[p.Address()]; err != nil {
		return err
	}
	e.calls = append(e.calls, fmt.Sprintf("restore:%#x", p.Address()))
	return nil
}

// recordingSink collects "module:kind" strings.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Post(m *Module, kind EventKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, m.ID()+":"+string(kind))
}

func (s *recordingSink) forModule(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	prefix := id + ":"
	for _, e := range s.events {
		if len(e) > len(prefix) && e[:len(prefix)] == prefix {
			out = append(out, e[len(prefix):])
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// testHarness wires a Loader to fakes rooted in a temp directory.
type testHarness struct {
	t        *testing.T
	dir      string
	loader   *Loader
	archives *fakeArchives
	binaries *fakeBinaryLoader
	engine   *recordingEngine
	sink     *recordingSink
	logger   *TestLogger
}

func newTestHarness(t *testing.T, configure ...func(*LoaderConfig)) *testHarness {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultLoaderConfig(dir)
	for _, fn := range configure {
		fn(&cfg)
	}
	h := &testHarness{
		t:        t,
		dir:      dir,
		archives: newFakeArchives(),
		binaries: newFakeBinaryLoader(),
		engine:   newRecordingEngine(),
		sink:     &recordingSink{},
		logger:   NewTestLogger(),
	}
	loader, err := NewLoader(cfg,
		WithLogger(h.logger),
		WithEventSink(h.sink),
		WithHookEngine(h.engine),
		WithPatchEngine(h.engine),
		WithBinaryLoader(h.binaries),
		WithArchiveOpener(h.archives.open))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loader.Close() })
	h.loader = loader
	return h
}

// testInfo returns metadata of a module supporting every operation.
func testInfo(id string, deps ...DependencyInfo) ModuleInfo {
	return ModuleInfo{
		ID:                id,
		Name:              id,
		Developer:         "tester",
		Version:           "1.0.0",
		Binary:            id + ".so",
		SupportsUnloading: true,
		SupportsDisabling: true,
		Dependencies:      deps,
	}
}

func requires(id string) DependencyInfo {
	return DependencyInfo{ID: id, Required: true}
}

// writePackage creates the package file and its fake archive contents.
func (h *testHarness) writePackage(info *ModuleInfo) {
	h.t.Helper()
	pkgDir := filepath.Join(h.dir, "packages")
	require.NoError(h.t, os.MkdirAll(pkgDir, 0o755))
	info.Path = filepath.Join(pkgDir, info.ID+PackageExtension)
	require.NoError(h.t, os.WriteFile(info.Path, []byte("package"), 0o644))
	h.archives.packages[info.Path] = map[string][]byte{info.Binary: []byte("binary")}
}

// add registers a module backed by a fake package.
func (h *testHarness) add(info ModuleInfo) *Module {
	h.t.Helper()
	h.writePackage(&info)
	m, err := h.loader.AddModule(info)
	require.NoError(h.t, err)
	return m
}

// withEntry sets the entry point run when the binary of id is loaded.
func (h *testHarness) withEntry(id string, fn func(m *Module) error) {
	h.binaries.entries[id+".so"] = EntryFunc(fn)
}

// withHooks makes the entry point of id register the named hooks and one patch.
func (h *testHarness) withHooks(id string, names ...string) {
	h.withEntry(id, func(m *Module) error {
		for i, name := range names {
			if _, err := m.AddHook(name, uintptr(0x1000+i), nil); err != nil {
				return err
			}
		}
		_, err := m.AddPatch(0x2000, []byte{0x90, 0x90})
		return err
	})
}

// assertConsistent checks the state relations that hold after every operation.
func assertConsistent(t *testing.T, m *Module) {
	t.Helper()
	if m.IsEnabled() {
		assert.True(t, m.IsLoaded(), "%s enabled without a loaded binary", m.ID())
	}
	if !m.IsLoaded() {
		assert.Empty(t, m.Hooks(), "%s keeps hooks while unloaded", m.ID())
		assert.Empty(t, m.Patches(), "%s keeps patches while unloaded", m.ID())
	}
	for _, hk := range m.Hooks() {
		if hk.IsActive() {
			assert.True(t, m.IsLoaded())
		}
	}
}

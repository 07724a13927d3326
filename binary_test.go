// binary_test.go: binary loader tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticBinaryLoader(t *testing.T) {
	loader := NewStaticBinaryLoader()
	called := false
	loader.Register("core.so", EntryFunc(func(*Module) error {
		called = true
		return nil
	}))

	bin, err := loader.Load(filepath.Join("tmp", "dev.core", "core.so"))
	require.NoError(t, err)
	entry, err := bin.EntryPoint()
	require.NoError(t, err)
	require.NoError(t, entry.OnLoad(nil))
	assert.True(t, called)
	assert.NoError(t, bin.Unload())

	_, err = loader.Load("other.so")
	assert.Error(t, err)
}

func TestGoPluginLoader_MissingFile(t *testing.T) {
	_, err := GoPluginLoader{}.Load(filepath.Join(t.TempDir(), "missing.so"))
	assert.Error(t, err)
}

func TestLoader_StaticBinariesDriveLifecycle(t *testing.T) {
	h := newTestHarness(t)
	static := NewStaticBinaryLoader()
	static.Register("dev.a.so", EntryFunc(func(m *Module) error {
		_, err := m.AddHook("tick", 0x10, nil)
		return err
	}))
	h.loader.env.binaries = static
	m := h.add(testInfo("dev.a"))

	require.NoError(t, m.Load())

	assert.True(t, m.IsEnabled())
	require.Len(t, m.Hooks(), 1)
	assert.Equal(t, "tick", m.Hooks()[0].Name())
}

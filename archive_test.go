// archive_test.go: zip package archive and installation tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates a zip file at path holding entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func manifestJSON(id string) string {
	return `{"id": "` + id + `", "name": "` + id + `", "developer": "t", "version": "1.0.0",
		"binary": "` + id + `.so", "supports_unloading": true, "supports_disabling": true}`
}

func TestZipArchive_ReadAndExtract(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.zip")
	writeZip(t, path, map[string]string{
		"module.json":     manifestJSON("dev.a"),
		"dev.a.so":        "binary",
		"assets/logo.txt": "logo",
	})

	archive, err := OpenZipArchive(path)
	require.NoError(t, err)
	defer func() { _ = archive.Close() }()

	assert.True(t, archive.HasEntry("dev.a.so"))
	assert.True(t, archive.HasEntry("assets/logo.txt"))
	assert.False(t, archive.HasEntry("missing"))

	data, err := archive.ReadEntry("dev.a.so")
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	_, err = archive.ReadEntry("missing")
	assert.Error(t, err)

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, archive.ExtractAllTo(out))
	assert.FileExists(t, filepath.Join(out, "dev.a.so"))
	logo, err := os.ReadFile(filepath.Join(out, "assets", "logo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "logo", string(logo))
}

func TestZipArchive_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")
	writeZip(t, path, map[string]string{"../evil.txt": "x"})

	archive, err := OpenZipArchive(path)
	if err != nil {
		// Rejected while reading the central directory
		return
	}
	defer func() { _ = archive.Close() }()

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))
	assert.Error(t, archive.ExtractAllTo(out))
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}

func TestOpenZipArchive_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := OpenZipArchive(path)

	assert.True(t, HasErrorCode(err, ErrCodePackageError))
}

func TestLoader_InstallAllFromModulesDir(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultLoaderConfig(dir)
	require.NoError(t, os.MkdirAll(cfg.ModulesDir, 0o755))

	writeZip(t, filepath.Join(cfg.ModulesDir, "a.zip"), map[string]string{
		"module.json": manifestJSON("dev.a"),
		"dev.a.so":    "binary",
	})
	writeZip(t, filepath.Join(cfg.ModulesDir, "b.zip"), map[string]string{
		"module.yaml": "id: dev.b\nname: B\ndeveloper: t\nversion: 1.0.0\nbinary: dev.b.so\nsupports_unloading: true\n",
		"dev.b.so":    "binary",
	})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ModulesDir, "broken.zip"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ModulesDir, "notes.txt"), []byte("ignored"), 0o644))

	binaries := newFakeBinaryLoader()
	logger := NewTestLogger()
	loader, err := NewLoader(cfg, WithBinaryLoader(binaries), WithLogger(logger))
	require.NoError(t, err)
	defer func() { _ = loader.Close() }()

	installed, err := loader.InstallAll()

	assert.True(t, HasErrorCode(err, ErrCodePackageError))
	assert.Len(t, installed, 2)
	assert.True(t, logger.HasMessage("WARN", "Unable to install package"))

	assert.Empty(t, loader.LoadAll())
	a := loader.Module("dev.a")
	require.NotNil(t, a)
	assert.True(t, a.IsLoaded())
	assert.FileExists(t, a.BinaryPath())
	assert.Equal(t, filepath.Join(cfg.TempDir, "dev.a"), a.TempDir())
	assert.Equal(t, filepath.Join(cfg.ModulesDir, "a.zip"), a.PackagePath())
}

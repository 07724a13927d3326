// archive.go: Module package archives
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Archive is an opened module package.
type Archive interface {
	// HasEntry reports whether a file with the given name exists in the archive
	HasEntry(name string) bool

	// ReadEntry returns the contents of a single file
	ReadEntry(name string) ([]byte, error)

	// ExtractAllTo writes every file of the archive below dir
	ExtractAllTo(dir string) error

	// Close releases the archive
	Close() error
}

// ArchiveOpener opens the package at path.
type ArchiveOpener func(path string) (Archive, error)

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 512 << 20

// ZipArchive is a zip-format module package.
type ZipArchive struct {
	path   string
	reader *zip.ReadCloser
	files  map[string]*zip.File
}

// OpenZipArchive opens a zip-format module package.
func OpenZipArchive(path string) (Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, NewPackageError(filepath.Base(path), "unable to open package "+path, err)
	}
	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[strings.TrimPrefix(f.Name, "./")] = f
	}
	return &ZipArchive{path: path, reader: r, files: files}, nil
}

// HasEntry implements Archive
func (z *ZipArchive) HasEntry(name string) bool {
	f, ok := z.files[name]
	return ok && !f.FileInfo().IsDir()
}

// ReadEntry implements Archive
func (z *ZipArchive) ReadEntry(name string) ([]byte, error) {
	f, ok := z.files[name]
	if !ok {
		return nil, fmt.Errorf("entry %q not found in %s", name, z.path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(io.LimitReader(rc, maxEntrySize))
}

// ExtractAllTo implements Archive
func (z *ZipArchive) ExtractAllTo(dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, f := range z.reader.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		// Entries must stay inside the extraction root
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extracting %q: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode) // #nosec G304 -- target checked by caller
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxEntrySize)); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Close implements Archive
func (z *ZipArchive) Close() error {
	return z.reader.Close()
}

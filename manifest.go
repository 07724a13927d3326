// manifest.go: Module manifests (package metadata)
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestNames are the file names searched for inside a module package, in order.
var ManifestNames = []string{"module.json", "module.yaml", "module.yml"}

// ModuleInfo is the package metadata of a module.
//
// Example JSON manifest:
//
//	{
//	  "id": "dev.example.overlay",
//	  "name": "Overlay",
//	  "developer": "example",
//	  "version": "1.2.0",
//	  "binary": "overlay.so",
//	  "supports_unloading": true,
//	  "supports_disabling": true,
//	  "dependencies": [
//	    {"id": "dev.example.core", "version": "^1.0.0", "required": true}
//	  ],
//	  "settings": {
//	    "opacity": {"type": "float", "default": 0.8, "min": 0, "max": 1}
//	  }
//	}
type ModuleInfo struct {
	ID                string                 `json:"id" yaml:"id"`
	Name              string                 `json:"name" yaml:"name"`
	Developer         string                 `json:"developer" yaml:"developer"`
	Description       string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Version           string                 `json:"version" yaml:"version"`
	Binary            string                 `json:"binary" yaml:"binary"`
	SupportsUnloading bool                   `json:"supports_unloading" yaml:"supports_unloading"`
	SupportsDisabling bool                   `json:"supports_disabling" yaml:"supports_disabling"`
	Dependencies      []DependencyInfo       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Settings          map[string]SettingInfo `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Path is the on-disk package location, filled in by the loader.
	Path string `json:"-" yaml:"-"`
}

// ParseManifest decodes a manifest. JSON is tried first, then YAML.
func ParseManifest(data []byte, source string) (*ModuleInfo, error) {
	var info ModuleInfo
	if err := json.Unmarshal(data, &info); err != nil {
		info = ModuleInfo{}
		if yerr := yaml.Unmarshal(data, &info); yerr != nil {
			return nil, NewManifestError(source, "failed to parse manifest as JSON or YAML", yerr)
		}
	}
	if err := info.Validate(); err != nil {
		return nil, NewManifestError(source, "manifest validation failed", err)
	}
	return &info, nil
}

// ReadPackageManifest opens a package and reads its manifest.
func ReadPackageManifest(open ArchiveOpener, path string) (*ModuleInfo, error) {
	archive, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = archive.Close() }()

	for _, name := range ManifestNames {
		if !archive.HasEntry(name) {
			continue
		}
		data, err := archive.ReadEntry(name)
		if err != nil {
			return nil, NewManifestError(path, "failed to read "+name, err)
		}
		info, err := ParseManifest(data, path)
		if err != nil {
			return nil, err
		}
		info.Path = path
		return info, nil
	}
	return nil, NewManifestError(path, "package has no manifest", nil)
}

// Validate checks required fields and that the id is safe to use as a
// directory name.
func (info *ModuleInfo) Validate() error {
	if info.ID == "" {
		return NewManifestError(info.Path, "module id is required", nil)
	}
	if err := validateModuleID(info.ID); err != nil {
		return err
	}
	if info.Binary == "" {
		return NewManifestError(info.Path, "binary name is required", nil).WithContext("module_id", info.ID)
	}
	if filepath.Base(info.Binary) != info.Binary {
		return NewManifestError(info.Path, "binary name must not contain a path", nil).
			WithContext("module_id", info.ID).
			WithContext("binary", info.Binary)
	}
	if _, err := ParseVersion(info.Version); err != nil {
		return err
	}

	seen := make(map[string]bool, len(info.Dependencies))
	for _, dep := range info.Dependencies {
		if dep.ID == "" || dep.ID == info.ID {
			return NewManifestError(info.Path, "invalid dependency id", nil).
				WithContext("module_id", info.ID).
				WithContext("dependency", dep.ID)
		}
		if seen[dep.ID] {
			return NewManifestError(info.Path, "duplicate dependency", nil).
				WithContext("module_id", info.ID).
				WithContext("dependency", dep.ID)
		}
		if err := ValidateConstraint(dep.Version); err != nil {
			return NewManifestError(info.Path, "invalid dependency version constraint", err).
				WithContext("module_id", info.ID).
				WithContext("dependency", dep.ID).
				WithContext("constraint", dep.Version)
		}
		seen[dep.ID] = true
	}

	for key, sett := range info.Settings {
		if _, err := NewSetting(key, sett); err != nil {
			return NewManifestError(info.Path, "invalid setting declaration", err).
				WithContext("module_id", info.ID).
				WithContext("setting", key)
		}
	}
	return nil
}

// validateModuleID rejects ids that could escape the save or temp directory.
func validateModuleID(id string) error {
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return NewManifestError("", "module id contains path characters", nil).WithContext("module_id", id)
	}
	for _, r := range id {
		if r < 32 || r == 127 {
			return NewManifestError("", "module id contains control character", nil).WithContext("module_id", id)
		}
	}
	if strings.ContainsAny(id, "~|&;$`()[]{}<> ") {
		return NewManifestError("", "module id contains dangerous character", nil).WithContext("module_id", id)
	}
	return nil
}

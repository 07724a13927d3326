// errors.go: structured error definitions for the module loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	stderrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for the module loader
const (
	// Package errors (1000-1099)
	ErrCodePackageError       = "PACKAGE_1001"
	ErrCodeManifestError      = "PACKAGE_1002"
	ErrCodeMissingBinaryEntry = "PACKAGE_1003"

	// Dependency errors (1100-1199)
	ErrCodeDependencyError = "DEPENDENCY_1101"

	// Lifecycle errors (1200-1299)
	ErrCodeUnsupportedOperation = "LIFECYCLE_1201"
	ErrCodeBinaryLoadError      = "LIFECYCLE_1202"

	// Hook and patch errors (1300-1399)
	ErrCodeHookError  = "HOOK_1301"
	ErrCodePatchError = "PATCH_1302"

	// Persisted data errors (1400-1499)
	ErrCodeDataError = "DATA_1401"

	// Filesystem errors (1500-1599)
	ErrCodeFilesystemError = "FS_1501"

	// Registry and configuration errors (1600-1699)
	ErrCodeRegistryError = "REGISTRY_1601"
	ErrCodeConfigError   = "CONFIG_1602"
)

// wrapOrNew keeps the cause chain when there is one.
func wrapOrNew(cause error, code errors.ErrorCode, message string) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, code, message)
	}
	return errors.New(code, message)
}

// withPath formats "prefix in path: message", dropping an empty path.
func withPath(prefix, path, message string) string {
	if path == "" {
		return prefix + ": " + message
	}
	return fmt.Sprintf("%s in %q: %s", prefix, path, message)
}

// Package error constructors

func NewPackageError(moduleID, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodePackageError, fmt.Sprintf("Package error for module %q: %s", moduleID, message)).
		WithUserMessage("The module package could not be staged").
		WithContext("module_id", moduleID).
		WithSeverity("error")
}

func NewMissingBinaryError(moduleID, binaryName string) *errors.Error {
	return errors.New(ErrCodeMissingBinaryEntry,
		fmt.Sprintf("Unable to find platform binary under the name %q in package of module %q", binaryName, moduleID)).
		WithUserMessage("The module package does not contain its platform binary").
		WithContext("module_id", moduleID).
		WithContext("binary_name", binaryName).
		WithSeverity("error")
}

func NewManifestError(path, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeManifestError, withPath("Manifest error", path, message)).
		WithUserMessage("The module manifest is invalid").
		WithContext("manifest_path", path).
		WithSeverity("error")
}

// Dependency error constructors

func NewDependencyError(moduleID string, unresolved []string) *errors.Error {
	return errors.New(ErrCodeDependencyError,
		fmt.Sprintf("Module %q has unresolved dependencies: %v", moduleID, unresolved)).
		WithUserMessage("Module has unresolved dependencies").
		WithContext("module_id", moduleID).
		WithContext("unresolved", unresolved).
		WithSeverity("error")
}

// Lifecycle error constructors

func NewUnsupportedOperationError(moduleID, operation string) *errors.Error {
	return errors.New(ErrCodeUnsupportedOperation,
		fmt.Sprintf("Module %q does not support %s", moduleID, operation)).
		WithUserMessage("The module does not support this operation").
		WithContext("module_id", moduleID).
		WithContext("operation", operation).
		WithSeverity("warning")
}

func NewBinaryLoadError(moduleID, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeBinaryLoadError, fmt.Sprintf("Binary error for module %q: %s", moduleID, message)).
		WithUserMessage("The module binary could not be loaded or unloaded").
		WithContext("module_id", moduleID).
		WithSeverity("error")
}

// Hook and patch error constructors

func NewHookError(moduleID string, hook *Hook, action string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeHookError,
		fmt.Sprintf("Unable to %s hook %q at %#x for module %q", action, hook.Name(), hook.Address(), moduleID)).
		WithUserMessage("A module hook could not be toggled").
		WithContext("module_id", moduleID).
		WithContext("hook", hook.Name()).
		WithContext("address", hook.Address()).
		WithSeverity("error")
}

func NewPatchError(moduleID string, patch *Patch, action string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodePatchError,
		fmt.Sprintf("Unable to %s patch at %#x for module %q", action, patch.Address(), moduleID)).
		WithUserMessage("A module patch could not be toggled").
		WithContext("module_id", moduleID).
		WithContext("address", patch.Address()).
		WithSeverity("error")
}

// Persisted data error constructors

func NewDataError(moduleID, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeDataError, fmt.Sprintf("Data error for module %q: %s", moduleID, message)).
		WithUserMessage("Module settings or saved values could not be processed").
		WithContext("module_id", moduleID).
		WithSeverity("error")
}

// Filesystem error constructors

func NewFilesystemError(path, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeFilesystemError, fmt.Sprintf("Filesystem error at %q: %s", path, message)).
		WithUserMessage("This might be due to insufficient permissions").
		WithContext("path", path).
		WithSeverity("error")
}

// Registry and configuration error constructors

func NewRegistryError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeRegistryError, "Registry error: "+message).
		WithUserMessage("Module registry operation failed").
		WithSeverity("error")
}

func NewConfigError(path, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigError, withPath("Configuration error", path, message)).
		WithUserMessage("Loader configuration is invalid").
		WithContext("config_path", path).
		WithSeverity("error")
}

// HasErrorCode reports whether err, or any error it wraps, is a structured
// error carrying code.
func HasErrorCode(err error, code errors.ErrorCode) bool {
	for err != nil {
		var structured *errors.Error
		if !stderrors.As(err, &structured) {
			return false
		}
		if structured.ErrorCode() == code {
			return true
		}
		err = structured.Unwrap()
	}
	return false
}

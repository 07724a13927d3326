// hooks.go: Hook and patch handles owned by a module
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// Hook is a redirection of a function at Address to module-supplied code.
// Hooks are created by a module entry point through Module.AddHook and are
// owned by that module until it unloads.
type Hook struct {
	name    string
	address uintptr
	detour  any
	active  bool
}

// Name returns the diagnostic name of the hook.
func (h *Hook) Name() string { return h.name }

// Address returns the hooked address.
func (h *Hook) Address() uintptr { return h.address }

// Detour returns the replacement the engine installs.
func (h *Hook) Detour() any { return h.detour }

// IsActive reports whether the engine currently has the hook enabled.
func (h *Hook) IsActive() bool { return h.active }

// RuntimeInfo returns diagnostic information about the hook.
func (h *Hook) RuntimeInfo() map[string]any {
	return map[string]any{
		"name":    h.name,
		"address": h.address,
		"enabled": h.active,
	}
}

// Patch is a reversible byte modification at Address.
type Patch struct {
	address  uintptr
	bytes    []byte
	original []byte
	applied  bool
}

// Address returns the patched address.
func (p *Patch) Address() uintptr { return p.address }

// Bytes returns the bytes the patch writes.
func (p *Patch) Bytes() []byte { return p.bytes }

// Original returns the bytes saved by the engine on apply, if any.
func (p *Patch) Original() []byte { return p.original }

// SetOriginal records the bytes overwritten by the patch. Engines call this
// from ApplyPatch so RestorePatch can put them back.
func (p *Patch) SetOriginal(b []byte) {
	p.original = append([]byte(nil), b...)
}

// IsApplied reports whether the engine currently has the patch applied.
func (p *Patch) IsApplied() bool { return p.applied }

// RuntimeInfo returns diagnostic information about the patch.
func (p *Patch) RuntimeInfo() map[string]any {
	return map[string]any{
		"address": p.address,
		"size":    len(p.bytes),
		"applied": p.applied,
	}
}

// HookEngine performs the actual call redirection.
type HookEngine interface {
	EnableHook(h *Hook) error
	DisableHook(h *Hook) error
}

// PatchEngine performs the actual byte rewriting.
type PatchEngine interface {
	ApplyPatch(p *Patch) error
	RestorePatch(p *Patch) error
}

// nopEngine accepts every request. It is the default for hosts whose modules
// do not install hooks or patches.
type nopEngine struct{}

func (nopEngine) EnableHook(*Hook) error    { return nil }
func (nopEngine) DisableHook(*Hook) error   { return nil }
func (nopEngine) ApplyPatch(*Patch) error   { return nil }
func (nopEngine) RestorePatch(*Patch) error { return nil }

// dependency.go: Dependency records and their resolution states
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// ResolveState is the resolution state of one dependency edge.
type ResolveState int

const (
	// StateUnloaded means the target is not installed or failed to load
	StateUnloaded ResolveState = iota
	// StateUnresolved means the target itself has unresolved dependencies
	StateUnresolved
	// StateResolved means the target was resolved during the current pass
	StateResolved
	// StateLoaded means the target is resolved and enabled
	StateLoaded
	// StateDisabled means the target is resolved but not enabled
	StateDisabled
)

// String returns the state name.
func (s ResolveState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateUnresolved:
		return "unresolved"
	case StateResolved:
		return "resolved"
	case StateLoaded:
		return "loaded"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// DependencyInfo is the declaration of a dependency in a module manifest.
type DependencyInfo struct {
	ID       string `json:"id" yaml:"id"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
	Required bool   `json:"required" yaml:"required"`
}

// Dependency is one edge from a module to a module it depends on.
//
// The record never owns its target: it keeps the target id and caches the
// result of the last registry lookup, which each resolution pass may refresh.
type Dependency struct {
	info   DependencyInfo
	state  ResolveState
	target *Module
}

func newDependency(info DependencyInfo) *Dependency {
	return &Dependency{info: info, state: StateUnloaded}
}

// ID returns the id of the target module.
func (d *Dependency) ID() string { return d.info.ID }

// VersionConstraint returns the declared version constraint, if any.
func (d *Dependency) VersionConstraint() string { return d.info.Version }

// Required reports whether the dependency must be satisfied before load.
func (d *Dependency) Required() bool { return d.info.Required }

// State returns the state computed by the last resolution pass.
func (d *Dependency) State() ResolveState { return d.state }

// IsLocated reports whether the target was found in the registry.
func (d *Dependency) IsLocated() bool { return d.target != nil }

// IsUnresolved reports whether this edge blocks its owner from loading.
func (d *Dependency) IsUnresolved() bool {
	return d.info.Required &&
		(d.state == StateUnloaded || d.state == StateUnresolved || d.state == StateDisabled)
}

// locate looks the target up if it is not known yet. A target whose version
// does not satisfy the declared constraint is treated as absent.
func (d *Dependency) locate(reg Registry, owner *Module) {
	if d.target != nil {
		return
	}
	target := reg.FindByID(d.info.ID)
	if target == nil {
		return
	}
	if d.info.Version != "" && !target.Version().SatisfiesConstraint(d.info.Version) {
		owner.logger.Warn("Dependency version does not satisfy constraint",
			"dependency", d.info.ID,
			"constraint", d.info.Version,
			"found", target.Version().String())
		return
	}
	d.target = target
}

// forget drops the cached target, e.g. after the target was removed.
func (d *Dependency) forget() {
	d.target = nil
}

// resolver.go: Dependency resolution across the module graph
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// Registry is the view of the module set used by the resolver.
type Registry interface {
	// FindByID returns the registered module with id, or nil
	FindByID(id string) *Module

	// ForEachModule calls fn for every registered module
	ForEachModule(fn func(m *Module))

	// NotifyDependencyGraphChanged requests a resolution pass
	NotifyDependencyGraphChanged()
}

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

// resolutionPass walks the dependency graph once. The visit state makes the
// pass idempotent per module and turns back edges into unresolved edges.
type resolutionPass struct {
	registry Registry
	metrics  *LoaderMetrics
	visits   map[*Module]visitState
}

func newResolutionPass(registry Registry, metrics *LoaderMetrics) *resolutionPass {
	return &resolutionPass{
		registry: registry,
		metrics:  metrics,
		visits:   make(map[*Module]visitState),
	}
}

// run resolves every registered module.
func (p *resolutionPass) run() {
	p.registry.ForEachModule(func(m *Module) {
		p.resolve(m)
	})
}

// resolve updates the dependency states of m, depth first, loading modules
// that became resolved and unloading m when a required edge is unresolved.
// It reports whether m has unresolved dependencies.
func (p *resolutionPass) resolve(m *Module) bool {
	if p.visits[m] != unvisited {
		return m.HasUnresolvedDependencies()
	}
	p.visits[m] = visiting
	defer func() { p.visits[m] = visited }()

	hasUnresolved := false
	for _, dep := range m.deps {
		dep.locate(p.registry, m)

		if target := dep.target; target != nil {
			p.resolveEdge(m, dep, target)
		} else {
			dep.state = StateUnloaded
		}

		if dep.IsUnresolved() {
			hasUnresolved = true
			m.resolved = false
			if err := m.unload(); err != nil {
				m.logger.Warn("Unable to unload module with unresolved dependency",
					"dependency", dep.ID(),
					"state", dep.state.String(),
					"error", err)
			}
		}
	}

	if !hasUnresolved && !m.resolved {
		m.logger.Debug("All dependencies found")
		m.resolved = true
		if m.shouldLoad {
			m.logger.Debug("Resolved, loading")
			if err := m.load(); err != nil {
				m.logger.Error("Error loading", "error", err)
			}
		} else {
			m.logger.Debug("Resolved, but not loading since it is not meant to run")
		}
	}
	return hasUnresolved
}

func (p *resolutionPass) resolveEdge(m *Module, dep *Dependency, target *Module) {
	if p.visits[target] == visiting {
		p.metrics.DependencyCycles.Add(1)
		m.logger.Warn("Dependency cycle detected", "dependency", dep.ID())
		dep.state = StateUnresolved
		return
	}

	p.resolve(target)

	switch {
	case target.HasUnresolvedDependencies():
		dep.state = StateUnresolved
	case !target.resolved:
		target.resolved = true
		dep.state = StateResolved
		if err := target.load(); err != nil {
			dep.state = StateUnloaded
			target.logger.Error("Unable to load dependency", "dependent", m.ID(), "error", err)
		}
	case target.enabled:
		dep.state = StateLoaded
	default:
		dep.state = StateDisabled
	}
}

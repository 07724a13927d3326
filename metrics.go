// metrics.go: Operational counters of the loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import "sync/atomic"

// LoaderMetrics tracks lifecycle activity. Counters are atomic so they can be
// read from monitoring goroutines while the control goroutine updates them.
type LoaderMetrics struct {
	ModulesLoaded     atomic.Int64
	ModulesUnloaded   atomic.Int64
	LoadFailures      atomic.Int64
	ResolutionPasses  atomic.Int64
	DependencyCycles  atomic.Int64
	DataErrors        atomic.Int64
	SettingsReloads   atomic.Int64
	UnconvergedSweeps atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of LoaderMetrics.
type MetricsSnapshot struct {
	ModulesLoaded     int64 `json:"modules_loaded"`
	ModulesUnloaded   int64 `json:"modules_unloaded"`
	LoadFailures      int64 `json:"load_failures"`
	ResolutionPasses  int64 `json:"resolution_passes"`
	DependencyCycles  int64 `json:"dependency_cycles"`
	DataErrors        int64 `json:"data_errors"`
	SettingsReloads   int64 `json:"settings_reloads"`
	UnconvergedSweeps int64 `json:"unconverged_sweeps"`
}

// Snapshot returns the current counter values.
func (lm *LoaderMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ModulesLoaded:     lm.ModulesLoaded.Load(),
		ModulesUnloaded:   lm.ModulesUnloaded.Load(),
		LoadFailures:      lm.LoadFailures.Load(),
		ResolutionPasses:  lm.ResolutionPasses.Load(),
		DependencyCycles:  lm.DependencyCycles.Load(),
		DataErrors:        lm.DataErrors.Load(),
		SettingsReloads:   lm.SettingsReloads.Load(),
		UnconvergedSweeps: lm.UnconvergedSweeps.Load(),
	}
}

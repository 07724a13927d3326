// module_data_test.go: persisted settings and saved values tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func dataInfo(id string) ModuleInfo {
	info := testInfo(id)
	info.Settings = map[string]SettingInfo{
		"opacity": {Type: SettingFloat, Default: 0.5, Min: floatPtr(0), Max: floatPtr(1)},
		"title":   {Type: SettingString, Default: "overlay"},
		"enabled": {Type: SettingBool, Default: true},
	}
	return info
}

func TestModuleData_RoundTripAcrossLoaders(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(dataInfo("dev.a"))
	require.NoError(t, m.Load())

	require.NoError(t, m.Setting("opacity").Load(json.RawMessage("0.75")))
	require.NoError(t, m.SetSavedValue("launches", 3))
	require.NoError(t, m.SetSavedValue("last-level", map[string]any{"id": 42}))
	require.NoError(t, m.Unload())

	raw, err := os.ReadFile(m.SettingsPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"opacity\": 0.75")

	second, err := NewLoader(h.loader.Config(),
		WithLogger(NewTestLogger()),
		WithArchiveOpener(h.archives.open),
		WithBinaryLoader(h.binaries))
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	m2, err := second.AddModule(m.Info())
	require.NoError(t, err)
	require.NoError(t, m2.Load())

	assert.Equal(t, 0.75, GetSettingValue(m2, "opacity", 0.0))
	assert.Equal(t, "overlay", GetSettingValue(m2, "title", ""))
	assert.Equal(t, 3, GetSavedValue(m2, "launches", 0))
	level := GetSavedValue(m2, "last-level", map[string]int{})
	assert.Equal(t, 42, level["id"])
}

func TestModuleData_UnknownSettingIsSkipped(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(dataInfo("dev.a"))
	require.NoError(t, os.WriteFile(m.SettingsPath(), []byte(`{"bogus": 1, "opacity": 0.9}`), 0o644))

	require.NoError(t, m.Load())

	assert.True(t, h.logger.HasMessage("WARN", "Encountered unknown setting while loading settings"))
	assert.Equal(t, 0.9, GetSettingValue(m, "opacity", 0.0))
	assert.Zero(t, h.loader.Metrics().DataErrors)
}

func TestModuleData_LoadErrorsDoNotBlockLoading(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		saved    string
	}{
		{name: "OutOfRangeSetting", settings: `{"opacity": 4.0}`},
		{name: "WrongSettingType", settings: `{"title": 12}`},
		{name: "MalformedSettings", settings: `{"opacity": `},
		{name: "MalformedSavedValues", saved: `[1, 2`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			m := h.add(dataInfo("dev.a"))
			if tt.settings != "" {
				require.NoError(t, os.WriteFile(m.SettingsPath(), []byte(tt.settings), 0o644))
			}
			if tt.saved != "" {
				require.NoError(t, os.WriteFile(m.SavedValuesPath(), []byte(tt.saved), 0o644))
			}

			require.NoError(t, m.Load())

			assert.True(t, m.IsLoaded())
			assert.True(t, m.IsEnabled())
			assert.True(t, h.logger.HasMessage("WARN", "Unable to load data"))
			assert.Equal(t, int64(1), h.loader.Metrics().DataErrors)
			assert.Equal(t, 0.5, GetSettingValue(m, "opacity", 0.0))
		})
	}
}

func TestModuleData_NullSavedValues(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(dataInfo("dev.a"))
	require.NoError(t, os.WriteFile(m.SavedValuesPath(), []byte("null"), 0o644))

	require.NoError(t, m.Load())
	require.NoError(t, m.SetSavedValue("k", "v"))

	assert.Len(t, m.SavedValues(), 1)
}

func TestModuleData_SavedValuesMustBeObject(t *testing.T) {
	for _, doc := range []string{`[1, 2]`, `"text"`, `42`} {
		t.Run(doc, func(t *testing.T) {
			h := newTestHarness(t)
			m := h.add(dataInfo("dev.a"))
			require.NoError(t, os.WriteFile(m.SavedValuesPath(), []byte(doc), 0o644))

			require.NoError(t, m.Load())
			assert.Equal(t, int64(1), h.loader.Metrics().DataErrors)
			assert.Empty(t, m.SavedValues())

			err := m.loadData()
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeDataError))
			assert.Contains(t, err.Error(), "must be a JSON object")
		})
	}
}

func TestModuleData_SaveWritesBothDocuments(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(dataInfo("dev.a"))

	require.NoError(t, m.SaveData())

	var settings map[string]any
	raw, err := os.ReadFile(m.SettingsPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &settings))
	assert.Equal(t, map[string]any{"opacity": 0.5, "title": "overlay", "enabled": true}, settings)

	raw, err = os.ReadFile(m.SavedValuesPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
	assert.Equal(t, []string{"data_saved"}, h.sink.forModule("dev.a"))
}

func TestModuleData_GetSavedValueFallsBack(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(dataInfo("dev.a"))
	require.NoError(t, m.SetSavedValue("name", "alice"))

	assert.Equal(t, 7, GetSavedValue(m, "missing", 7))
	assert.Equal(t, 7, GetSavedValue(m, "name", 7), "type mismatch falls back")
	assert.Equal(t, "alice", GetSavedValue(m, "name", ""))

	_, ok := m.SavedValue("name")
	assert.True(t, ok)
}

func TestModuleData_ReloadSettings(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(dataInfo("dev.a"))

	// Not loaded: nothing is read
	require.NoError(t, os.WriteFile(m.SettingsPath(), []byte(`{"opacity": 0.2}`), 0o644))
	require.NoError(t, m.ReloadSettings())
	assert.Equal(t, 0.5, GetSettingValue(m, "opacity", 0.0))

	require.NoError(t, m.Load())
	assert.Equal(t, 0.2, GetSettingValue(m, "opacity", 0.0))

	require.NoError(t, os.WriteFile(m.SettingsPath(), []byte(`{"opacity": 0.3}`), 0o644))
	require.NoError(t, m.ReloadSettings())
	assert.Equal(t, 0.3, GetSettingValue(m, "opacity", 0.0))

	require.NoError(t, os.WriteFile(m.SettingsPath(), []byte(`{"opacity": 3}`), 0o644))
	err := m.ReloadSettings()
	assert.True(t, HasErrorCode(err, ErrCodeDataError))
}

// module_data.go: Persisted settings and saved values of a module
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

const (
	settingsFileName = "settings.json"
	savedFileName    = "saved.json"
)

// SettingsPath returns the location of the settings document.
func (m *Module) SettingsPath() string { return filepath.Join(m.saveDir, settingsFileName) }

// SavedValuesPath returns the location of the saved-values document.
func (m *Module) SavedValuesPath() string { return filepath.Join(m.saveDir, savedFileName) }

// SavedValue returns the raw JSON stored under key.
func (m *Module) SavedValue(key string) (json.RawMessage, bool) {
	v, ok := m.saved[key]
	return v, ok
}

// SetSavedValue stores value under key. It is written to disk on the next save.
func (m *Module) SetSavedValue(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return NewDataError(m.ID(), "unable to encode saved value "+key, err)
	}
	m.saved[key] = raw
	return nil
}

// SavedValues returns a copy of the saved-values document.
func (m *Module) SavedValues() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m.saved))
	for k, v := range m.saved {
		out[k] = v
	}
	return out
}

// GetSavedValue decodes the saved value under key, or returns def when it is
// missing or does not decode into T.
func GetSavedValue[T any](m *Module, key string, def T) T {
	raw, ok := m.saved[key]
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// SaveData writes settings and saved values to the module save directory.
func (m *Module) SaveData() error {
	return m.saveData()
}

// ReloadSettings re-reads the settings document of a loaded module.
func (m *Module) ReloadSettings() error {
	if !m.binaryLoaded {
		return nil
	}
	return m.loadSettings()
}

// loadData reads both documents. A parse failure of either aborts the step.
func (m *Module) loadData() error {
	m.env.events.Post(m, EventDataLoaded)

	if err := m.loadSettings(); err != nil {
		return err
	}

	data, ok, err := readIfExists(m.SavedValuesPath())
	if err != nil {
		return NewDataError(m.ID(), "unable to read saved values", err)
	}
	if !ok {
		return nil
	}
	var doc json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return NewDataError(m.ID(), "unable to parse saved values", err)
	}
	// Saved values are addressed by key, so the document must be an object.
	if trimmed := bytes.TrimSpace(doc); len(trimmed) > 0 && trimmed[0] != '{' && !bytes.Equal(trimmed, []byte("null")) {
		return NewDataError(m.ID(), "saved values must be a JSON object", nil)
	}
	saved := make(map[string]json.RawMessage)
	if err := json.Unmarshal(doc, &saved); err != nil {
		return NewDataError(m.ID(), "unable to parse saved values", err)
	}
	if saved == nil {
		saved = make(map[string]json.RawMessage)
	}
	m.saved = saved
	return nil
}

// loadSettings applies the settings document. Unknown keys are skipped with a
// warning; a value its setting rejects aborts the load.
func (m *Module) loadSettings() error {
	data, ok, err := readIfExists(m.SettingsPath())
	if err != nil {
		return NewDataError(m.ID(), "unable to read settings", err)
	}
	if !ok {
		return nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return NewDataError(m.ID(), "unable to parse settings", err)
	}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sett := m.settings[key]
		if sett == nil {
			m.logger.Warn("Encountered unknown setting while loading settings", "setting", key)
			continue
		}
		if err := sett.Load(doc[key]); err != nil {
			return NewDataError(m.ID(), "unable to load value for setting \""+key+"\"", err)
		}
	}
	return nil
}

func (m *Module) saveData() error {
	m.env.events.Post(m, EventDataSaved)

	doc := make(map[string]json.RawMessage, len(m.settings))
	for _, key := range m.keys {
		raw, err := m.settings[key].Save()
		if err != nil {
			return NewDataError(m.ID(), "unable to save setting \""+key+"\"", err)
		}
		doc[key] = raw
	}
	if err := writeJSONDocument(m.SettingsPath(), doc); err != nil {
		return NewDataError(m.ID(), "unable to write settings", err)
	}
	if err := writeJSONDocument(m.SavedValuesPath(), m.saved); err != nil {
		return NewDataError(m.ID(), "unable to write saved values", err)
	}
	return nil
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is inside the module save directory
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// writeJSONDocument rewrites path in full with 4-space indentation. The
// document is written to a sibling file first and renamed into place.
func writeJSONDocument(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "    "); err != nil {
		return err
	}
	buf.WriteByte('\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

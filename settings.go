// settings.go: Typed module settings declared in the manifest
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"fmt"
	"math"
)

// SettingType names the value type of a declared setting.
type SettingType string

const (
	SettingBool   SettingType = "bool"
	SettingInt    SettingType = "int"
	SettingFloat  SettingType = "float"
	SettingString SettingType = "string"
)

// SettingInfo declares one setting in a module manifest.
type SettingInfo struct {
	Type        SettingType `json:"type" yaml:"type"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any         `json:"default,omitempty" yaml:"default,omitempty"`
	Min         *float64    `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64    `json:"max,omitempty" yaml:"max,omitempty"`
}

// Setting is a single typed configuration value of a module.
//
// Load parses and validates a raw serialized value; Save serializes the
// current value. The loader only decides when either happens.
type Setting interface {
	Key() string
	Type() SettingType
	Load(raw json.RawMessage) error
	Save() (json.RawMessage, error)
	Value() any
	Reset()
}

type typedSetting[T bool | int64 | float64 | string] struct {
	key      string
	kind     SettingType
	value    T
	def      T
	validate func(T) error
}

func (s *typedSetting[T]) Key() string       { return s.key }
func (s *typedSetting[T]) Type() SettingType { return s.kind }
func (s *typedSetting[T]) Value() any        { return s.value }
func (s *typedSetting[T]) Reset()            { s.value = s.def }

func (s *typedSetting[T]) Load(raw json.RawMessage) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("setting %q expects %s: %w", s.key, s.kind, err)
	}
	if s.validate != nil {
		if err := s.validate(v); err != nil {
			return err
		}
	}
	s.value = v
	return nil
}

func (s *typedSetting[T]) Save() (json.RawMessage, error) {
	return json.Marshal(s.value)
}

func rangeCheck(key string, info SettingInfo) func(float64) error {
	return func(v float64) error {
		if info.Min != nil && v < *info.Min {
			return fmt.Errorf("setting %q value %v is below minimum %v", key, v, *info.Min)
		}
		if info.Max != nil && v > *info.Max {
			return fmt.Errorf("setting %q value %v is above maximum %v", key, v, *info.Max)
		}
		return nil
	}
}

// NewSetting builds a setting from its manifest declaration.
func NewSetting(key string, info SettingInfo) (Setting, error) {
	switch info.Type {
	case SettingBool:
		def, ok := info.Default.(bool)
		if info.Default != nil && !ok {
			return nil, fmt.Errorf("setting %q default %v is not a bool", key, info.Default)
		}
		return &typedSetting[bool]{key: key, kind: SettingBool, value: def, def: def}, nil

	case SettingInt:
		f, err := numericDefault(key, info.Default)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("setting %q default %v is not an integer", key, f)
		}
		check := rangeCheck(key, info)
		def := int64(f)
		return &typedSetting[int64]{key: key, kind: SettingInt, value: def, def: def,
			validate: func(v int64) error { return check(float64(v)) }}, nil

	case SettingFloat:
		def, err := numericDefault(key, info.Default)
		if err != nil {
			return nil, err
		}
		return &typedSetting[float64]{key: key, kind: SettingFloat, value: def, def: def,
			validate: rangeCheck(key, info)}, nil

	case SettingString:
		def, ok := info.Default.(string)
		if info.Default != nil && !ok {
			return nil, fmt.Errorf("setting %q default %v is not a string", key, info.Default)
		}
		return &typedSetting[string]{key: key, kind: SettingString, value: def, def: def}, nil

	default:
		return nil, fmt.Errorf("setting %q has unknown type %q", key, info.Type)
	}
}

// numericDefault accepts the number types produced by the JSON and YAML decoders.
func numericDefault(key string, v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("setting %q default %v is not a number", key, v)
	}
}

// version.go: Semantic versions for modules and dependency constraints
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"strconv"
	"strings"
)

// Version is a semantic version with comparison capabilities.
//
// Example usage:
//
//	v1, _ := ParseVersion("1.2.3-beta.1+build.123")
//	v2, _ := ParseVersion("1.2.4")
//	if v1.Compare(v2) < 0 {
//	    // v1 is older
//	}
type Version struct {
	Major      uint64 `json:"major"`
	Minor      uint64 `json:"minor"`
	Patch      uint64 `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
	Build      string `json:"build,omitempty"`
	Original   string `json:"original"`
}

// ParseVersion parses a semantic version string. A leading "v" is accepted.
func ParseVersion(versionStr string) (*Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(versionStr), "v")
	if raw == "" {
		return nil, NewManifestError("", "empty version", nil)
	}

	parts := strings.SplitN(raw, ".", 3)
	if len(parts) < 3 {
		return nil, NewManifestError("", "version must have major.minor.patch form: "+versionStr, nil)
	}

	major, err := parseVersionComponent(parts[0], "major")
	if err != nil {
		return nil, err
	}
	minor, err := parseVersionComponent(parts[1], "minor")
	if err != nil {
		return nil, err
	}

	patchPart := parts[2]
	var prerelease, build string
	if idx := strings.Index(patchPart, "+"); idx >= 0 {
		build = patchPart[idx+1:]
		patchPart = patchPart[:idx]
	}
	if idx := strings.Index(patchPart, "-"); idx >= 0 {
		prerelease = patchPart[idx+1:]
		patchPart = patchPart[:idx]
	}
	patch, err := parseVersionComponent(patchPart, "patch")
	if err != nil {
		return nil, err
	}

	return &Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: prerelease,
		Build:      build,
		Original:   versionStr,
	}, nil
}

// parseVersionComponent parses a single numeric version component
func parseVersionComponent(component, componentType string) (uint64, error) {
	value, err := strconv.ParseUint(component, 10, 64)
	if err != nil {
		return 0, NewManifestError("", "invalid "+componentType+" version component", err).
			WithContext("component_value", component)
	}
	return value, nil
}

// String returns the canonical form without the build metadata.
func (v *Version) String() string {
	s := strconv.FormatUint(v.Major, 10) + "." +
		strconv.FormatUint(v.Minor, 10) + "." +
		strconv.FormatUint(v.Patch, 10)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare compares two versions. Returns -1, 0, or 1.
func (v *Version) Compare(other *Version) int {
	if r := compareComponent(v.Major, other.Major); r != 0 {
		return r
	}
	if r := compareComponent(v.Minor, other.Minor); r != 0 {
		return r
	}
	if r := compareComponent(v.Patch, other.Patch); r != 0 {
		return r
	}

	// Release > prerelease
	switch {
	case v.Prerelease == "" && other.Prerelease != "":
		return 1
	case v.Prerelease != "" && other.Prerelease == "":
		return -1
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// comparePrerelease orders dot-separated prerelease identifiers. Numeric
// identifiers compare numerically and sort before alphanumeric ones; a
// shorter list sorts first when all shared identifiers are equal.
func comparePrerelease(a, b string) int {
	ids, otherIDs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(ids) && i < len(otherIDs); i++ {
		x, xerr := strconv.ParseUint(ids[i], 10, 64)
		y, yerr := strconv.ParseUint(otherIDs[i], 10, 64)
		switch {
		case xerr == nil && yerr == nil:
			if r := compareComponent(x, y); r != 0 {
				return r
			}
		case xerr == nil:
			return -1
		case yerr == nil:
			return 1
		default:
			if r := strings.Compare(ids[i], otherIDs[i]); r != 0 {
				return r
			}
		}
	}
	return compareComponent(uint64(len(ids)), uint64(len(otherIDs)))
}

func compareComponent(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// SatisfiesConstraint checks whether the version satisfies a constraint.
//
// Supported forms:
//   - "" or "*": any version
//   - "^1.2.0": same major, at least 1.2.0
//   - "~1.2.0": same major and minor, at least 1.2.0
//   - ">=1.2.0": at least 1.2.0
//   - "1.2.0": exact match
func (v *Version) SatisfiesConstraint(constraint string) bool {
	op, target, err := parseConstraint(constraint)
	if err != nil {
		return false
	}
	if target == nil {
		return true
	}

	switch op {
	case ">=":
		return v.Compare(target) >= 0
	case "^":
		return v.Major == target.Major && v.Compare(target) >= 0
	case "~":
		return v.Major == target.Major && v.Minor == target.Minor && v.Compare(target) >= 0
	default:
		return v.Compare(target) == 0
	}
}

// ValidateConstraint reports whether constraint has one of the forms
// accepted by SatisfiesConstraint.
func ValidateConstraint(constraint string) error {
	_, _, err := parseConstraint(constraint)
	return err
}

// parseConstraint splits a constraint into its operator and version. The
// version is nil for the match-anything forms.
func parseConstraint(constraint string) (string, *Version, error) {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || constraint == "*" {
		return "", nil, nil
	}

	var op string
	for _, prefix := range []string{">=", "^", "~"} {
		if strings.HasPrefix(constraint, prefix) {
			op = prefix
			constraint = strings.TrimPrefix(constraint, prefix)
			break
		}
	}

	target, err := ParseVersion(constraint)
	if err != nil {
		return "", nil, err
	}
	return op, target, nil
}

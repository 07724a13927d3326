// panic_recovery_test.go: panic recovery tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecovery_WithStackRecover(t *testing.T) {
	logger := NewTestLogger()

	func() {
		defer withStackRecover(logger)()
		panic("test panic message")
	}()

	require.Equal(t, 1, logger.Count("ERROR"))
	assert.True(t, logger.HasMessage("ERROR", "Panic recovered"))
}

func TestPanicRecovery_NoPanicLogsNothing(t *testing.T) {
	logger := NewTestLogger()

	func() {
		defer withStackRecover(logger)()
	}()

	assert.Zero(t, logger.Count("ERROR"))
}

func TestRecoverEntryPoint(t *testing.T) {
	h := newTestHarness(t)
	m := h.add(testInfo("dev.a"))

	err := recoverEntryPoint(EntryFunc(func(*Module) error { panic("bad init") }), m)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad init"))
	assert.True(t, h.logger.HasMessage("ERROR", "Entry point panicked"))

	want := errors.New("plain failure")
	assert.Same(t, want, recoverEntryPoint(EntryFunc(func(*Module) error { return want }), m))
	assert.NoError(t, recoverEntryPoint(EntryFunc(func(*Module) error { return nil }), m))
}

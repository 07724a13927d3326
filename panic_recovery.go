// panic_recovery.go: Panic recovery with stack traces
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"runtime"
)

// withStackRecover returns a deferred function that recovers a panic and
// logs it with the stack of the panicking goroutine.
//
// Example usage:
//
//	func (b *EventBus) deliver(h ModuleEventHandler, event ModuleEvent) {
//	    defer withStackRecover(b.logger)()
//	    h(event)
//	}
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			logger.Error("Panic recovered",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// recoverEntryPoint runs a module entry point and turns a panic into an error.
func recoverEntryPoint(entry EntryPoint, m *Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			m.logger.Error("Entry point panicked", "panic", r, "stack", string(buf[:n]))
			err = fmt.Errorf("entry point panicked: %v", r)
		}
	}()
	return entry.OnLoad(m)
}

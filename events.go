// events.go: Lifecycle event notification
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// EventKind identifies a lifecycle transition.
type EventKind string

const (
	EventDataLoaded EventKind = "data_loaded"
	EventDataSaved  EventKind = "data_saved"
	EventLoaded     EventKind = "loaded"
	EventUnloaded   EventKind = "unloaded"
	EventEnabled    EventKind = "enabled"
	EventDisabled   EventKind = "disabled"
)

// EventSink receives lifecycle events. Post is fire-and-forget.
type EventSink interface {
	Post(m *Module, kind EventKind)
}

// ModuleEvent is the payload delivered to EventBus subscribers.
type ModuleEvent struct {
	Kind      EventKind `json:"kind"`
	ModuleID  string    `json:"module_id"`
	Timestamp time.Time `json:"timestamp"`
	Module    *Module   `json:"-"`
}

// ModuleEventHandler handles lifecycle events.
type ModuleEventHandler func(event ModuleEvent)

// EventBus is the default EventSink. Handlers run synchronously on the
// posting goroutine, in subscription order; a panicking handler is logged
// and does not stop delivery to the others.
type EventBus struct {
	mu       sync.RWMutex
	handlers []ModuleEventHandler
	logger   Logger
}

// NewEventBus creates an event bus that reports handler panics to logger.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &EventBus{logger: logger}
}

// Subscribe adds a handler.
func (b *EventBus) Subscribe(handler ModuleEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Post implements EventSink
func (b *EventBus) Post(m *Module, kind EventKind) {
	b.mu.RLock()
	handlers := make([]ModuleEventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	event := ModuleEvent{
		Kind:      kind,
		ModuleID:  m.ID(),
		Timestamp: timecache.CachedTime(),
		Module:    m,
	}
	for _, h := range handlers {
		b.deliver(h, event)
	}
}

func (b *EventBus) deliver(h ModuleEventHandler, event ModuleEvent) {
	defer withStackRecover(b.logger)()
	h(event)
}

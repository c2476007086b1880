// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hub is the identity and lifecycle core of the sensor
// subsystem. It assigns each physical sensor a stable instance ID for
// the time it is connected, tracks open handles, and refreshes their
// data buffers from the backend in one designated-goroutine update
// cycle.
package hub

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/sensorhub/internal/backend"
	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// PropertyStore is the consumed property-bag surface. Handles create a
// bag lazily and destroy it when closed.
type PropertyStore interface {
	CreateProperties() (sensor.PropertiesID, error)
	DestroyProperties(sensor.PropertiesID)
}

// UpdateToken proves ownership of the update cycle. Start hands exactly
// one token to its caller; Update rejects every other value with
// ErrInvalidState. The token may be passed on deliberately, but only
// one goroutine at a time may drive Update with it.
type UpdateToken struct {
	hub *Hub
	v   uint64
}

var tokenCounter uint64

// record is one identity registry entry. The descriptor outlives the
// connection: open entries keep their record pointer after a detach so
// handle metadata queries stay valid.
type record struct {
	desc   sensor.Descriptor
	tok    backend.DeviceToken
	values int
}

// openEntry is the shared refresh target for all handles opened on one
// instance ID. The update cycle polls each entry once no matter how
// many handles share it.
type openEntry struct {
	id      sensor.InstanceID
	rec     *record
	buf     []float64
	scratch []float64
	handles []*Handle
}

// event is a queued backend notification, applied to the registry at
// the start of the next update cycle.
type event struct {
	attach bool
	dev    backend.Device
	tok    backend.DeviceToken
}

// Hub owns the identity registry and the open sensor table. One mutex
// guards both, since a close can race a detach notification arriving
// from a backend goroutine.
type Hub struct {
	mu        sync.Mutex
	backend   backend.Backend
	props     PropertyStore
	nextID    sensor.InstanceID
	connected map[sensor.InstanceID]*record
	byToken   map[backend.DeviceToken]sensor.InstanceID
	order     []sensor.InstanceID
	open      map[sensor.InstanceID]*openEntry
	openLimit int
	stopped   bool

	pendingMu sync.Mutex
	pending   []event

	updating int32
	tokenV   uint64
}

// Option configures a Hub at Start.
type Option func(*Hub)

// WithOpenLimit caps the number of simultaneously open handles. Open
// fails with ErrAllocation once the cap is reached. Zero means no cap.
func WithOpenLimit(n int) Option {
	return func(h *Hub) { h.openLimit = n }
}

// Start brings up the sensor subsystem: it enumerates the backend,
// issues instance IDs in enumeration order starting at 1, and registers
// for attach/detach events. The returned UpdateToken belongs to the
// caller and is required to drive Update.
func Start(b backend.Backend, ps PropertyStore, opts ...Option) (*Hub, UpdateToken, error) {
	h := &Hub{
		backend:   b,
		props:     ps,
		nextID:    1,
		connected: make(map[sensor.InstanceID]*record),
		byToken:   make(map[backend.DeviceToken]sensor.InstanceID),
		open:      make(map[sensor.InstanceID]*openEntry),
		tokenV:    atomic.AddUint64(&tokenCounter, 1),
	}
	for _, opt := range opts {
		opt(h)
	}

	devs, err := b.Enumerate()
	if err != nil {
		return nil, UpdateToken{}, fmt.Errorf("sensor hub: backend %s enumerate: %w", b.Name(), err)
	}
	for _, dev := range devs {
		h.register(dev)
	}
	b.Notify(h)

	log.Printf("sensor hub: started on backend %s with %d sensor(s)", b.Name(), len(devs))
	return h, UpdateToken{hub: h, v: h.tokenV}, nil
}

// register allocates the next instance ID for a device. Caller holds
// h.mu or has exclusive access (Start).
func (h *Hub) register(dev backend.Device) sensor.InstanceID {
	id := h.nextID
	h.nextID++
	values := dev.Values
	if values <= 0 {
		values = 3 // motion sensors carry three axes
	}
	h.connected[id] = &record{
		desc: sensor.Descriptor{
			Name:            dev.Name,
			Type:            dev.Type,
			NonPortableType: dev.NonPortableType,
		},
		tok:    dev.Token,
		values: values,
	}
	h.byToken[dev.Token] = id
	h.order = append(h.order, id)
	return id
}

// retire removes a device from the registry without reclaiming its ID.
// Caller holds h.mu.
func (h *Hub) retire(id sensor.InstanceID) {
	rec, ok := h.connected[id]
	if !ok {
		return
	}
	delete(h.connected, id)
	delete(h.byToken, rec.tok)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// SensorAttached queues an attach notification. Called from a
// backend-owned goroutine; applied at the start of the next Update so
// registry state never changes mid-pass.
func (h *Hub) SensorAttached(dev backend.Device) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	h.pending = append(h.pending, event{attach: true, dev: dev})
}

// SensorDetached queues a detach notification.
func (h *Hub) SensorDetached(tok backend.DeviceToken) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	h.pending = append(h.pending, event{tok: tok})
}

// Sensors returns the instance IDs of all currently connected sensors
// in attach order. The slice is a fresh copy owned by the caller. An
// empty subsystem returns an empty slice, not an error.
func (h *Hub) Sensors() ([]sensor.InstanceID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil, sensor.ErrNotInitialized
	}
	ids := make([]sensor.InstanceID, len(h.order))
	copy(ids, h.order)
	return ids, nil
}

// Descriptor returns the metadata of a connected sensor. Absence is a
// valid outcome, not an error.
func (h *Hub) Descriptor(id sensor.InstanceID) (sensor.Descriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.connected[id]
	if !ok {
		return sensor.Descriptor{}, false
	}
	return rec.desc, true
}

// Name returns a connected sensor's name, or "" if id is not valid.
func (h *Hub) Name(id sensor.InstanceID) string {
	desc, ok := h.Descriptor(id)
	if !ok {
		return ""
	}
	return desc.Name
}

// TypeOf returns a connected sensor's type, or TypeInvalid if id is
// not valid.
func (h *Hub) TypeOf(id sensor.InstanceID) sensor.Type {
	desc, ok := h.Descriptor(id)
	if !ok {
		return sensor.TypeInvalid
	}
	return desc.Type
}

// NonPortableType returns the platform dependent type code, or -1 if
// id is not valid.
func (h *Hub) NonPortableType(id sensor.InstanceID) int {
	desc, ok := h.Descriptor(id)
	if !ok {
		return -1
	}
	return desc.NonPortableType
}

// Open opens a sensor for use. Opening an ID that is already open
// returns a distinct handle sharing the same refresh buffer, so the
// backend is still polled once per sensor per update.
func (h *Hub) Open(id sensor.InstanceID) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil, sensor.ErrNotInitialized
	}
	rec, ok := h.connected[id]
	if !ok {
		return nil, fmt.Errorf("open sensor %d: %w", id, sensor.ErrNotFound)
	}
	if h.openLimit > 0 && h.handleCount() >= h.openLimit {
		return nil, fmt.Errorf("open sensor %d: handle limit %d reached: %w", id, h.openLimit, sensor.ErrAllocation)
	}

	e, ok := h.open[id]
	if !ok {
		e = &openEntry{
			id:      id,
			rec:     rec,
			buf:     make([]float64, rec.values),
			scratch: make([]float64, rec.values),
		}
		h.open[id] = e
	}
	hd := &Handle{hub: h, entry: e}
	e.handles = append(e.handles, hd)
	return hd, nil
}

// handleCount totals open handles across all entries. Caller holds h.mu.
func (h *Hub) handleCount() int {
	n := 0
	for _, e := range h.open {
		n += len(e.handles)
	}
	return n
}

// FromInstanceID resolves an instance ID to an existing open handle
// without opening it again. The oldest still-open handle wins.
func (h *Hub) FromInstanceID(id sensor.InstanceID) (*Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.open[id]
	if !ok || len(e.handles) == 0 {
		return nil, false
	}
	return e.handles[0], true
}

// Update refreshes the data buffer of every open sensor from the
// backend. It must be driven with the UpdateToken returned by Start and
// never concurrently. Queued attach/detach events are applied to the
// registry before the refresh pass, so descriptor state is
// self-consistent for the whole call. A sensor that has disconnected
// since it was opened keeps its last polled values.
func (h *Hub) Update(tok UpdateToken) error {
	if tok.hub != h || tok.v == 0 || tok.v != h.tokenV {
		return sensor.ErrInvalidState
	}
	if !atomic.CompareAndSwapInt32(&h.updating, 0, 1) {
		return sensor.ErrInvalidState
	}
	defer atomic.StoreInt32(&h.updating, 0)

	h.pendingMu.Lock()
	queued := h.pending
	h.pending = nil
	h.pendingMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return sensor.ErrNotInitialized
	}

	for _, ev := range queued {
		if ev.attach {
			id := h.register(ev.dev)
			log.Printf("sensor hub: %q attached as sensor %d", ev.dev.Name, id)
		} else if id, ok := h.byToken[ev.tok]; ok {
			h.retire(id)
			log.Printf("sensor hub: sensor %d detached", id)
		}
	}

	for id, e := range h.open {
		rec, connected := h.connected[id]
		if !connected {
			continue // stale but valid: keep last known good values
		}
		n, err := h.backend.Poll(rec.tok, e.scratch)
		if err != nil {
			log.Printf("sensor hub: poll sensor %d (%s): %v", id, rec.desc.Name, err)
			continue
		}
		copy(e.buf, e.scratch[:n])
	}
	return nil
}

// Stop tears the subsystem down: every open handle is closed (releasing
// its property bag), all IDs are retired without reuse, and the backend
// is released. Operations on a stopped hub fail with ErrNotInitialized.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return sensor.ErrNotInitialized
	}
	h.stopped = true
	for _, e := range h.open {
		for _, hd := range e.handles {
			hd.release()
		}
		e.handles = nil
	}
	h.open = make(map[sensor.InstanceID]*openEntry)
	h.connected = make(map[sensor.InstanceID]*record)
	h.byToken = make(map[backend.DeviceToken]sensor.InstanceID)
	h.order = nil
	b := h.backend
	h.mu.Unlock()

	if err := b.Close(); err != nil {
		return fmt.Errorf("sensor hub: backend %s close: %w", b.Name(), err)
	}
	return nil
}

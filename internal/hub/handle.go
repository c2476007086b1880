// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hub

import (
	"fmt"

	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// Handle is a client's open session against one sensor instance ID. A
// handle stays usable after the physical sensor detaches: metadata
// queries keep answering from the descriptor and Read keeps returning
// the last polled values; only Close ends the session.
type Handle struct {
	hub     *Hub
	entry   *openEntry
	propsID sensor.PropertiesID
	closed  bool
}

// InstanceID returns the instance ID the handle was opened for, or 0
// if the handle is closed.
func (hd *Handle) InstanceID() sensor.InstanceID {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return 0
	}
	return hd.entry.id
}

// Name returns the sensor's name, or "" if the handle is closed.
func (hd *Handle) Name() string {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return ""
	}
	return hd.entry.rec.desc.Name
}

// Type returns the sensor's type, or TypeInvalid if the handle is
// closed.
func (hd *Handle) Type() sensor.Type {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return sensor.TypeInvalid
	}
	return hd.entry.rec.desc.Type
}

// NonPortableType returns the platform dependent type code, or -1 if
// the handle is closed.
func (hd *Handle) NonPortableType() int {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return -1
	}
	return hd.entry.rec.desc.NonPortableType
}

// Values returns how many values one reading of the sensor carries, or
// 0 if the handle is closed.
func (hd *Handle) Values() int {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return 0
	}
	return len(hd.entry.buf)
}

// Properties returns the handle's property bag ID, creating the bag on
// first call. Each handle owns its own bag; closing the handle destroys
// it.
func (hd *Handle) Properties() (sensor.PropertiesID, error) {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return 0, sensor.ErrInvalidHandle
	}
	if hd.propsID != 0 {
		return hd.propsID, nil
	}
	id, err := hd.hub.props.CreateProperties()
	if err != nil {
		return 0, fmt.Errorf("sensor %d properties: %w: %v", hd.entry.id, sensor.ErrAllocation, err)
	}
	hd.propsID = id
	return id, nil
}

// Read copies up to len(dst) values of the sensor's current data into
// dst and returns how many were written. The data is whatever the last
// update cycle polled; Read never blocks on hardware.
func (hd *Handle) Read(dst []float64) (int, error) {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return 0, sensor.ErrInvalidHandle
	}
	return copy(dst, hd.entry.buf), nil
}

// Close ends the session and releases the handle's property bag.
// Closing an already-closed handle is a no-op. Once the last handle on
// a sensor is closed the hub stops polling it.
func (hd *Handle) Close() error {
	hd.hub.mu.Lock()
	defer hd.hub.mu.Unlock()
	if hd.closed {
		return nil
	}
	e := hd.entry
	hd.release()
	for i, other := range e.handles {
		if other == hd {
			e.handles = append(e.handles[:i], e.handles[i+1:]...)
			break
		}
	}
	if len(e.handles) == 0 {
		delete(hd.hub.open, e.id)
	}
	return nil
}

// release marks the handle closed and destroys its property bag.
// Caller holds hub.mu.
func (hd *Handle) release() {
	hd.closed = true
	if hd.propsID != 0 {
		hd.hub.props.DestroyProperties(hd.propsID)
		hd.propsID = 0
	}
}

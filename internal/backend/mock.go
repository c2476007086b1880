// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package backend

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// Mock is a scriptable backend for tests and the -mock publisher mode.
// Attach, Detach and SetReading drive it from test code; Synthesize
// makes readings wander smoothly over time so the mock is useful as a
// stand-in data source without any scripting.
type Mock struct {
	mu       sync.Mutex
	sink     EventSink
	devices  map[DeviceToken]Device
	readings map[DeviceToken][]float64
	next     DeviceToken
	synth    bool
	start    time.Time
	closed   bool
}

// NewMock returns an empty mock backend.
func NewMock() *Mock {
	return &Mock{
		devices:  make(map[DeviceToken]Device),
		readings: make(map[DeviceToken][]float64),
		next:     1,
		start:    time.Now(),
	}
}

// NewSynthesized returns a mock backend pre-populated with one
// accelerometer and one gyroscope whose readings change smoothly over
// time.
func NewSynthesized() *Mock {
	m := NewMock()
	m.synth = true
	m.Attach("Mock Accelerometer", sensor.TypeAccel, 3)
	m.Attach("Mock Gyroscope", sensor.TypeGyro, 3)
	return m
}

func (m *Mock) Name() string { return "mock" }

// Attach adds a device and notifies the sink, if any. It returns the
// backend-local token for later Detach/SetReading calls.
func (m *Mock) Attach(name string, typ sensor.Type, values int) DeviceToken {
	m.mu.Lock()
	tok := m.next
	m.next++
	dev := Device{
		Token:           tok,
		Name:            name,
		Type:            typ,
		NonPortableType: -1,
		Values:          values,
	}
	m.devices[tok] = dev
	m.readings[tok] = make([]float64, values)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink.SensorAttached(dev)
	}
	return tok
}

// Detach removes a device and notifies the sink, if any.
func (m *Mock) Detach(tok DeviceToken) {
	m.mu.Lock()
	_, ok := m.devices[tok]
	delete(m.devices, tok)
	delete(m.readings, tok)
	sink := m.sink
	m.mu.Unlock()

	if ok && sink != nil {
		sink.SensorDetached(tok)
	}
}

// SetReading replaces the newest reading of a device.
func (m *Mock) SetReading(tok DeviceToken, values ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[tok]; ok {
		m.readings[tok] = append([]float64(nil), values...)
	}
}

func (m *Mock) Enumerate() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("mock backend: closed")
	}
	devs := make([]Device, 0, len(m.devices))
	// enumeration order follows token order, matching attach order
	for tok := DeviceToken(1); tok < m.next; tok++ {
		if dev, ok := m.devices[tok]; ok {
			devs = append(devs, dev)
		}
	}
	return devs, nil
}

func (m *Mock) Poll(tok DeviceToken, dst []float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals, ok := m.readings[tok]
	if !ok {
		return 0, fmt.Errorf("mock backend: unknown device token %d", tok)
	}
	if m.synth {
		elapsed := time.Since(m.start).Seconds()
		for i := range vals {
			vals[i] = math.Sin(elapsed + float64(tok) + float64(i)*0.5)
		}
		if dev := m.devices[tok]; dev.Type == sensor.TypeAccel && len(vals) >= 2 {
			vals[1] += sensor.StandardGravity // resting device reads gravity on Y
		}
	}
	return copy(dst, vals), nil
}

func (m *Mock) Notify(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sink = nil
	return nil
}

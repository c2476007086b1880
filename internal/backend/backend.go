// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package backend holds the platform-specific sensor adapters. A
// backend enumerates the physical sensors it can see, reports
// attach/detach, and is polled for the newest raw reading of a sensor.
// Everything above this package deals in stable instance IDs; the
// backend deals in its own short-lived device tokens.
package backend

import "github.com/relabs-tech/sensorhub/internal/sensor"

// DeviceToken is a backend-local identity for one physical sensor. It
// is only meaningful to the backend that issued it and may be reused
// after a detach; stable identity is layered on top by the hub.
type DeviceToken uint32

// Device describes one physical sensor a backend can poll.
type Device struct {
	Token DeviceToken
	Name  string
	Type  sensor.Type

	// NonPortableType is the platform dependent type code, -1 if the
	// backend has none to offer.
	NonPortableType int

	// Values is how many float values one reading of this sensor carries.
	Values int
}

// EventSink receives asynchronous attach/detach notifications. Backends
// call it from their own goroutines; implementations must be safe for
// that.
type EventSink interface {
	SensorAttached(Device)
	SensorDetached(DeviceToken)
}

// Backend is the narrow surface a platform adapter must offer.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Enumerate reports every physical sensor currently visible.
	Enumerate() ([]Device, error)

	// Poll copies the newest raw reading of the device into dst and
	// returns the number of values written. Poll must not block beyond
	// bounded latency.
	Poll(tok DeviceToken, dst []float64) (int, error)

	// Notify registers the sink for attach/detach events. Backends that
	// cannot hotplug may ignore the sink.
	Notify(sink EventSink)

	// Close releases the backend's hardware resources.
	Close() error
}

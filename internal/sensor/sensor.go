// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensor

import "errors"

// StandardGravity is standard gravity in m/s². Accelerometers report SI
// acceleration including gravity, so a device at rest reads
// StandardGravity away from the center of the earth (positive Y).
const StandardGravity = 9.80665

// InstanceID names one physical sensor for the time it is connected.
// IDs start at 1 and increment; an ID is never reused for the lifetime
// of the process, even after the sensor disconnects. 0 is invalid.
type InstanceID uint32

// IsValid reports whether id refers to a sensor that was ever issued.
func (id InstanceID) IsValid() bool { return id != 0 }

// PropertiesID names a property bag owned by an open sensor handle.
// 0 means no bag has been created yet.
type PropertiesID uint32

// Type is the logical kind of a sensor. Additional platform sensors
// surface as TypeUnknown with a non-portable type code.
type Type int

const (
	// TypeInvalid is returned when querying a sensor that does not exist.
	TypeInvalid Type = iota - 1
	// TypeUnknown is a connected sensor of an unrecognized kind.
	TypeUnknown
	// TypeAccel is an accelerometer, reporting m/s² per axis.
	TypeAccel
	// TypeGyro is a gyroscope, reporting rad/s per axis.
	TypeGyro
	// TypeAccelLeft is the accelerometer of a left-hand controller.
	TypeAccelLeft
	// TypeGyroLeft is the gyroscope of a left-hand controller.
	TypeGyroLeft
	// TypeAccelRight is the accelerometer of a right-hand controller.
	TypeAccelRight
	// TypeGyroRight is the gyroscope of a right-hand controller.
	TypeGyroRight
)

func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeAccel:
		return "accel"
	case TypeGyro:
		return "gyro"
	case TypeAccelLeft:
		return "accel_l"
	case TypeGyroLeft:
		return "gyro_l"
	case TypeAccelRight:
		return "accel_r"
	case TypeGyroRight:
		return "gyro_r"
	default:
		return "unknown"
	}
}

// Descriptor is the static metadata of a connected sensor. One
// descriptor exists per live instance ID and stays immutable for the
// sensor's connected lifetime.
type Descriptor struct {
	Name string
	Type Type

	// NonPortableType is the platform dependent type code, -1 when the
	// backend has none.
	NonPortableType int
}

// Reading is one published sensor sample, suitable for JSON and MQTT.
type Reading struct {
	Instance InstanceID `json:"instance"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Values   []float64  `json:"values"`
	Time     string     `json:"time"` // RFC3339
}

// Error taxonomy of the sensor subsystem. Lookups where "not found" is
// a normal outcome (enumeration, descriptor queries) report absence
// instead of returning one of these.
var (
	// ErrNotInitialized: the subsystem was never started or has been stopped.
	ErrNotInitialized = errors.New("sensor subsystem not initialized")
	// ErrNotFound: the instance ID is unknown or no longer connected.
	ErrNotFound = errors.New("sensor not connected")
	// ErrInvalidHandle: the handle was already closed.
	ErrInvalidHandle = errors.New("sensor handle is closed")
	// ErrAllocation: a handle or property bag could not be created.
	ErrAllocation = errors.New("sensor resource allocation failed")
	// ErrInvalidState: the update cycle was driven without its ownership
	// token, or from two goroutines at once.
	ErrInvalidState = errors.New("sensor update cycle ownership violation")
)

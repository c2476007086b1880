// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"github.com/relabs-tech/sensorhub/internal/backend"
	"github.com/relabs-tech/sensorhub/internal/config"
)

// OpenBackend opens the sensor backend selected by the BACKEND config
// key.
func OpenBackend() (backend.Backend, error) {
	cfg := config.Get()
	switch cfg.Backend {
	case "mpu9250":
		return backend.NewMPU9250()
	case "serial":
		return backend.NewSerial()
	case "mock":
		return backend.NewSynthesized(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package backend

// MPU-9250 register addresses used by the SPI backend.
const (
	regSmplrtDiv   = 0x19 // Sample Rate Divider
	regConfig      = 0x1A // Configuration (DLPF)
	regGyroConfig  = 0x1B // Gyroscope Configuration
	regAccelConfig = 0x1C // Accelerometer Configuration
	regAccelXoutH  = 0x3B // Accelerometer X-Axis High Byte (burst start)
	regGyroXoutH   = 0x43 // Gyroscope X-Axis High Byte (burst start)
	regPwrMgmt1    = 0x6B // Power Management 1
	regWhoAmI      = 0x75 // Device ID
)

const (
	pwrMgmt1Reset  = 0x80 // H_RESET
	pwrMgmt1ClkPLL = 0x01 // auto-select best clock source
	whoAmIMPU9250  = 0x71
	spiReadFlag    = 0x80 // OR'd into the register address for reads
	rawFullScale   = 32768.0
	degToRad       = 0.017453292519943295 // pi / 180
)

// accelFullScaleG maps ACCEL_FS_SEL (0-3) to the range in g.
var accelFullScaleG = [4]float64{2, 4, 8, 16}

// gyroFullScaleDeg maps GYRO_FS_SEL (0-3) to the range in °/s.
var gyroFullScaleDeg = [4]float64{250, 500, 1000, 2000}

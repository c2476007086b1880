// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package backend

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// mpuChip is one MPU-9250 on the SPI bus with a dedicated chip-select
// pin. Each chip surfaces two devices to the hub: its accelerometer and
// its gyroscope.
type mpuChip struct {
	mu         sync.Mutex
	name       string // "left" or "right" for logging
	conn       spi.Conn
	port       spi.PortCloser
	cs         gpio.PinOut
	accelScale float64 // raw LSB -> m/s²
	gyroScale  float64 // raw LSB -> rad/s
	whoami     int
}

// MPU9250 is the SPI backend for the fixed left/right IMU wiring. The
// sensors cannot hotplug, so it never emits attach/detach events.
type MPU9250 struct {
	left  *mpuChip
	right *mpuChip
}

// Device tokens: chip index * 2 + kind, so left accel is 1.
const (
	tokLeftAccel DeviceToken = iota + 1
	tokLeftGyro
	tokRightAccel
	tokRightGyro
)

// NewMPU9250 initializes both configured IMUs over SPI. A chip that
// fails to come up is logged and skipped; only losing both is an error.
func NewMPU9250() (*MPU9250, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250 backend: periph host init: %w", err)
	}

	cfg := config.Get()
	b := &MPU9250{}

	left, err := newMPUChip("left", cfg.IMULeftSPIDevice, cfg.IMULeftCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		log.Printf("Warning: left IMU unavailable: %v", err)
	} else {
		b.left = left
	}

	right, err := newMPUChip("right", cfg.IMURightSPIDevice, cfg.IMURightCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		log.Printf("Warning: right IMU unavailable: %v", err)
	} else {
		b.right = right
	}

	if b.left == nil && b.right == nil {
		return nil, fmt.Errorf("mpu9250 backend: no IMU responded on the SPI bus")
	}
	return b, nil
}

func newMPUChip(name, spiDev, csPin string, accelRange, gyroRange byte) (*mpuChip, error) {
	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q: %w", name, csPin, err)
	}

	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI open (%s): %w", name, spiDev, err)
	}
	conn, err := port.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%s IMU: SPI connect (%s): %w", name, spiDev, err)
	}

	c := &mpuChip{
		name:       name,
		conn:       conn,
		port:       port,
		cs:         cs,
		accelScale: sensor.StandardGravity * accelFullScaleG[accelRange&3] / rawFullScale,
		gyroScale:  gyroFullScaleDeg[gyroRange&3] * degToRad / rawFullScale,
	}
	if err := c.init(accelRange, gyroRange); err != nil {
		port.Close()
		return nil, err
	}
	return c, nil
}

func (c *mpuChip) init(accelRange, gyroRange byte) error {
	if err := c.writeReg(regPwrMgmt1, pwrMgmt1Reset); err != nil {
		return fmt.Errorf("%s IMU: reset: %w", c.name, err)
	}
	if err := c.writeReg(regPwrMgmt1, pwrMgmt1ClkPLL); err != nil {
		return fmt.Errorf("%s IMU: clock select: %w", c.name, err)
	}

	id, err := c.readReg(regWhoAmI)
	if err != nil {
		return fmt.Errorf("%s IMU: WHO_AM_I read: %w", c.name, err)
	}
	if id != whoAmIMPU9250 {
		return fmt.Errorf("%s IMU: unexpected WHO_AM_I 0x%02X, want 0x%02X", c.name, id, whoAmIMPU9250)
	}
	c.whoami = int(id)
	log.Printf("%s IMU: WHO_AM_I = 0x%02X", c.name, id)

	if err := c.writeReg(regAccelConfig, (accelRange&3)<<3); err != nil {
		return fmt.Errorf("%s IMU: set accel range: %w", c.name, err)
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%.0fg)", c.name, accelRange, accelFullScaleG[accelRange&3])

	if err := c.writeReg(regGyroConfig, (gyroRange&3)<<3); err != nil {
		return fmt.Errorf("%s IMU: set gyro range: %w", c.name, err)
	}
	log.Printf("%s IMU: gyroscope range set to %d (±%.0f°/s)", c.name, gyroRange, gyroFullScaleDeg[gyroRange&3])

	return nil
}

// tx runs one chip-selected SPI transaction.
func (c *mpuChip) tx(w, r []byte) error {
	if err := c.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := c.conn.Tx(w, r)
	if csErr := c.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	return err
}

func (c *mpuChip) writeReg(addr, val byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx([]byte{addr, val}, make([]byte, 2))
}

func (c *mpuChip) readReg(addr byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rx := make([]byte, 2)
	if err := c.tx([]byte{addr | spiReadFlag, 0}, rx); err != nil {
		return 0, err
	}
	return rx[1], nil
}

// readAxes burst-reads three big-endian int16 axis values starting at
// the given register.
func (c *mpuChip) readAxes(start byte) ([3]int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var axes [3]int16
	tx := make([]byte, 7)
	rx := make([]byte, 7)
	tx[0] = start | spiReadFlag
	if err := c.tx(tx, rx); err != nil {
		return axes, err
	}
	for i := 0; i < 3; i++ {
		axes[i] = int16(uint16(rx[1+i*2])<<8 | uint16(rx[2+i*2]))
	}
	return axes, nil
}

func (b *MPU9250) Name() string { return "mpu9250" }

func (b *MPU9250) Enumerate() ([]Device, error) {
	var devs []Device
	if b.left != nil {
		devs = append(devs,
			Device{Token: tokLeftAccel, Name: "MPU-9250 Accelerometer (left)", Type: sensor.TypeAccelLeft, NonPortableType: b.left.whoami, Values: 3},
			Device{Token: tokLeftGyro, Name: "MPU-9250 Gyroscope (left)", Type: sensor.TypeGyroLeft, NonPortableType: b.left.whoami, Values: 3},
		)
	}
	if b.right != nil {
		devs = append(devs,
			Device{Token: tokRightAccel, Name: "MPU-9250 Accelerometer (right)", Type: sensor.TypeAccelRight, NonPortableType: b.right.whoami, Values: 3},
			Device{Token: tokRightGyro, Name: "MPU-9250 Gyroscope (right)", Type: sensor.TypeGyroRight, NonPortableType: b.right.whoami, Values: 3},
		)
	}
	return devs, nil
}

func (b *MPU9250) Poll(tok DeviceToken, dst []float64) (int, error) {
	var chip *mpuChip
	var start byte
	var scale float64

	switch tok {
	case tokLeftAccel, tokRightAccel:
		start = regAccelXoutH
	case tokLeftGyro, tokRightGyro:
		start = regGyroXoutH
	default:
		return 0, fmt.Errorf("mpu9250 backend: unknown device token %d", tok)
	}
	switch tok {
	case tokLeftAccel, tokLeftGyro:
		chip = b.left
	default:
		chip = b.right
	}
	if chip == nil {
		return 0, fmt.Errorf("mpu9250 backend: device token %d not present", tok)
	}
	if start == regAccelXoutH {
		scale = chip.accelScale
	} else {
		scale = chip.gyroScale
	}

	axes, err := chip.readAxes(start)
	if err != nil {
		return 0, fmt.Errorf("%s IMU read: %w", chip.name, err)
	}
	n := 0
	for i := 0; i < 3 && i < len(dst); i++ {
		dst[i] = float64(axes[i]) * scale
		n++
	}
	return n, nil
}

// Notify is a no-op: the SPI wiring is fixed, sensors never hotplug.
func (b *MPU9250) Notify(EventSink) {}

func (b *MPU9250) Close() error {
	var first error
	for _, c := range []*mpuChip{b.left, b.right} {
		if c == nil {
			continue
		}
		if err := c.port.Close(); err != nil && first == nil {
			first = fmt.Errorf("%s IMU: SPI close: %w", c.name, err)
		}
	}
	return first
}

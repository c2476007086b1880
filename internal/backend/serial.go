// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package backend

import (
	"fmt"
	"io"
	"log"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/sensorhub/internal/config"
	"github.com/relabs-tech/sensorhub/internal/sensor"
)

const (
	tokSerialAccel DeviceToken = 1
	tokSerialGyro  DeviceToken = 2
)

// Serial is the backend for a frame-streaming IMU stick on a serial
// port. The stick announces itself by talking: its accelerometer and
// gyroscope attach when the first valid frame of each kind arrives, and
// detach when the port errors out. This is the one backend that
// exercises the hub's asynchronous attach/detach path on real hardware.
type Serial struct {
	mu       sync.Mutex
	port     io.ReadCloser
	portName string
	sink     EventSink
	started  bool
	closed   bool

	latest  serialSample
	accelUp bool
	gyroUp  bool
}

// NewSerial opens the configured serial port. No sensor is reported
// until the stick starts streaming valid frames.
func NewSerial() (*Serial, error) {
	cfg := config.Get()
	opts := serial.OpenOptions{
		PortName:        cfg.SerialPort,
		BaudRate:        uint(cfg.SerialBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial backend: open %s: %w", cfg.SerialPort, err)
	}
	log.Printf("serial backend: port opened on %s at %d baud", cfg.SerialPort, cfg.SerialBaudRate)
	return &Serial{port: port, portName: cfg.SerialPort}, nil
}

// newSerialFromReader is the test seam: same backend, arbitrary stream.
func newSerialFromReader(r io.ReadCloser, name string) *Serial {
	return &Serial{port: r, portName: name}
}

func (s *Serial) Name() string { return "serial" }

func (s *Serial) Enumerate() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devicesLocked(), nil
}

func (s *Serial) devicesLocked() []Device {
	var devs []Device
	if s.accelUp {
		devs = append(devs, serialDevice(tokSerialAccel))
	}
	if s.gyroUp {
		devs = append(devs, serialDevice(tokSerialGyro))
	}
	return devs
}

func serialDevice(tok DeviceToken) Device {
	if tok == tokSerialAccel {
		return Device{Token: tok, Name: "Serial IMU Accelerometer", Type: sensor.TypeAccel, NonPortableType: int(itemAccel), Values: 3}
	}
	return Device{Token: tok, Name: "Serial IMU Gyroscope", Type: sensor.TypeGyro, NonPortableType: int(itemGyro), Values: 3}
}

func (s *Serial) Poll(tok DeviceToken, dst []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var axes [3]float64
	switch tok {
	case tokSerialAccel:
		axes = s.latest.accel
	case tokSerialGyro:
		axes = s.latest.gyro
	default:
		return 0, fmt.Errorf("serial backend: unknown device token %d", tok)
	}
	n := 0
	for i := 0; i < 3 && i < len(dst); i++ {
		dst[i] = axes[i]
		n++
	}
	return n, nil
}

// Notify registers the sink and starts the reader goroutine on first
// call. Frames decoded before Notify are not lost: the devices they
// attached show up through Enumerate.
func (s *Serial) Notify(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	start := !s.started && !s.closed
	if start {
		s.started = true
	}
	s.mu.Unlock()
	if start {
		go s.readLoop()
	}
}

// readLoop feeds port bytes through the frame parser and maintains
// attach state. It exits when the port errors or is closed.
func (s *Serial) readLoop() {
	var parser frameParser
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			if sample, ok := parser.Feed(b); ok {
				s.apply(sample)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("serial backend: read error on %s: %v", s.portName, err)
			}
			s.dropAll()
			return
		}
	}
}

// apply stores the newest sample and raises attach events for sensors
// seen for the first time.
func (s *Serial) apply(sample serialSample) {
	s.mu.Lock()
	if sample.hasAccel {
		s.latest.accel = sample.accel
		s.latest.hasAccel = true
	}
	if sample.hasGyro {
		s.latest.gyro = sample.gyro
		s.latest.hasGyro = true
	}
	var attached []Device
	if sample.hasAccel && !s.accelUp {
		s.accelUp = true
		attached = append(attached, serialDevice(tokSerialAccel))
	}
	if sample.hasGyro && !s.gyroUp {
		s.gyroUp = true
		attached = append(attached, serialDevice(tokSerialGyro))
	}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		for _, dev := range attached {
			log.Printf("serial backend: %s streaming on %s", dev.Name, s.portName)
			sink.SensorAttached(dev)
		}
	}
}

// dropAll detaches everything that was attached.
func (s *Serial) dropAll() {
	s.mu.Lock()
	var detached []DeviceToken
	if s.accelUp {
		s.accelUp = false
		detached = append(detached, tokSerialAccel)
	}
	if s.gyroUp {
		s.gyroUp = false
		detached = append(detached, tokSerialGyro)
	}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		for _, tok := range detached {
			sink.SensorDetached(tok)
		}
	}
}

func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.sink = nil
	port := s.port
	s.mu.Unlock()
	return port.Close()
}

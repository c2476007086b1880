// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package backend

import "fmt"

// Wire framing of the serial IMU stick. A frame is:
//
//	0x5A 0xA5 | len (1 byte) | payload (len bytes) | crc16 (2 bytes LE)
//
// The CRC covers the payload only. The payload is a sequence of item
// blocks: an item code byte followed by three little-endian int16 axis
// values. Unknown item codes are skipped by their fixed size.
const (
	frameSync1 = 0x5A
	frameSync2 = 0xA5

	itemAccel = 0xA0 // three int16 axes, ±8g full scale
	itemGyro  = 0xB0 // three int16 axes, ±1000°/s full scale

	maxFrameLen = 64
	itemSize    = 7 // code + 3 * int16
)

// serialAccelScale converts a raw axis value to m/s² (±8g full scale).
const serialAccelScale = 9.80665 * 8.0 / 32768.0

// serialGyroScale converts a raw axis value to rad/s (±1000°/s).
const serialGyroScale = 1000.0 * degToRad / 32768.0

// serialSample is one decoded frame.
type serialSample struct {
	accel    [3]float64
	gyro     [3]float64
	hasAccel bool
	hasGyro  bool
}

// crc16 runs the CCITT polynomial over src, continuing from crc.
func crc16(crc uint16, src []byte) uint16 {
	for _, b := range src {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			next := crc << 1
			if crc&0x8000 != 0 {
				next ^= 0x1021
			}
			crc = next
		}
	}
	return crc
}

func i16le(p []byte) int16 {
	return int16(uint16(p[0]) | uint16(p[1])<<8)
}

func u16le(p []byte) uint16 {
	return uint16(p[0]) | uint16(p[1])<<8
}

// frameParser is an incremental frame decoder fed one byte at a time.
type frameParser struct {
	buf  []byte
	need int
	sync [2]byte
}

// Feed consumes one wire byte. When a complete, CRC-valid frame ends on
// this byte the decoded sample is returned with ok true. Garbage before
// a sync sequence is discarded silently; a bad length or CRC resets the
// parser.
func (p *frameParser) Feed(b byte) (serialSample, bool) {
	if p.need == 0 {
		p.sync[0] = p.sync[1]
		p.sync[1] = b
		if p.sync[0] == frameSync1 && p.sync[1] == frameSync2 {
			p.need = -1 // next byte is the length
			p.sync = [2]byte{}
		}
		return serialSample{}, false
	}

	if p.need == -1 {
		if b == 0 || int(b) > maxFrameLen {
			p.need = 0
			return serialSample{}, false
		}
		p.need = int(b) + 2 // payload plus CRC
		p.buf = p.buf[:0]
		return serialSample{}, false
	}

	p.buf = append(p.buf, b)
	if len(p.buf) < p.need {
		return serialSample{}, false
	}

	payload := p.buf[:p.need-2]
	want := u16le(p.buf[p.need-2:])
	p.need = 0
	if crc16(0, payload) != want {
		return serialSample{}, false
	}
	s, err := decodePayload(payload)
	if err != nil {
		return serialSample{}, false
	}
	return s, true
}

// decodePayload walks the item blocks of a CRC-valid payload.
func decodePayload(payload []byte) (serialSample, error) {
	var s serialSample
	for ofs := 0; ofs < len(payload); ofs += itemSize {
		if ofs+itemSize > len(payload) {
			return s, fmt.Errorf("serial frame: truncated item at offset %d", ofs)
		}
		item := payload[ofs : ofs+itemSize]
		switch item[0] {
		case itemAccel:
			for i := 0; i < 3; i++ {
				s.accel[i] = float64(i16le(item[1+i*2:])) * serialAccelScale
			}
			s.hasAccel = true
		case itemGyro:
			for i := 0; i < 3; i++ {
				s.gyro[i] = float64(i16le(item[1+i*2:])) * serialGyroScale
			}
			s.hasGyro = true
		default:
			// unknown item, fixed size, skip
		}
	}
	return s, nil
}

package backend

import (
	"testing"

	"github.com/relabs-tech/sensorhub/internal/sensor"
)

func TestMockEnumerateFollowsAttachOrder(t *testing.T) {
	m := NewMock()
	m.Attach("A", sensor.TypeAccel, 3)
	m.Attach("B", sensor.TypeGyro, 3)

	devs, err := m.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devs))
	}
	if devs[0].Name != "A" || devs[1].Name != "B" {
		t.Errorf("enumeration order wrong: %q, %q", devs[0].Name, devs[1].Name)
	}
}

func TestMockPollAndSetReading(t *testing.T) {
	m := NewMock()
	tok := m.Attach("A", sensor.TypeAccel, 3)
	m.SetReading(tok, 1, 2, 3)

	var buf [3]float64
	n, err := m.Poll(tok, buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("poll wrote %d values, want 3", n)
	}
	if buf != [3]float64{1, 2, 3} {
		t.Errorf("poll = %v", buf)
	}

	m.Detach(tok)
	if _, err := m.Poll(tok, buf[:]); err == nil {
		t.Fatal("expected an error polling a detached device")
	}
}

func TestMockNotifiesSink(t *testing.T) {
	m := NewMock()
	rec := newSinkRecorder()
	m.Notify(rec)

	tok := m.Attach("A", sensor.TypeAccel, 3)
	dev := <-rec.attached
	if dev.Token != tok || dev.Name != "A" {
		t.Errorf("attach event = %+v", dev)
	}

	m.Detach(tok)
	if got := <-rec.detached; got != tok {
		t.Errorf("detach token = %d, want %d", got, tok)
	}
}

func TestSynthesizedReadingsChange(t *testing.T) {
	m := NewSynthesized()
	devs, err := m.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 2 {
		t.Fatalf("expected accel and gyro, got %d devices", len(devs))
	}

	var buf [3]float64
	if _, err := m.Poll(devs[0].Token, buf[:]); err != nil {
		t.Fatal(err)
	}
	if buf == [3]float64{} {
		t.Error("synthesized accel reading is all zeros")
	}
}

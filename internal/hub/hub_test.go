package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensorhub/internal/backend"
	"github.com/relabs-tech/sensorhub/internal/hub"
	"github.com/relabs-tech/sensorhub/internal/props"
	"github.com/relabs-tech/sensorhub/internal/sensor"
)

// startHub spins up a hub on a fresh mock backend with one
// accelerometer and one gyroscope already attached.
func startHub(t *testing.T) (*hub.Hub, hub.UpdateToken, *backend.Mock, *props.Store) {
	t.Helper()
	m := backend.NewMock()
	m.Attach("Test Accelerometer", sensor.TypeAccel, 3)
	m.Attach("Test Gyroscope", sensor.TypeGyro, 3)
	ps := props.NewStore()
	h, tok, err := hub.Start(m, ps)
	require.NoError(t, err)
	return h, tok, m, ps
}

func TestEnumerateAttachOrder(t *testing.T) {
	h, _, _, _ := startHub(t)
	defer h.Stop()

	ids, err := h.Sensors()
	require.NoError(t, err)
	assert.Equal(t, []sensor.InstanceID{1, 2}, ids)

	assert.Equal(t, "Test Accelerometer", h.Name(1))
	assert.Equal(t, sensor.TypeAccel, h.TypeOf(1))
	assert.Equal(t, sensor.TypeGyro, h.TypeOf(2))
	assert.Equal(t, -1, h.NonPortableType(1))

	// queries for an ID that was never issued report absence
	_, ok := h.Descriptor(99)
	assert.False(t, ok)
	assert.Equal(t, "", h.Name(99))
	assert.Equal(t, sensor.TypeInvalid, h.TypeOf(99))
	assert.Equal(t, -1, h.NonPortableType(99))
}

func TestEnumerateEmptyBackend(t *testing.T) {
	h, tok, _, _ := startHubEmpty(t)
	defer h.Stop()

	ids, err := h.Sensors()
	require.NoError(t, err)
	assert.Empty(t, ids)

	// update with nothing open or connected is a no-op
	require.NoError(t, h.Update(tok))
}

func startHubEmpty(t *testing.T) (*hub.Hub, hub.UpdateToken, *backend.Mock, *props.Store) {
	t.Helper()
	m := backend.NewMock()
	ps := props.NewStore()
	h, tok, err := hub.Start(m, ps)
	require.NoError(t, err)
	return h, tok, m, ps
}

func TestInstanceIDsNeverReused(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	// detach the accelerometer, then attach an identical one
	m.Detach(1)
	require.NoError(t, h.Update(tok))

	ids, err := h.Sensors()
	require.NoError(t, err)
	assert.Equal(t, []sensor.InstanceID{2}, ids)

	m.Attach("Test Accelerometer", sensor.TypeAccel, 3)
	require.NoError(t, h.Update(tok))

	ids, err = h.Sensors()
	require.NoError(t, err)
	assert.Equal(t, []sensor.InstanceID{2, 3}, ids, "reconnected sensor must get a fresh ID")

	// churn: every attach yields a new, strictly increasing ID
	seen := map[sensor.InstanceID]bool{1: true, 2: true, 3: true}
	for i := 0; i < 10; i++ {
		tok2 := m.Attach("Churn", sensor.TypeUnknown, 3)
		require.NoError(t, h.Update(tok))
		ids, err := h.Sensors()
		require.NoError(t, err)
		id := ids[len(ids)-1]
		assert.False(t, seen[id], "ID %d was issued twice", id)
		seen[id] = true
		m.Detach(tok2)
		require.NoError(t, h.Update(tok))
	}
}

func TestAttachVisibleAfterUpdate(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	m.Attach("Late Sensor", sensor.TypeUnknown, 3)

	// queued, not yet applied
	ids, err := h.Sensors()
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, h.Update(tok))
	ids, err = h.Sensors()
	require.NoError(t, err)
	assert.Equal(t, []sensor.InstanceID{1, 2, 3}, ids)
}

func TestOpenClose(t *testing.T) {
	h, _, _, _ := startHub(t)
	defer h.Stop()

	hd, err := h.Open(1)
	require.NoError(t, err)
	assert.Equal(t, sensor.InstanceID(1), hd.InstanceID())

	got, ok := h.FromInstanceID(1)
	require.True(t, ok)
	assert.Same(t, hd, got)

	require.NoError(t, hd.Close())
	_, ok = h.FromInstanceID(1)
	assert.False(t, ok, "no handle may remain after close")

	var buf [3]float64
	_, err = hd.Read(buf[:])
	assert.ErrorIs(t, err, sensor.ErrInvalidHandle)
	_, err = hd.Properties()
	assert.ErrorIs(t, err, sensor.ErrInvalidHandle)
	assert.Equal(t, sensor.InstanceID(0), hd.InstanceID())

	// closing again is a no-op, not an error
	require.NoError(t, hd.Close())
}

func TestOpenUnknownID(t *testing.T) {
	h, _, _, _ := startHub(t)
	defer h.Stop()

	_, err := h.Open(42)
	assert.ErrorIs(t, err, sensor.ErrNotFound)
}

func TestOpenLimit(t *testing.T) {
	m := backend.NewMock()
	m.Attach("Test Accelerometer", sensor.TypeAccel, 3)
	h, _, err := hub.Start(m, props.NewStore(), hub.WithOpenLimit(1))
	require.NoError(t, err)
	defer h.Stop()

	hd, err := h.Open(1)
	require.NoError(t, err)

	_, err = h.Open(1)
	assert.ErrorIs(t, err, sensor.ErrAllocation)

	// a failed open must not corrupt the table
	require.NoError(t, hd.Close())
	_, err = h.Open(1)
	assert.NoError(t, err)
}

func TestSharedBufferAcrossOpens(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	hd1, err := h.Open(1)
	require.NoError(t, err)
	hd2, err := h.Open(1)
	require.NoError(t, err)
	assert.NotSame(t, hd1, hd2, "second open returns a distinct handle")

	m.SetReading(1, 0.5, sensor.StandardGravity, -0.25)
	require.NoError(t, h.Update(tok))

	var b1, b2 [3]float64
	n1, err := hd1.Read(b1[:])
	require.NoError(t, err)
	n2, err := hd2.Read(b2[:])
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, b1, b2, "both handles read the shared buffer")
	assert.Equal(t, [3]float64{0.5, sensor.StandardGravity, -0.25}, b1)

	// closing one handle leaves the other readable
	require.NoError(t, hd1.Close())
	_, err = hd2.Read(b2[:])
	require.NoError(t, err)
	got, ok := h.FromInstanceID(1)
	require.True(t, ok)
	assert.Same(t, hd2, got)
}

func TestReadShorterAndLongerBuffers(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	hd, err := h.Open(1)
	require.NoError(t, err)
	m.SetReading(1, 1, 2, 3)
	require.NoError(t, h.Update(tok))

	short := make([]float64, 2)
	n, err := hd.Read(short)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1, 2}, short)

	long := make([]float64, 8)
	n, err = hd.Read(long)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "only the available values are written")
	assert.Equal(t, []float64{1, 2, 3}, long[:n])
}

func TestValuesSizesWiderSensors(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	wide := m.Attach("Six Axis", sensor.TypeUnknown, 6)
	require.NoError(t, h.Update(tok))

	hd, err := h.Open(3)
	require.NoError(t, err)
	assert.Equal(t, 6, hd.Values())

	m.SetReading(wide, 1, 2, 3, 4, 5, 6)
	require.NoError(t, h.Update(tok))

	// a buffer sized from Values captures the whole reading
	buf := make([]float64, hd.Values())
	n, err := hd.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, buf)

	require.NoError(t, hd.Close())
	assert.Equal(t, 0, hd.Values())
}

func TestDetachKeepsLastKnownGood(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	hd, err := h.Open(1)
	require.NoError(t, err)

	m.SetReading(1, 4, 5, 6)
	require.NoError(t, h.Update(tok))

	m.Detach(1)
	require.NoError(t, h.Update(tok))
	require.NoError(t, h.Update(tok))

	// the registry no longer knows the sensor...
	_, ok := h.Descriptor(1)
	assert.False(t, ok)

	// ...but the handle stays open with its metadata and last values
	var buf [3]float64
	n, err := hd.Read(buf[:])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [3]float64{4, 5, 6}, buf)
	assert.Equal(t, sensor.InstanceID(1), hd.InstanceID())
	assert.Equal(t, "Test Accelerometer", hd.Name())
	assert.Equal(t, sensor.TypeAccel, hd.Type())

	require.NoError(t, hd.Close())
}

func TestUpdateTokenOwnership(t *testing.T) {
	h, tok, _, _ := startHub(t)
	defer h.Stop()

	assert.ErrorIs(t, h.Update(hub.UpdateToken{}), sensor.ErrInvalidState)

	other, otherTok, _, _ := startHubEmpty(t)
	defer other.Stop()
	assert.ErrorIs(t, h.Update(otherTok), sensor.ErrInvalidState)

	require.NoError(t, h.Update(tok))
}

func TestPropertiesLifecycle(t *testing.T) {
	h, _, _, ps := startHub(t)
	defer h.Stop()

	hd1, err := h.Open(1)
	require.NoError(t, err)
	hd2, err := h.Open(1)
	require.NoError(t, err)

	p1, err := hd1.Properties()
	require.NoError(t, err)
	assert.NotZero(t, p1)

	// lazily created once per handle
	again, err := hd1.Properties()
	require.NoError(t, err)
	assert.Equal(t, p1, again)

	// two handles on one sensor own separate bags
	p2, err := hd2.Properties()
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	ps.Set(p1, "role", "primary")
	v, ok := ps.Get(p1, "role")
	require.True(t, ok)
	assert.Equal(t, "primary", v)

	require.NoError(t, hd1.Close())
	_, ok = ps.Get(p1, "role")
	assert.False(t, ok, "closing the handle destroys its bag")
	assert.Equal(t, 1, ps.Count())
	require.NoError(t, hd2.Close())
	assert.Equal(t, 0, ps.Count())
}

// TestScenario walks the documented end-to-end flow: enumerate, open,
// update, read, close, reopen.
func TestScenario(t *testing.T) {
	h, tok, m, _ := startHub(t)
	defer h.Stop()

	ids, err := h.Sensors()
	require.NoError(t, err)
	require.Equal(t, []sensor.InstanceID{1, 2}, ids)

	hd, err := h.Open(1)
	require.NoError(t, err)

	m.SetReading(1, 0.1, 9.8, 0.2)
	require.NoError(t, h.Update(tok))

	var buf [3]float64
	n, err := hd.Read(buf[:])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [3]float64{0.1, 9.8, 0.2}, buf)

	p1, err := hd.Properties()
	require.NoError(t, err)
	require.NoError(t, hd.Close())

	// still connected, so the ID persists...
	hd2, err := h.Open(1)
	require.NoError(t, err)
	assert.Equal(t, sensor.InstanceID(1), hd2.InstanceID())

	// ...but the property bag is fresh
	p2, err := hd2.Properties()
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestStop(t *testing.T) {
	h, tok, _, ps := startHub(t)

	hd, err := h.Open(1)
	require.NoError(t, err)
	_, err = hd.Properties()
	require.NoError(t, err)

	require.NoError(t, h.Stop())

	_, err = h.Sensors()
	assert.ErrorIs(t, err, sensor.ErrNotInitialized)
	_, err = h.Open(1)
	assert.ErrorIs(t, err, sensor.ErrNotInitialized)
	assert.ErrorIs(t, h.Update(tok), sensor.ErrNotInitialized)

	var buf [3]float64
	_, err = hd.Read(buf[:])
	assert.ErrorIs(t, err, sensor.ErrInvalidHandle)
	assert.Equal(t, 0, ps.Count(), "stop destroys all property bags")

	// stopping twice reports the subsystem as already down
	assert.ErrorIs(t, h.Stop(), sensor.ErrNotInitialized)
}

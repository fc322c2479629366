package poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/pumpwatch/internal/model"
	"github.com/plantops/pumpwatch/internal/plc"
	"github.com/plantops/pumpwatch/internal/state"
	"github.com/plantops/pumpwatch/internal/tagmap"
)

type fakeReader struct {
	connectErr  error
	connects    int
	disconnects int
	realFn      func(model.RealTag) (float64, error)
	boolFn      func(model.BoolTag) (bool, error)
}

func (f *fakeReader) Connect() error {
	f.connects++
	return f.connectErr
}

func (f *fakeReader) ReadReal(tag model.RealTag) (float64, error) {
	if f.realFn == nil {
		return 0, nil
	}
	return f.realFn(tag)
}

func (f *fakeReader) ReadBool(tag model.BoolTag) (bool, error) {
	if f.boolFn == nil {
		return false, nil
	}
	return f.boolFn(tag)
}

func (f *fakeReader) Disconnect() {
	f.disconnects++
}

type fakeRecorder struct {
	samples   []model.Sample
	events    []model.Event
	sampleErr error
	eventErr  error
}

func (f *fakeRecorder) AppendSample(s model.Sample) error {
	if f.sampleErr != nil {
		return f.sampleErr
	}
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeRecorder) AppendEvent(e model.Event) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, e)
	return nil
}

func testTags() *tagmap.Map {
	return &tagmap.Map{
		Home: &model.HomeTags{
			KWH:   &model.RealTag{Block: 10, Offset: 0},
			Level: &model.RealTag{Block: 10, Offset: 4},
			Temp:  &model.RealTag{Block: 10, Offset: 8},
			Alarm: &model.BoolTag{Block: 10, Offset: 12, Bit: 0},
		},
		Pumps: []model.DeviceTags{{
			ID: "pump1", Kind: model.KindPump, Label: "Pump 1",
			Ready:    &model.BoolTag{Block: 20, Offset: 0, Bit: 0},
			Running:  &model.BoolTag{Block: 20, Offset: 0, Bit: 1},
			Trip:     &model.BoolTag{Block: 20, Offset: 0, Bit: 2},
			Pressure: &model.RealTag{Block: 20, Offset: 2},
			Speed:    &model.RealTag{Block: 20, Offset: 6},
		}},
		Chillers: []model.DeviceTags{{
			ID: "chiller1", Kind: model.KindChiller, Label: "chiller1",
			Ready:   &model.BoolTag{Block: 30, Offset: 0, Bit: 0},
			Running: &model.BoolTag{Block: 30, Offset: 0, Bit: 1},
			Trip:    &model.BoolTag{Block: 30, Offset: 0, Bit: 2},
		}},
	}
}

func newTestPoller(reader plc.Reader, rec Recorder, interval time.Duration) (*Poller, *state.Store) {
	tags := testTags()
	st := state.New(tags.Pumps, tags.Chillers)
	return New(reader, tags, st, rec, interval), st
}

// Device unreachable at startup: the poller keeps retrying every interval,
// state stays at placeholders, nothing is persisted.
func TestRunStaysDisconnectedWhenUnreachable(t *testing.T) {
	reader := &fakeReader{connectErr: errors.New("dial tcp: connection refused")}
	rec := &fakeRecorder{}
	p, st := newTestPoller(reader, rec, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	<-done

	assert.GreaterOrEqual(t, reader.connects, 2, "must retry connecting every interval")
	assert.Empty(t, rec.samples)
	assert.Empty(t, rec.events)

	home := st.Home()
	assert.Equal(t, state.Placeholder, home.KWH)
	assert.Equal(t, state.Placeholder, home.TS)
}

func TestCycleUpdatesStateAndAppendsSamples(t *testing.T) {
	reader := &fakeReader{
		realFn: func(tag model.RealTag) (float64, error) {
			switch {
			case tag.Block == 10 && tag.Offset == 0:
				return 1234.5678, nil // kWh
			case tag.Block == 10 && tag.Offset == 4:
				return 3.1, nil // level
			case tag.Block == 10 && tag.Offset == 8:
				return 24.96, nil // temp
			case tag.Block == 20 && tag.Offset == 2:
				return 5.2345, nil // pressure
			case tag.Block == 20 && tag.Offset == 6:
				return 41.999, nil // speed
			}
			return 0, plc.ErrBadAddress
		},
		boolFn: func(tag model.BoolTag) (bool, error) {
			if tag.Block == 10 {
				return true, nil // alarm
			}
			return tag.Bit != 2, nil // ready, running on; trip off
		},
	}
	rec := &fakeRecorder{}
	p, st := newTestPoller(reader, rec, time.Second)

	require.NoError(t, reader.Connect())
	require.NoError(t, p.cycle())

	home := st.Home()
	assert.Equal(t, "1234.57", home.KWH)
	assert.Equal(t, "3.10", home.Level)
	assert.Equal(t, "25.0", home.Temp)
	assert.True(t, home.Alarm)
	assert.NotEqual(t, state.Placeholder, home.TS)

	pump, ok := st.Device("pump1")
	require.True(t, ok)
	assert.True(t, pump.Ready)
	assert.True(t, pump.Running)
	assert.False(t, pump.Trip)
	assert.Equal(t, 5.23, pump.Pressure, "pressure rounds to 2 decimals")
	assert.Equal(t, 42.0, pump.Speed)

	require.Len(t, rec.samples, 2, "one sample per device per cycle")
	assert.Equal(t, "pump1", rec.samples[0].DeviceID)
	require.NotNil(t, rec.samples[0].Pressure)
	assert.Equal(t, 5.23, *rec.samples[0].Pressure)

	assert.Equal(t, "chiller1", rec.samples[1].DeviceID)
	assert.Nil(t, rec.samples[1].Pressure, "chillers carry no pressure signal")
	assert.Nil(t, rec.samples[1].Speed)
	assert.Empty(t, rec.events)
}

// Trip goes false, true, true across three cycles: exactly one event,
// stamped at the second cycle.
func TestTripRisingEdgeEmitsOneEvent(t *testing.T) {
	trip := false
	reader := &fakeReader{
		boolFn: func(tag model.BoolTag) (bool, error) {
			if tag.Block == 20 && tag.Bit == 2 {
				return trip, nil
			}
			return false, nil
		},
		realFn: func(tag model.RealTag) (float64, error) {
			if tag.Block == 20 && tag.Offset == 2 {
				return 3.1, nil
			}
			return 0, nil
		},
	}
	rec := &fakeRecorder{}
	p, _ := newTestPoller(reader, rec, time.Second)

	cycleTimes := []time.Time{
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 2, 0, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 4, 0, time.UTC),
	}
	i := 0
	p.now = func() time.Time { return cycleTimes[i] }

	for _, tripNow := range []bool{false, true, true} {
		trip = tripNow
		require.NoError(t, p.cycle())
		i++
	}

	require.Len(t, rec.events, 1)
	assert.Equal(t, "pump1", rec.events[0].DeviceID)
	assert.Equal(t, model.EventTrip, rec.events[0].Kind)
	assert.Equal(t, cycleTimes[1], rec.events[0].TS)
	require.NotNil(t, rec.events[0].Pressure)
	assert.Equal(t, 3.1, *rec.events[0].Pressure)
}

// Pressure read fails for one cycle while the bool reads succeed: the state
// keeps the prior pressure and the cycle's sample stores the carried value.
func TestFailedPressureReadCarriesPriorValue(t *testing.T) {
	pressureErr := false
	reader := &fakeReader{
		realFn: func(tag model.RealTag) (float64, error) {
			if tag.Block == 20 && tag.Offset == 2 {
				if pressureErr {
					return 0, fmt.Errorf("%w: real db20.2", plc.ErrBadValue)
				}
				return 5.23, nil
			}
			return 0, nil
		},
		boolFn: func(tag model.BoolTag) (bool, error) {
			return tag.Block == 20 && tag.Bit != 2, nil
		},
	}
	rec := &fakeRecorder{}
	p, st := newTestPoller(reader, rec, time.Second)

	require.NoError(t, p.cycle())
	pressureErr = true
	require.NoError(t, p.cycle(), "a per-tag failure must not fail the cycle")

	pump, _ := st.Device("pump1")
	assert.Equal(t, 5.23, pump.Pressure)
	assert.True(t, pump.Ready)

	require.Len(t, rec.samples, 4)
	second := rec.samples[2] // pump1 sample of cycle 2
	assert.Equal(t, "pump1", second.DeviceID)
	require.NotNil(t, second.Pressure)
	assert.Equal(t, 5.23, *second.Pressure, "sample must carry the prior pressure")
}

// A failed trip read is not an implicit false: no event may fire from a
// carried observation, and the stored trip state survives.
func TestFailedTripReadDoesNotFireOrReset(t *testing.T) {
	step := 0
	reader := &fakeReader{
		boolFn: func(tag model.BoolTag) (bool, error) {
			if tag.Block == 20 && tag.Bit == 2 {
				switch step {
				case 0:
					return false, nil
				case 1:
					return true, nil
				case 2:
					return false, fmt.Errorf("%w: bool db20.0.2", plc.ErrBadValue)
				default:
					return true, nil
				}
			}
			return false, nil
		},
	}
	rec := &fakeRecorder{}
	p, st := newTestPoller(reader, rec, time.Second)

	for step = 0; step < 4; step++ {
		require.NoError(t, p.cycle())
	}

	require.Len(t, rec.events, 1, "only the genuine 0->1 transition emits")

	pump, _ := st.Device("pump1")
	assert.True(t, pump.Trip, "failed read must not overwrite stored trip")
}

// A session-level fault drops the connection, stamps the home read-error
// marker, and the machine goes back to retrying connects.
func TestSessionFaultDisconnectsAndMarksHome(t *testing.T) {
	reader := &fakeReader{
		boolFn: func(tag model.BoolTag) (bool, error) {
			return false, fmt.Errorf("%w: read bool: broken pipe", plc.ErrConn)
		},
	}
	rec := &fakeRecorder{}
	p, st := newTestPoller(reader, rec, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	<-done

	assert.GreaterOrEqual(t, reader.disconnects, 1)
	assert.GreaterOrEqual(t, reader.connects, 2, "must reconnect after a session fault")
	assert.Equal(t, state.ReadErrorMarker, st.Home().TS)
}

// Persistence failures are contained: the cycle finishes and the state
// store still updates.
func TestAppendFailureDoesNotStopCycle(t *testing.T) {
	reader := &fakeReader{
		boolFn: func(tag model.BoolTag) (bool, error) { return true, nil },
	}
	rec := &fakeRecorder{sampleErr: errors.New("disk full"), eventErr: errors.New("disk full")}
	p, st := newTestPoller(reader, rec, time.Second)

	require.NoError(t, p.cycle())

	pump, _ := st.Device("pump1")
	assert.True(t, pump.Ready)
	assert.Empty(t, rec.samples)
}

// Unconfigured tag groups are skipped silently.
func TestMissingTagGroupsSkipped(t *testing.T) {
	tags := &tagmap.Map{
		Pumps: []model.DeviceTags{{
			ID: "pump1", Kind: model.KindPump, Label: "Pump 1",
			Ready: &model.BoolTag{Block: 20, Offset: 0, Bit: 0},
			// no running/trip/pressure/speed tags
		}},
	}
	st := state.New(tags.Pumps, nil)
	reader := &fakeReader{
		boolFn: func(tag model.BoolTag) (bool, error) { return true, nil },
	}
	rec := &fakeRecorder{}
	p := New(reader, tags, st, rec, time.Second)

	require.NoError(t, p.cycle())

	home := st.Home()
	assert.Equal(t, state.Placeholder, home.TS, "absent home group leaves home untouched")

	require.Len(t, rec.samples, 1)
	assert.Nil(t, rec.samples[0].Pressure)
	assert.True(t, rec.samples[0].Ready)
	assert.False(t, rec.samples[0].Trip)
}

func TestRound2(t *testing.T) {
	assert.Nil(t, round2(nil))
	v := 5.2351
	assert.Equal(t, 5.24, *round2(&v))
	v = 2.0
	assert.Equal(t, 2.0, *round2(&v))
}

package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/pumpwatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fp(v float64) *float64 { return &v }

func TestSampleRoundTrip(t *testing.T) {
	store := openTestStore(t)

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	in := model.Sample{
		TS:       ts,
		DeviceID: "pump1",
		Pressure: fp(5.23),
		Speed:    fp(42.0),
		Ready:    true,
		Running:  true,
		Trip:     false,
	}
	require.NoError(t, store.AppendSample(in))

	got, err := store.QuerySamples("pump1", ts, ts.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, ts, got[0].TS)
	assert.Equal(t, "pump1", got[0].DeviceID)
	require.NotNil(t, got[0].Pressure)
	assert.Equal(t, 5.23, *got[0].Pressure)
	require.NotNil(t, got[0].Speed)
	assert.Equal(t, 42.0, *got[0].Speed)
	assert.True(t, got[0].Ready)
	assert.True(t, got[0].Running)
	assert.False(t, got[0].Trip)
}

func TestSampleNullableReals(t *testing.T) {
	store := openTestStore(t)

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, store.AppendSample(model.Sample{
		TS:       ts,
		DeviceID: "chiller1",
		Ready:    true,
	}))

	got, err := store.QuerySamples("chiller1", ts, ts.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Pressure)
	assert.Nil(t, got[0].Speed)
}

func TestQuerySamplesHalfOpenRange(t *testing.T) {
	store := openTestStore(t)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	for _, ts := range []time.Time{
		from.Add(-time.Second), // before
		from,                   // inclusive lower bound
		from.Add(12 * time.Hour),
		to.Add(-time.Second), // last second of the day
		to,                   // exclusive upper bound
	} {
		require.NoError(t, store.AppendSample(model.Sample{TS: ts, DeviceID: "pump1"}))
	}

	got, err := store.QuerySamples("pump1", from, to)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, from, got[0].TS)
	assert.Equal(t, to.Add(-time.Second), got[2].TS)
}

func TestQuerySamplesDeviceFilter(t *testing.T) {
	store := openTestStore(t)

	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendSample(model.Sample{TS: ts, DeviceID: "pump1"}))
	require.NoError(t, store.AppendSample(model.Sample{TS: ts.Add(time.Second), DeviceID: "pump2"}))

	from := ts.Add(-time.Hour)
	to := ts.Add(time.Hour)

	only, err := store.QuerySamples("pump2", from, to)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "pump2", only[0].DeviceID)

	all, err := store.QuerySamples("all", from, to)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQuerySamplesOrderedAndIdempotent(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// Insert out of timestamp order.
	for _, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
		require.NoError(t, store.AppendSample(model.Sample{TS: base.Add(offset), DeviceID: "pump1"}))
	}

	first, err := store.QuerySamples("pump1", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.True(t, first[0].TS.Before(first[1].TS))
	assert.True(t, first[1].TS.Before(first[2].TS))

	second, err := store.QuerySamples("pump1", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEventRoundTrip(t *testing.T) {
	store := openTestStore(t)

	ts := time.Date(2024, 1, 15, 10, 30, 5, 0, time.UTC)
	require.NoError(t, store.AppendEvent(model.Event{
		TS:       ts,
		DeviceID: "pump1",
		Kind:     model.EventTrip,
		Pressure: fp(3.1),
		Speed:    fp(48.5),
	}))

	got, err := store.QueryEvents("pump1", ts, ts.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventTrip, got[0].Kind)
	assert.Equal(t, ts, got[0].TS)
	require.NotNil(t, got[0].Pressure)
	assert.Equal(t, 3.1, *got[0].Pressure)
}

func TestQueryEventsDeviceFilter(t *testing.T) {
	store := openTestStore(t)

	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEvent(model.Event{TS: ts, DeviceID: "pump1", Kind: model.EventTrip}))
	require.NoError(t, store.AppendEvent(model.Event{TS: ts, DeviceID: "chiller1", Kind: model.EventTrip}))

	got, err := store.QueryEvents("chiller1", ts, ts.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "chiller1", got[0].DeviceID)

	empty, err := store.QueryEvents("pump9", ts, ts.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTimestampSecondResolutionUTC(t *testing.T) {
	store := openTestStore(t)

	// Sub-second precision and zone info must not leak into storage.
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2024, 6, 1, 14, 0, 0, 999_000_000, loc)
	require.NoError(t, store.AppendSample(model.Sample{TS: ts, DeviceID: "pump1"}))

	got, err := store.QuerySamples("pump1", ts.UTC().Add(-time.Minute), ts.UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ts.UTC().Truncate(time.Second), got[0].TS)
	assert.Equal(t, time.UTC, got[0].TS.Location())
}

package tracking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawReadingDecodesLooseInput(t *testing.T) {
	body := `[
		{"latitude": "12.5", "longitude": 56.1, "timestamp": 1714550400000, "accuracy": "bad"},
		{"latitude": 12.6, "longitude": " 56.2 ", "timestamp": "2024-05-01T08:00:05Z", "speed": 1.5},
		{"latitude": null, "longitude": 56.3, "timestamp": 1714550410},
		{"latitude": "north", "longitude": 56.4}
	]`

	var readings []RawReading
	require.NoError(t, json.Unmarshal([]byte(body), &readings))
	require.Len(t, readings, 4)

	assert.True(t, readings[0].Latitude.Valid)
	assert.Equal(t, 12.5, readings[0].Latitude.Value)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), readings[0].Timestamp.Time)
	assert.True(t, readings[0].Accuracy.Present)
	assert.False(t, readings[0].Accuracy.Valid)

	assert.Equal(t, 56.2, readings[1].Longitude.Value)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 5, 0, time.UTC), readings[1].Timestamp.Time)
	assert.False(t, readings[1].Accuracy.Present)

	assert.False(t, readings[2].Latitude.Present)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 10, 0, time.UTC), readings[2].Timestamp.Time, "epoch seconds")

	assert.True(t, readings[3].Latitude.Present)
	assert.False(t, readings[3].Latitude.Valid)
	assert.True(t, readings[3].Timestamp.IsZero())
}

func TestSanitizeDropsUnusableCoordinates(t *testing.T) {
	received := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	t0 := received.Add(-time.Minute)

	raw := []RawReading{
		{Latitude: Num(10), Longitude: Num(20), Timestamp: FlexTime{t0.Add(20 * time.Second)}},
		{Latitude: Num(91), Longitude: Num(20)},
		{Latitude: Numeric{Present: true}, Longitude: Num(20)},
		{Longitude: Num(20)},
		{Latitude: Num(10.1), Longitude: Num(-181)},
		{Latitude: Num(10.2), Longitude: Num(20.2), Timestamp: FlexTime{t0}, Speed: Numeric{Present: true}},
		{Latitude: Num(10.3), Longitude: Num(20.3)},
	}

	kept, dropped := sanitize(raw, received)
	assert.Equal(t, 4, dropped)
	require.Len(t, kept, 3)

	// ordered by timestamp; the undated reading takes the receive time
	assert.Equal(t, 10.2, kept[0].lat)
	assert.Nil(t, kept[0].speed)
	assert.Equal(t, 10.0, kept[1].lat)
	assert.Equal(t, 10.3, kept[2].lat)
	assert.Equal(t, received, kept[2].recordedAt)
}

func TestFilterAccuracy(t *testing.T) {
	acc := func(v float64) *float64 { return &v }
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	at := func(i int) time.Time { return t0.Add(time.Duration(i) * time.Second) }

	t.Run("drops readings above the threshold", func(t *testing.T) {
		in := []reading{
			{lat: 1, recordedAt: at(0), accuracy: acc(10)},
			{lat: 2, recordedAt: at(1), accuracy: acc(75)},
			{lat: 3, recordedAt: at(2)},
		}
		kept, dropped, fellBack := filterAccuracy(in, 50, 3)
		assert.False(t, fellBack)
		assert.Equal(t, 1, dropped)
		require.Len(t, kept, 2)
		assert.Equal(t, 1.0, kept[0].lat)
		assert.Equal(t, 3.0, kept[1].lat)
	})

	t.Run("keeps the best n when all are inaccurate", func(t *testing.T) {
		in := []reading{
			{lat: 1, recordedAt: at(0), accuracy: acc(400)},
			{lat: 2, recordedAt: at(1), accuracy: acc(90)},
			{lat: 3, recordedAt: at(2), accuracy: acc(60)},
			{lat: 4, recordedAt: at(3), accuracy: acc(250)},
			{lat: 5, recordedAt: at(4), accuracy: acc(120)},
		}
		kept, dropped, fellBack := filterAccuracy(in, 50, 3)
		assert.True(t, fellBack)
		assert.Equal(t, 2, dropped)
		require.Len(t, kept, 3)
		// back in time order
		assert.Equal(t, []float64{2, 3, 5}, []float64{kept[0].lat, kept[1].lat, kept[2].lat})
	})

	t.Run("disabled threshold keeps everything", func(t *testing.T) {
		in := []reading{{lat: 1, accuracy: acc(1000)}}
		kept, dropped, fellBack := filterAccuracy(in, 0, 3)
		assert.Len(t, kept, 1)
		assert.Zero(t, dropped)
		assert.False(t, fellBack)
	})
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	unlockB := k.Lock(b)
	assert.Len(t, k.locks, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.Lock(a)()
	}()

	unlockA()
	<-done
	unlockB()
	assert.Empty(t, k.locks)
}

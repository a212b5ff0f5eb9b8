package oura

import (
	"testing"

	"github.com/collinvine/talk-to-oura/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeHeartRate(t *testing.T) {
	readings := []domain.HeartRateReading{
		{BPM: 60, Timestamp: "2025-06-01T07:00:00+00:00"},
		{BPM: 80, Timestamp: "2025-06-01T12:00:00+00:00"},
		{BPM: 70, Timestamp: "2025-06-01T18:00:00+00:00"},
		{BPM: 55, Timestamp: "2025-06-02T02:00:00+00:00"},
	}

	data := ShapeHeartRate(readings)

	assert.Len(t, data.Readings, 4)
	require.Len(t, data.DailyStats, 2)

	day1 := data.DailyStats["2025-06-01"]
	assert.Equal(t, 60, day1.Min)
	assert.Equal(t, 80, day1.Max)
	assert.InDelta(t, 70.0, day1.Avg, 0.001)
	assert.Equal(t, 3, day1.Readings)

	day2 := data.DailyStats["2025-06-02"]
	assert.Equal(t, 55, day2.Min)
	assert.Equal(t, 55, day2.Max)
	assert.InDelta(t, 55.0, day2.Avg, 0.001)
	assert.Equal(t, 1, day2.Readings)
}

func TestShapeHeartRateEmpty(t *testing.T) {
	data := ShapeHeartRate(nil)
	assert.Empty(t, data.Readings)
	assert.Empty(t, data.DailyStats)
}

package oura

import (
	"strings"

	"github.com/collinvine/talk-to-oura/internal/domain"
)

// ShapeHeartRate groups raw readings into per-day min/max/avg stats.
// DailyStats is always exactly the aggregation of the readings, so the
// two never disagree.
func ShapeHeartRate(readings []domain.HeartRateReading) *domain.HeartRateData {
	data := &domain.HeartRateData{
		Readings:   readings,
		DailyStats: make(map[string]domain.DailyHeartRateStats),
	}

	sums := make(map[string]int)
	for _, reading := range readings {
		day := readingDay(reading.Timestamp)
		if day == "" {
			continue
		}

		stats, ok := data.DailyStats[day]
		if !ok {
			stats = domain.DailyHeartRateStats{Min: reading.BPM, Max: reading.BPM}
		}
		if reading.BPM < stats.Min {
			stats.Min = reading.BPM
		}
		if reading.BPM > stats.Max {
			stats.Max = reading.BPM
		}
		stats.Readings++
		sums[day] += reading.BPM
		data.DailyStats[day] = stats
	}

	for day, stats := range data.DailyStats {
		stats.Avg = float64(sums[day]) / float64(stats.Readings)
		data.DailyStats[day] = stats
	}

	return data
}

func readingDay(timestamp string) string {
	if i := strings.IndexAny(timestamp, "T "); i > 0 {
		return timestamp[:i]
	}
	return timestamp
}

package domain

// ISODate is the calendar-date layout used throughout ("YYYY-MM-DD").
// ISO dates compare lexicographically in calendar order, so string
// comparison is used for range checks.
const ISODate = "2006-01-02"

// DateRange is an inclusive calendar-date range resolved from a query.
// Custom is false only for the default trailing-7-day window, which
// downstream logic treats as "no explicit new range requested".
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Custom    bool   `json:"usesCustomRange"`
}

// DataTypes flags which Oura data categories a query concerns
type DataTypes struct {
	Sleep     bool `json:"sleep"`
	Activity  bool `json:"activity"`
	Readiness bool `json:"readiness"`
	HeartRate bool `json:"heartRate"`
}

// Covers reports whether every category needed is also set on d
func (d DataTypes) Covers(needed DataTypes) bool {
	if needed.Sleep && !d.Sleep {
		return false
	}
	if needed.Activity && !d.Activity {
		return false
	}
	if needed.Readiness && !d.Readiness {
		return false
	}
	if needed.HeartRate && !d.HeartRate {
		return false
	}
	return true
}

// SleepRecord is one night of sleep from the Oura daily sleep endpoint
type SleepRecord struct {
	Day                string  `json:"day"`
	Score              int     `json:"score"`
	TotalSleepDuration int     `json:"total_sleep_duration"`
	DeepSleepDuration  int     `json:"deep_sleep_duration"`
	RemSleepDuration   int     `json:"rem_sleep_duration"`
	LightSleepDuration int     `json:"light_sleep_duration"`
	AwakeTime          int     `json:"awake_time"`
	Efficiency         int     `json:"efficiency"`
	AverageHeartRate   float64 `json:"average_heart_rate,omitempty"`
	AverageHRV         float64 `json:"average_hrv,omitempty"`
}

// ActivityRecord is one day from the Oura daily activity endpoint
type ActivityRecord struct {
	Day                string `json:"day"`
	Score              int    `json:"score"`
	Steps              int    `json:"steps"`
	ActiveCalories     int    `json:"active_calories"`
	TotalCalories      int    `json:"total_calories"`
	HighActivityTime   int    `json:"high_activity_time"`
	MediumActivityTime int    `json:"medium_activity_time"`
	LowActivityTime    int    `json:"low_activity_time"`
	SedentaryTime      int    `json:"sedentary_time"`
}

// ReadinessRecord is one day from the Oura daily readiness endpoint
type ReadinessRecord struct {
	Day                  string  `json:"day"`
	Score                int     `json:"score"`
	TemperatureDeviation float64 `json:"temperature_deviation,omitempty"`
	RestingHeartRate     int     `json:"resting_heart_rate,omitempty"`
	HRVBalance           int     `json:"hrv_balance,omitempty"`
	RecoveryIndex        int     `json:"recovery_index,omitempty"`
}

// HeartRateReading is a single timestamped bpm sample
type HeartRateReading struct {
	BPM       int    `json:"bpm"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DailyHeartRateStats aggregates one calendar day of readings.
// It must always equal the aggregation of the readings for that day.
type DailyHeartRateStats struct {
	Min      int     `json:"min"`
	Max      int     `json:"max"`
	Avg      float64 `json:"avg"`
	Readings int     `json:"readings"`
}

// HeartRateData holds raw readings plus per-day aggregates keyed by ISO date
type HeartRateData struct {
	Readings   []HeartRateReading             `json:"readings"`
	DailyStats map[string]DailyHeartRateStats `json:"dailyStats"`
}

// HealthData is the per-category payload fetched from Oura. Categories
// that were not requested (or returned nothing) are left nil and omitted
// from JSON.
type HealthData struct {
	Sleep     []SleepRecord     `json:"sleep,omitempty"`
	Activity  []ActivityRecord  `json:"activity,omitempty"`
	Readiness []ReadinessRecord `json:"readiness,omitempty"`
	HeartRate *HeartRateData    `json:"heartRate,omitempty"`
}

// Empty reports whether no category holds any data
func (h *HealthData) Empty() bool {
	if h == nil {
		return true
	}
	if len(h.Sleep) > 0 || len(h.Activity) > 0 || len(h.Readiness) > 0 {
		return false
	}
	return h.HeartRate == nil || len(h.HeartRate.Readings) == 0
}

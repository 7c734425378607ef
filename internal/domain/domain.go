package domain

import "time"

// Status is a store's observed state at a point in time.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Report states. Running is terminal-free; Complete and Failed are final.
const (
	ReportRunning  = "Running"
	ReportComplete = "Complete"
	ReportFailed   = "Failed"
)

// StatusObservation is a single point-in-time poll result for one store.
// Timestamps are unambiguous UTC instants from ingestion onward.
type StatusObservation struct {
	StoreID      string    `json:"store_id"`
	TimestampUTC time.Time `json:"timestamp_utc" format:"date-time"`
	Status       Status    `json:"status" enum:"active,inactive"`
}

// BusinessWindow is one weekday's local business hours for a store.
// DayOfWeek uses 0=Monday..6=Sunday. Times are "HH:MM:SS" local wall clock;
// start after end means the window crosses midnight.
type BusinessWindow struct {
	StoreID    string `json:"store_id"`
	DayOfWeek  int    `json:"day_of_week" minimum:"0" maximum:"6"`
	StartLocal string `json:"start_time_local"`
	EndLocal   string `json:"end_time_local"`
}

// TimezoneAssignment maps a store to its IANA zone name.
type TimezoneAssignment struct {
	StoreID  string `json:"store_id"`
	Timezone string `json:"timezone_str"`
}

// StoreMetrics is one report row. The last-hour figures are minutes while the
// day/week figures are hours; that asymmetry is part of the report contract.
type StoreMetrics struct {
	StoreID          string  `json:"store_id"`
	UptimeLastHour   float64 `json:"uptime_last_hour"`
	UptimeLastDay    float64 `json:"uptime_last_day"`
	UptimeLastWeek   float64 `json:"uptime_last_week"`
	DowntimeLastHour float64 `json:"downtime_last_hour"`
	DowntimeLastDay  float64 `json:"downtime_last_day"`
	DowntimeLastWeek float64 `json:"downtime_last_week"`
}

// Report tracks one asynchronous report generation job.
type Report struct {
	ID        string  `json:"report_id"`
	Status    string  `json:"status" enum:"Running,Complete,Failed"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	FilePath  *string `json:"file_path,omitempty"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	StoreID  string `json:"store_id,omitempty"`
	ReportID string `json:"report_id,omitempty"`
	Payload  string `json:"payload_json"`
}

package model

import "time"

// DailyCount is one day of a per-day counter series.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// DailyCredits is one day of credit flow.
type DailyCredits struct {
	Day    time.Time `json:"day"`
	Earned int64     `json:"earned"`
	Spent  int64     `json:"spent"`
}

// AnalyticsOverview is the admin dashboard payload.
type AnalyticsOverview struct {
	TotalUsers             int64          `json:"total_users"`
	ActiveToday            int64          `json:"active_today"`
	MissionsCompletedToday int64          `json:"missions_completed_today"`
	CreditsInCirculation   int64          `json:"credits_in_circulation"`
	Signups                []DailyCount   `json:"signups"`
	Credits                []DailyCredits `json:"credits"`
}

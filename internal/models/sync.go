package models

import "time"

// SyncResult summarises one sync pass over a connection. It is returned to the
// caller and cached for dashboards, not persisted as an entity.
type SyncResult struct {
	ConnectionID  string    `json:"connection_id"`
	Success       bool      `json:"success"`
	SyncedUsers   int       `json:"synced_users"`
	SyncedCourses int       `json:"synced_courses"`
	SyncedGrades  int       `json:"synced_grades"`
	Errors        []string  `json:"errors"`
	Warnings      []string  `json:"warnings"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ConnectionSummary is a connection row enriched with its cached last result,
// consumed by administrative dashboards.
type ConnectionSummary struct {
	Connection
	LastResult *SyncResult `json:"last_result,omitempty"`
}

// Pagination captures offset-based paging metadata on list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

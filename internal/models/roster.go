package models

import (
	"math"
	"time"
)

// ExternalRole is the canonical role enum external role identifiers map into.
type ExternalRole string

const (
	RoleStudent ExternalRole = "student"
	RoleTeacher ExternalRole = "teacher"
	RoleAdmin   ExternalRole = "admin"
)

// CourseStatus is the canonical course state enum.
type CourseStatus string

const (
	CourseActive   CourseStatus = "active"
	CourseInactive CourseStatus = "inactive"
	CourseArchived CourseStatus = "archived"
)

// ExternalUser is a provider user mapped into the canonical shape.
// Rows are keyed (connection_id, external_id).
type ExternalUser struct {
	ID           string       `db:"id" json:"id"`
	ConnectionID string       `db:"connection_id" json:"connection_id"`
	ExternalID   string       `db:"external_id" json:"external_id"`
	Email        string       `db:"email" json:"email"`
	DisplayName  string       `db:"display_name" json:"display_name"`
	Role         ExternalRole `db:"role" json:"role"`
	LastSync     time.Time    `db:"last_sync" json:"last_sync"`
}

// ExternalCourse is a provider course mapped into the canonical shape.
type ExternalCourse struct {
	ID           string       `db:"id" json:"id"`
	ConnectionID string       `db:"connection_id" json:"connection_id"`
	ExternalID   string       `db:"external_id" json:"external_id"`
	Name         string       `db:"name" json:"name"`
	Description  *string      `db:"description" json:"description,omitempty"`
	StartDate    *time.Time   `db:"start_date" json:"start_date,omitempty"`
	EndDate      *time.Time   `db:"end_date" json:"end_date,omitempty"`
	Status       CourseStatus `db:"status" json:"status"`
	LastSync     time.Time    `db:"last_sync" json:"last_sync"`
}

// ExternalGrade is one user's score on one gradable item.
// Percentage is always derived locally, never trusted from the provider.
type ExternalGrade struct {
	ID           string     `db:"id" json:"id"`
	ConnectionID string     `db:"connection_id" json:"connection_id"`
	UserID       string     `db:"external_user_id" json:"user_id"`
	ModuleID     string     `db:"module_id" json:"module_id"`
	Score        float64    `db:"score" json:"score"`
	MaxScore     float64    `db:"max_score" json:"max_score"`
	Percentage   float64    `db:"percentage" json:"percentage"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	LastSync     time.Time  `db:"last_sync" json:"last_sync"`
}

// DerivePercentage recomputes the percentage from score and max score,
// replacing whatever the provider supplied.
func (g *ExternalGrade) DerivePercentage() {
	if g.MaxScore <= 0 {
		g.Percentage = 0
		return
	}
	g.Percentage = math.Round(g.Score/g.MaxScore*10000) / 100
}

// Assignment describes a gradable item to create in a provider.
type Assignment struct {
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description,omitempty"`
	MaxScore    float64    `json:"max_score" validate:"required,gt=0"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

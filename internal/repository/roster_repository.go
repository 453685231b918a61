package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/lms-sync-api/internal/models"
)

// RosterRepository handles the canonical store of synced users, courses and
// grades. Every row is keyed (connection_id, external_id) so the same
// external id from two connections never collides, and upserts on that key
// are idempotent.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository creates a new roster repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// UpsertUser inserts or refreshes one canonical user row.
func (r *RosterRepository) UpsertUser(ctx context.Context, user *models.ExternalUser) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.LastSync = time.Now().UTC()
	const query = `INSERT INTO external_users (id, connection_id, external_id, email, display_name, role, last_sync)
        VALUES (:id, :connection_id, :external_id, :email, :display_name, :role, :last_sync)
        ON CONFLICT (connection_id, external_id)
        DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, role = EXCLUDED.role, last_sync = EXCLUDED.last_sync`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("upsert external user: %w", err)
	}
	return nil
}

// UpsertCourse inserts or refreshes one canonical course row.
func (r *RosterRepository) UpsertCourse(ctx context.Context, course *models.ExternalCourse) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.LastSync = time.Now().UTC()
	const query = `INSERT INTO external_courses (id, connection_id, external_id, name, description, start_date, end_date, status, last_sync)
        VALUES (:id, :connection_id, :external_id, :name, :description, :start_date, :end_date, :status, :last_sync)
        ON CONFLICT (connection_id, external_id)
        DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, status = EXCLUDED.status, last_sync = EXCLUDED.last_sync`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("upsert external course: %w", err)
	}
	return nil
}

// UpsertGrade inserts or refreshes one canonical grade row.
func (r *RosterRepository) UpsertGrade(ctx context.Context, grade *models.ExternalGrade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	grade.LastSync = time.Now().UTC()
	const query = `INSERT INTO external_grades (id, connection_id, external_user_id, module_id, score, max_score, percentage, feedback, submitted_at, graded_at, last_sync)
        VALUES (:id, :connection_id, :external_user_id, :module_id, :score, :max_score, :percentage, :feedback, :submitted_at, :graded_at, :last_sync)
        ON CONFLICT (connection_id, external_user_id, module_id)
        DO UPDATE SET score = EXCLUDED.score, max_score = EXCLUDED.max_score, percentage = EXCLUDED.percentage, feedback = EXCLUDED.feedback, submitted_at = EXCLUDED.submitted_at, graded_at = EXCLUDED.graded_at, last_sync = EXCLUDED.last_sync`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert external grade: %w", err)
	}
	return nil
}

// ListUsers returns the canonical user rows for a connection.
func (r *RosterRepository) ListUsers(ctx context.Context, connectionID string) ([]models.ExternalUser, error) {
	const query = `SELECT id, connection_id, external_id, email, display_name, role, last_sync
        FROM external_users WHERE connection_id = $1 ORDER BY external_id`
	var users []models.ExternalUser
	if err := r.db.SelectContext(ctx, &users, query, connectionID); err != nil {
		return nil, fmt.Errorf("list external users: %w", err)
	}
	return users, nil
}

// ListCourses returns the canonical course rows for a connection.
func (r *RosterRepository) ListCourses(ctx context.Context, connectionID string) ([]models.ExternalCourse, error) {
	const query = `SELECT id, connection_id, external_id, name, description, start_date, end_date, status, last_sync
        FROM external_courses WHERE connection_id = $1 ORDER BY external_id`
	var courses []models.ExternalCourse
	if err := r.db.SelectContext(ctx, &courses, query, connectionID); err != nil {
		return nil, fmt.Errorf("list external courses: %w", err)
	}
	return courses, nil
}

// ListGrades returns the canonical grade rows for a connection.
func (r *RosterRepository) ListGrades(ctx context.Context, connectionID string) ([]models.ExternalGrade, error) {
	const query = `SELECT id, connection_id, external_user_id, module_id, score, max_score, percentage, feedback, submitted_at, graded_at, last_sync
        FROM external_grades WHERE connection_id = $1 ORDER BY external_user_id, module_id`
	var grades []models.ExternalGrade
	if err := r.db.SelectContext(ctx, &grades, query, connectionID); err != nil {
		return nil, fmt.Errorf("list external grades: %w", err)
	}
	return grades, nil
}

// Counts returns how many canonical rows each table holds for a connection,
// used for staleness inspection on the admin surface.
func (r *RosterRepository) Counts(ctx context.Context, connectionID string) (users, courses, grades int, err error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM external_users WHERE connection_id = $1) AS users,
        (SELECT COUNT(*) FROM external_courses WHERE connection_id = $1) AS courses,
        (SELECT COUNT(*) FROM external_grades WHERE connection_id = $1) AS grades`
	var row struct {
		Users   int `db:"users"`
		Courses int `db:"courses"`
		Grades  int `db:"grades"`
	}
	if err = r.db.GetContext(ctx, &row, query, connectionID); err != nil {
		return 0, 0, 0, fmt.Errorf("count roster rows: %w", err)
	}
	return row.Users, row.Courses, row.Grades, nil
}

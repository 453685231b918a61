package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/lms-sync-api/internal/models"
)

// ConnectionRepository handles connection persistence.
type ConnectionRepository struct {
	db *sqlx.DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *sqlx.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

type connectionRow struct {
	models.Connection
	CredentialsJSON []byte `db:"credentials"`
}

func (r *ConnectionRepository) toRow(conn *models.Connection) (*connectionRow, error) {
	creds, err := json.Marshal(conn.Credentials)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return &connectionRow{Connection: *conn, CredentialsJSON: creds}, nil
}

func (row *connectionRow) toModel() (*models.Connection, error) {
	conn := row.Connection
	if len(row.CredentialsJSON) > 0 {
		if err := json.Unmarshal(row.CredentialsJSON, &conn.Credentials); err != nil {
			return nil, fmt.Errorf("unmarshal credentials: %w", err)
		}
	}
	return &conn, nil
}

// Create inserts a new connection row.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	row, err := r.toRow(conn)
	if err != nil {
		return err
	}
	const query = `INSERT INTO connections (id, institution_id, provider_type, base_url, credential_type, credentials, timeout_seconds, retry_attempts, status, sync_status, last_sync_time, error_message, created_at, updated_at)
        VALUES (:id, :institution_id, :provider_type, :base_url, :credential_type, :credentials, :timeout_seconds, :retry_attempts, :status, :sync_status, :last_sync_time, :error_message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

// FindByID loads one connection including its credentials.
func (r *ConnectionRepository) FindByID(ctx context.Context, id string) (*models.Connection, error) {
	const query = `SELECT id, institution_id, provider_type, base_url, credential_type, credentials, timeout_seconds, retry_attempts, status, sync_status, last_sync_time, error_message, created_at, updated_at
        FROM connections WHERE id = $1`
	var row connectionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// List returns all connections, optionally scoped to an institution.
func (r *ConnectionRepository) List(ctx context.Context, institutionID string) ([]models.Connection, error) {
	query := `SELECT id, institution_id, provider_type, base_url, credential_type, credentials, timeout_seconds, retry_attempts, status, sync_status, last_sync_time, error_message, created_at, updated_at
        FROM connections`
	var args []interface{}
	if institutionID != "" {
		query += " WHERE institution_id = $1"
		args = append(args, institutionID)
	}
	query += " ORDER BY created_at"

	var rows []connectionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	conns := make([]models.Connection, 0, len(rows))
	for i := range rows {
		conn, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, nil
}

// Delete removes a connection row. Canonical roster rows cascade via FK.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// BeginSync atomically flips the connection from not-syncing to syncing.
// Returns false when another sync already holds the flag, which is the one
// hard mutual-exclusion invariant of the subsystem.
func (r *ConnectionRepository) BeginSync(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE connections SET sync_status = $2, updated_at = $3
        WHERE id = $1 AND sync_status <> $2`
	res, err := r.db.ExecContext(ctx, query, id, models.SyncSyncing, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("begin sync: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FinishSync records the terminal state of a sync pass.
func (r *ConnectionRepository) FinishSync(ctx context.Context, id string, syncStatus models.SyncStatus, status models.ConnectionStatus, errorMessage *string) error {
	now := time.Now().UTC()
	var lastSync *time.Time
	if syncStatus == models.SyncIdle {
		lastSync = &now
	}
	const query = `UPDATE connections
        SET sync_status = $2, status = $3, error_message = $4,
            last_sync_time = COALESCE($5, last_sync_time), updated_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, syncStatus, status, errorMessage, lastSync, now); err != nil {
		return fmt.Errorf("finish sync: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is the missing-row sentinel.
func IsNotFound(err error) bool {
	return err == sql.ErrNoRows
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
)

// HeartbeatRepository defines storage operations for heartbeat snapshots.
// The table is append-only; there is no update or delete path.
type HeartbeatRepository interface {
	// Record appends a snapshot. A zero timestamp is filled with server time.
	Record(ctx context.Context, hb domain.Heartbeat) (domain.Heartbeat, error)
	// LatestByController returns the snapshot with the newest reported
	// timestamp, which is not necessarily the last row written
	LatestByController(ctx context.Context, controllerID int64) (domain.Heartbeat, error)
	// ListByController returns snapshots newest first. A non-positive limit
	// returns all of them.
	ListByController(ctx context.Context, controllerID int64, limit int) ([]domain.Heartbeat, error)
	// Close releases the cached prepared statements
	Close() error
}

// heartbeatRepositoryImpl implements HeartbeatRepository
type heartbeatRepositoryImpl struct {
	db    *sql.DB
	stmts *PreparedStatementCache
}

// NewHeartbeatRepository creates a new heartbeat repository
func NewHeartbeatRepository(db *sql.DB) HeartbeatRepository {
	return &heartbeatRepositoryImpl{
		db:    db,
		stmts: NewPreparedStatementCache(db),
	}
}

const heartbeatColumns = `id, controller_id, timestamp, cpu_usage_pct, memory_usage_pct, disk_usage_pct, uptime_seconds, firmware_version, metadata`

// Record appends a heartbeat snapshot
func (r *heartbeatRepositoryImpl) Record(ctx context.Context, hb domain.Heartbeat) (domain.Heartbeat, error) {
	if hb.ControllerID == 0 {
		return domain.Heartbeat{}, fmt.Errorf("controller ID is required")
	}

	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	} else {
		hb.Timestamp = hb.Timestamp.UTC()
	}

	metadata := "{}"
	if hb.Metadata != nil {
		raw, err := json.Marshal(hb.Metadata)
		if err != nil {
			return domain.Heartbeat{}, fmt.Errorf("failed to encode heartbeat metadata: %w", err)
		}
		metadata = string(raw)
	}

	result, err := r.stmts.ExecContext(ctx, `
		INSERT INTO heartbeats (controller_id, timestamp, cpu_usage_pct, memory_usage_pct, disk_usage_pct, uptime_seconds, firmware_version, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.ControllerID, formatTime(hb.Timestamp), hb.CPUUsagePct, hb.MemoryUsagePct,
		hb.DiskUsagePct, hb.UptimeSeconds, hb.FirmwareVersion, metadata)
	if err != nil {
		return domain.Heartbeat{}, fmt.Errorf("failed to record heartbeat: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Heartbeat{}, fmt.Errorf("failed to get heartbeat ID: %w", err)
	}

	hb.ID = id
	return hb, nil
}

// LatestByController returns the newest heartbeat by reported timestamp
func (r *heartbeatRepositoryImpl) LatestByController(ctx context.Context, controllerID int64) (domain.Heartbeat, error) {
	row, err := r.stmts.QueryRowContext(ctx, `
		SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE controller_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, controllerID)
	if err != nil {
		return domain.Heartbeat{}, fmt.Errorf("failed to find latest heartbeat: %w", err)
	}

	hb, err := scanHeartbeat(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Heartbeat{}, fmt.Errorf("no heartbeat for controller %d: %w", controllerID, ErrNotFound)
		}
		return domain.Heartbeat{}, fmt.Errorf("failed to find latest heartbeat: %w", err)
	}

	return hb, nil
}

// ListByController returns heartbeats for a controller, newest first
func (r *heartbeatRepositoryImpl) ListByController(ctx context.Context, controllerID int64, limit int) ([]domain.Heartbeat, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE controller_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, controllerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	defer rows.Close()

	var heartbeats []domain.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan heartbeat: %w", err)
		}
		heartbeats = append(heartbeats, hb)
	}

	return heartbeats, nil
}

// Close releases the cached prepared statements
func (r *heartbeatRepositoryImpl) Close() error {
	return r.stmts.Close()
}

// scanHeartbeat reads one heartbeat row from either a *sql.Row or *sql.Rows
func scanHeartbeat(row interface{ Scan(...any) error }) (domain.Heartbeat, error) {
	var (
		hb        domain.Heartbeat
		timestamp string
		metadata  string
	)
	if err := row.Scan(&hb.ID, &hb.ControllerID, &timestamp, &hb.CPUUsagePct,
		&hb.MemoryUsagePct, &hb.DiskUsagePct, &hb.UptimeSeconds,
		&hb.FirmwareVersion, &metadata); err != nil {
		return domain.Heartbeat{}, err
	}

	var err error
	if hb.Timestamp, err = parseTime(timestamp); err != nil {
		return domain.Heartbeat{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &hb.Metadata); err != nil {
		return domain.Heartbeat{}, fmt.Errorf("failed to decode heartbeat metadata: %w", err)
	}

	return hb, nil
}

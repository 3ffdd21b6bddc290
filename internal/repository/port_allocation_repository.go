package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
)

// PortAllocationRepository defines storage operations for reverse-tunnel ports
type PortAllocationRepository interface {
	// Allocate assigns the lowest free port in [minPort, maxPort] to the
	// controller. When the controller already holds a port that allocation
	// is returned unchanged and the second result is true. Returns
	// ErrPoolExhausted when every port in the range is taken.
	Allocate(ctx context.Context, controllerID int64, minPort, maxPort int) (domain.PortAllocation, bool, error)
	FindByControllerID(ctx context.Context, controllerID int64) (domain.PortAllocation, error)
	ListAll(ctx context.Context) ([]domain.PortAllocation, error)
	// Release frees the controller's port for reuse
	Release(ctx context.Context, controllerID int64) error
}

// portAllocationRepositoryImpl implements PortAllocationRepository
type portAllocationRepositoryImpl struct {
	db *sql.DB
}

// NewPortAllocationRepository creates a new port allocation repository
func NewPortAllocationRepository(db *sql.DB) PortAllocationRepository {
	return &portAllocationRepositoryImpl{
		db: db,
	}
}

// Allocate assigns the lowest free port in the range to the controller.
// Uniqueness is enforced by the table's UNIQUE constraints, not by locking:
// when two requests race for the same port the loser's INSERT fails and it
// rescans. Every failed attempt means another writer made progress, and the
// retry budget covers losing every port in the range.
func (r *portAllocationRepositoryImpl) Allocate(ctx context.Context, controllerID int64, minPort, maxPort int) (domain.PortAllocation, bool, error) {
	if controllerID == 0 {
		return domain.PortAllocation{}, false, fmt.Errorf("controller ID is required")
	}
	if minPort <= 0 || maxPort < minPort {
		return domain.PortAllocation{}, false, fmt.Errorf("invalid port range %d-%d", minPort, maxPort)
	}

	// The referenced controller must exist
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM controllers WHERE id = ?", controllerID).Scan(&count)
	if err != nil {
		return domain.PortAllocation{}, false, fmt.Errorf("failed to check controller existence: %w", err)
	}
	if count == 0 {
		return domain.PortAllocation{}, false, fmt.Errorf("controller with ID %d: %w", controllerID, ErrNotFound)
	}

	attempts := maxPort - minPort + 2
	for attempt := 0; attempt < attempts; attempt++ {
		// A controller keeps its port across repeat requests
		existing, err := r.FindByControllerID(ctx, controllerID)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return domain.PortAllocation{}, false, err
		}

		port, err := r.lowestFreePort(ctx, minPort, maxPort)
		if err != nil {
			return domain.PortAllocation{}, false, err
		}
		if port == 0 {
			return domain.PortAllocation{}, false, fmt.Errorf("no free port in range %d-%d: %w", minPort, maxPort, ErrPoolExhausted)
		}

		now := time.Now().UTC()
		result, err := r.db.ExecContext(ctx, `
			INSERT INTO port_allocations (controller_id, port, created_at)
			VALUES (?, ?, ?)`,
			controllerID, port, formatTime(now))
		if err != nil {
			if isUniqueConstraintErr(err) {
				// Lost the race for this port (or a concurrent request for
				// the same controller won); rescan and retry
				continue
			}
			return domain.PortAllocation{}, false, fmt.Errorf("failed to allocate port: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return domain.PortAllocation{}, false, fmt.Errorf("failed to get allocation ID: %w", err)
		}

		return domain.PortAllocation{
			ID:           id,
			ControllerID: controllerID,
			Port:         port,
			CreatedAt:    now,
		}, false, nil
	}

	return domain.PortAllocation{}, false, fmt.Errorf("failed to allocate port after %d attempts", attempts)
}

// lowestFreePort scans the range ascending and returns the first port with
// no allocation, or 0 when the range is full
func (r *portAllocationRepositoryImpl) lowestFreePort(ctx context.Context, minPort, maxPort int) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT port FROM port_allocations
		WHERE port BETWEEN ? AND ?
		ORDER BY port`, minPort, maxPort)
	if err != nil {
		return 0, fmt.Errorf("failed to list allocated ports: %w", err)
	}
	defer rows.Close()

	taken := make(map[int]bool)
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return 0, fmt.Errorf("failed to scan allocated port: %w", err)
		}
		taken[port] = true
	}

	for port := minPort; port <= maxPort; port++ {
		if !taken[port] {
			return port, nil
		}
	}

	return 0, nil
}

// FindByControllerID finds the allocation held by a controller
func (r *portAllocationRepositoryImpl) FindByControllerID(ctx context.Context, controllerID int64) (domain.PortAllocation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, controller_id, port, created_at
		FROM port_allocations
		WHERE controller_id = ?`, controllerID)

	alloc, err := scanPortAllocation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.PortAllocation{}, fmt.Errorf("no port allocation for controller %d: %w", controllerID, ErrNotFound)
		}
		return domain.PortAllocation{}, fmt.Errorf("failed to find port allocation: %w", err)
	}

	return alloc, nil
}

// ListAll lists every allocation ordered by port
func (r *portAllocationRepositoryImpl) ListAll(ctx context.Context) ([]domain.PortAllocation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, controller_id, port, created_at
		FROM port_allocations
		ORDER BY port`)
	if err != nil {
		return nil, fmt.Errorf("failed to list port allocations: %w", err)
	}
	defer rows.Close()

	var allocations []domain.PortAllocation
	for rows.Next() {
		alloc, err := scanPortAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan port allocation: %w", err)
		}
		allocations = append(allocations, alloc)
	}

	return allocations, nil
}

// Release frees the controller's port
func (r *portAllocationRepositoryImpl) Release(ctx context.Context, controllerID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM port_allocations WHERE controller_id = ?`, controllerID)
	if err != nil {
		return fmt.Errorf("failed to release port: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no port allocation for controller %d: %w", controllerID, ErrNotFound)
	}

	return nil
}

// scanPortAllocation reads one allocation row from either a *sql.Row or *sql.Rows
func scanPortAllocation(row interface{ Scan(...any) error }) (domain.PortAllocation, error) {
	var (
		alloc     domain.PortAllocation
		createdAt string
	)
	if err := row.Scan(&alloc.ID, &alloc.ControllerID, &alloc.Port, &createdAt); err != nil {
		return domain.PortAllocation{}, err
	}

	var err error
	if alloc.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.PortAllocation{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return alloc, nil
}

// isUniqueConstraintErr reports whether err is a UNIQUE constraint violation.
// Matching on the message keeps the repositories free of driver imports.
func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
)

// ControllerRepository defines domain-specific operations for controllers
type ControllerRepository interface {
	Repository[domain.Controller, int64]
	FindByName(ctx context.Context, name string) (domain.Controller, error)
	FindBySiteID(ctx context.Context, siteID int64) ([]domain.Controller, error)
	// TouchConfigSynced records when a config sync was last observed to complete
	TouchConfigSynced(ctx context.Context, id int64, syncedAt time.Time) error
}

// controllerRepositoryImpl implements ControllerRepository
type controllerRepositoryImpl struct {
	db *sql.DB
}

// NewControllerRepository creates a new controller repository
func NewControllerRepository(db *sql.DB) ControllerRepository {
	return &controllerRepositoryImpl{
		db: db,
	}
}

// Save creates or updates a controller
func (r *controllerRepositoryImpl) Save(ctx context.Context, controller domain.Controller) (domain.Controller, error) {
	if controller.ID == 0 {
		return r.createController(ctx, controller)
	}
	return r.updateController(ctx, controller)
}

// createController inserts a new controller into the database
func (r *controllerRepositoryImpl) createController(ctx context.Context, c domain.Controller) (domain.Controller, error) {
	if c.SiteID == 0 {
		return domain.Controller{}, fmt.Errorf("site ID is required")
	}
	if c.Name == "" {
		return domain.Controller{}, fmt.Errorf("controller name is required")
	}
	if c.SerialNumber == "" {
		return domain.Controller{}, fmt.Errorf("controller serial number is required")
	}

	// The referenced site must exist
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites WHERE id = ?", c.SiteID).Scan(&count)
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to check site existence: %w", err)
	}
	if count == 0 {
		return domain.Controller{}, fmt.Errorf("site with ID %d: %w", c.SiteID, ErrNotFound)
	}

	// Check for duplicate name
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM controllers WHERE name = ?", c.Name).Scan(&count)
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to check for duplicate controller name: %w", err)
	}
	if count > 0 {
		return domain.Controller{}, fmt.Errorf("controller with name '%s': %w", c.Name, ErrDuplicate)
	}

	// Check for duplicate serial number
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM controllers WHERE serial_number = ?", c.SerialNumber).Scan(&count)
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to check for duplicate serial number: %w", err)
	}
	if count > 0 {
		return domain.Controller{}, fmt.Errorf("controller with serial number '%s': %w", c.SerialNumber, ErrDuplicate)
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO controllers (site_id, name, serial_number, firmware_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.SiteID, c.Name, c.SerialNumber, c.FirmwareVersion, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to create controller: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to get controller ID: %w", err)
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return c, nil
}

// updateController updates an existing controller in the database
func (r *controllerRepositoryImpl) updateController(ctx context.Context, c domain.Controller) (domain.Controller, error) {
	if c.Name == "" {
		return domain.Controller{}, fmt.Errorf("controller name is required")
	}
	if c.SerialNumber == "" {
		return domain.Controller{}, fmt.Errorf("controller serial number is required")
	}

	// Check for duplicate name (excluding current controller)
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM controllers WHERE name = ? AND id != ?", c.Name, c.ID).Scan(&count)
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to check for duplicate controller name: %w", err)
	}
	if count > 0 {
		return domain.Controller{}, fmt.Errorf("controller with name '%s': %w", c.Name, ErrDuplicate)
	}

	now := time.Now().UTC()
	var lastSync any
	if c.LastConfigSyncAt != nil {
		lastSync = formatTime(*c.LastConfigSyncAt)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE controllers
		SET site_id = ?, name = ?, serial_number = ?, firmware_version = ?, last_config_sync_at = ?, updated_at = ?
		WHERE id = ?`,
		c.SiteID, c.Name, c.SerialNumber, c.FirmwareVersion, lastSync, formatTime(now), c.ID)
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to update controller: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return domain.Controller{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.Controller{}, fmt.Errorf("controller with ID %d: %w", c.ID, ErrNotFound)
	}

	c.UpdatedAt = now
	return c, nil
}

// FindByID finds a controller by ID
func (r *controllerRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Controller, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, site_id, name, serial_number, firmware_version, last_config_sync_at, created_at, updated_at
		FROM controllers
		WHERE id = ?`, id)

	controller, err := scanController(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Controller{}, fmt.Errorf("controller with ID %d: %w", id, ErrNotFound)
		}
		return domain.Controller{}, fmt.Errorf("failed to find controller: %w", err)
	}

	return controller, nil
}

// FindByName finds a controller by name
func (r *controllerRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Controller, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, site_id, name, serial_number, firmware_version, last_config_sync_at, created_at, updated_at
		FROM controllers
		WHERE name = ?`, name)

	controller, err := scanController(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Controller{}, fmt.Errorf("controller with name '%s': %w", name, ErrNotFound)
		}
		return domain.Controller{}, fmt.Errorf("failed to find controller: %w", err)
	}

	return controller, nil
}

// FindBySiteID finds all controllers for a specific site
func (r *controllerRepositoryImpl) FindBySiteID(ctx context.Context, siteID int64) ([]domain.Controller, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, site_id, name, serial_number, firmware_version, last_config_sync_at, created_at, updated_at
		FROM controllers
		WHERE site_id = ?
		ORDER BY name`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to find controllers for site: %w", err)
	}
	defer rows.Close()

	return collectControllers(rows)
}

// FindAll finds all controllers
func (r *controllerRepositoryImpl) FindAll(ctx context.Context) ([]domain.Controller, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, site_id, name, serial_number, firmware_version, last_config_sync_at, created_at, updated_at
		FROM controllers
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to find controllers: %w", err)
	}
	defer rows.Close()

	return collectControllers(rows)
}

// DeleteByID deletes a controller by ID
func (r *controllerRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM controllers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete controller: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ExistsByID checks if a controller exists by ID
func (r *controllerRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM controllers WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check controller existence: %w", err)
	}

	return count > 0, nil
}

// TouchConfigSynced records when a config sync was last observed to complete
func (r *controllerRepositoryImpl) TouchConfigSynced(ctx context.Context, id int64, syncedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE controllers
		SET last_config_sync_at = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(syncedAt), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to record config sync: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("controller with ID %d: %w", id, ErrNotFound)
	}

	return nil
}

// scanController reads one controller row from either a *sql.Row or *sql.Rows
func scanController(row interface{ Scan(...any) error }) (domain.Controller, error) {
	var (
		c         domain.Controller
		lastSync  sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&c.ID, &c.SiteID, &c.Name, &c.SerialNumber, &c.FirmwareVersion,
		&lastSync, &createdAt, &updatedAt); err != nil {
		return domain.Controller{}, err
	}

	var err error
	if c.LastConfigSyncAt, err = parseNullTime(lastSync); err != nil {
		return domain.Controller{}, fmt.Errorf("failed to parse last_config_sync_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Controller{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Controller{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return c, nil
}

func collectControllers(rows *sql.Rows) ([]domain.Controller, error) {
	var controllers []domain.Controller
	for rows.Next() {
		controller, err := scanController(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan controller: %w", err)
		}
		controllers = append(controllers, controller)
	}

	return controllers, nil
}

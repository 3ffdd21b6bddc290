package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
)

// SiteRepository defines domain-specific operations for sites
type SiteRepository interface {
	Repository[domain.Site, int64]
	FindByName(ctx context.Context, name string) (domain.Site, error)
}

// siteRepositoryImpl implements SiteRepository
type siteRepositoryImpl struct {
	db *sql.DB
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *sql.DB) SiteRepository {
	return &siteRepositoryImpl{
		db: db,
	}
}

// Save creates or updates a site
func (r *siteRepositoryImpl) Save(ctx context.Context, site domain.Site) (domain.Site, error) {
	if site.ID == 0 {
		return r.createSite(ctx, site)
	}
	return r.updateSite(ctx, site)
}

// createSite inserts a new site into the database
func (r *siteRepositoryImpl) createSite(ctx context.Context, s domain.Site) (domain.Site, error) {
	if s.Name == "" {
		return domain.Site{}, fmt.Errorf("site name is required")
	}

	// Check for duplicate name
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites WHERE name = ?", s.Name).Scan(&count)
	if err != nil {
		return domain.Site{}, fmt.Errorf("failed to check for duplicate site name: %w", err)
	}
	if count > 0 {
		return domain.Site{}, fmt.Errorf("site with name '%s': %w", s.Name, ErrDuplicate)
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (name, location, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.Name, s.Location, s.Description, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Site{}, fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Site{}, fmt.Errorf("failed to get site ID: %w", err)
	}

	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return s, nil
}

// updateSite updates an existing site in the database
func (r *siteRepositoryImpl) updateSite(ctx context.Context, s domain.Site) (domain.Site, error) {
	if s.Name == "" {
		return domain.Site{}, fmt.Errorf("site name is required")
	}

	// Check for duplicate name (excluding current site)
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites WHERE name = ? AND id != ?", s.Name, s.ID).Scan(&count)
	if err != nil {
		return domain.Site{}, fmt.Errorf("failed to check for duplicate site name: %w", err)
	}
	if count > 0 {
		return domain.Site{}, fmt.Errorf("site with name '%s': %w", s.Name, ErrDuplicate)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE sites
		SET name = ?, location = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Location, s.Description, formatTime(now), s.ID)
	if err != nil {
		return domain.Site{}, fmt.Errorf("failed to update site: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return domain.Site{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.Site{}, fmt.Errorf("site with ID %d: %w", s.ID, ErrNotFound)
	}

	s.UpdatedAt = now
	return s, nil
}

// FindByID finds a site by ID
func (r *siteRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Site, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, location, description, created_at, updated_at
		FROM sites
		WHERE id = ?`, id)

	site, err := scanSite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Site{}, fmt.Errorf("site with ID %d: %w", id, ErrNotFound)
		}
		return domain.Site{}, fmt.Errorf("failed to find site: %w", err)
	}

	return site, nil
}

// FindByName finds a site by name
func (r *siteRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Site, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, location, description, created_at, updated_at
		FROM sites
		WHERE name = ?`, name)

	site, err := scanSite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Site{}, fmt.Errorf("site with name '%s': %w", name, ErrNotFound)
		}
		return domain.Site{}, fmt.Errorf("failed to find site: %w", err)
	}

	return site, nil
}

// FindAll finds all sites
func (r *siteRepositoryImpl) FindAll(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, location, description, created_at, updated_at
		FROM sites
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to find sites: %w", err)
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, nil
}

// DeleteByID deletes a site by ID
func (r *siteRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
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

// ExistsByID checks if a site exists by ID
func (r *siteRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check site existence: %w", err)
	}

	return count > 0, nil
}

// scanSite reads one site row from either a *sql.Row or *sql.Rows
func scanSite(row interface{ Scan(...any) error }) (domain.Site, error) {
	var (
		s         domain.Site
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Location, &s.Description, &createdAt, &updatedAt); err != nil {
		return domain.Site{}, err
	}

	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Site{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Site{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return s, nil
}

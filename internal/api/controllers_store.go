package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

func controllerFromDomain(c domain.Controller) Controller {
	return Controller{
		ID:               c.ID,
		SiteID:           c.SiteID,
		Name:             c.Name,
		SerialNumber:     c.SerialNumber,
		FirmwareVersion:  c.FirmwareVersion,
		LastConfigSyncAt: c.LastConfigSyncAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// ListControllers implements ControllersStore interface
func (a *API) ListControllers() ([]Controller, error) {
	controllers, err := a.controllerRepo.FindAll(context.Background())
	if err != nil {
		return nil, err
	}
	var result []Controller
	for _, c := range controllers {
		result = append(result, controllerFromDomain(c))
	}
	return result, nil
}

// ListControllersBySite implements ControllersStore interface
func (a *API) ListControllersBySite(siteID int64) ([]Controller, error) {
	exists, err := a.siteRepo.ExistsByID(context.Background(), siteID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("site with ID %d: %w", siteID, repository.ErrNotFound)
	}

	controllers, err := a.controllerRepo.FindBySiteID(context.Background(), siteID)
	if err != nil {
		return nil, err
	}
	var result []Controller
	for _, c := range controllers {
		result = append(result, controllerFromDomain(c))
	}
	return result, nil
}

// CreateController implements ControllersStore interface
func (a *API) CreateController(c Controller) (Controller, error) {
	saved, err := a.controllerRepo.Save(context.Background(), domain.Controller{
		ID:              c.ID,
		SiteID:          c.SiteID,
		Name:            c.Name,
		SerialNumber:    c.SerialNumber,
		FirmwareVersion: c.FirmwareVersion,
	})
	if err != nil {
		return Controller{}, err
	}
	return controllerFromDomain(saved), nil
}

// GetController implements ControllersStore interface
func (a *API) GetController(id int64) (*Controller, error) {
	controller, err := a.controllerRepo.FindByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := controllerFromDomain(controller)
	return &result, nil
}

// GetControllerByName implements ControllersStore interface
func (a *API) GetControllerByName(name string) (*Controller, error) {
	controller, err := a.controllerRepo.FindByName(context.Background(), name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := controllerFromDomain(controller)
	return &result, nil
}

// DeleteController implements ControllersStore interface
func (a *API) DeleteController(id int64) error {
	return a.controllerRepo.DeleteByID(context.Background(), id)
}

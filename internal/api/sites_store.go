package api

import (
	"context"
	"errors"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

func siteFromDomain(s domain.Site) Site {
	return Site{
		ID:          s.ID,
		Name:        s.Name,
		Location:    s.Location,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// ListSites implements SitesStore interface
func (a *API) ListSites() ([]Site, error) {
	sites, err := a.siteRepo.FindAll(context.Background())
	if err != nil {
		return nil, err
	}
	var result []Site
	for _, s := range sites {
		result = append(result, siteFromDomain(s))
	}
	return result, nil
}

// CreateSite implements SitesStore interface
func (a *API) CreateSite(s Site) (Site, error) {
	saved, err := a.siteRepo.Save(context.Background(), domain.Site{
		ID:          s.ID,
		Name:        s.Name,
		Location:    s.Location,
		Description: s.Description,
	})
	if err != nil {
		return Site{}, err
	}
	return siteFromDomain(saved), nil
}

// GetSite implements SitesStore interface
func (a *API) GetSite(id int64) (*Site, error) {
	site, err := a.siteRepo.FindByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := siteFromDomain(site)
	return &result, nil
}

// GetSiteByName implements SitesStore interface
func (a *API) GetSiteByName(name string) (*Site, error) {
	site, err := a.siteRepo.FindByName(context.Background(), name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := siteFromDomain(site)
	return &result, nil
}

// DeleteSite implements SitesStore interface
func (a *API) DeleteSite(id int64) error {
	return a.siteRepo.DeleteByID(context.Background(), id)
}

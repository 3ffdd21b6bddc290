package api

import (
	"context"
	"errors"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

func portFromDomain(p domain.PortAllocation) PortAllocation {
	return PortAllocation{
		ID:           p.ID,
		ControllerID: p.ControllerID,
		Port:         p.Port,
		CreatedAt:    p.CreatedAt,
	}
}

// AllocatePort implements PortsStore interface
func (a *API) AllocatePort(controllerID int64) (PortAllocation, bool, error) {
	allocation, already, err := a.portRepo.Allocate(context.Background(), controllerID, a.portRangeMin, a.portRangeMax)
	if err != nil {
		return PortAllocation{}, false, err
	}
	return portFromDomain(allocation), already, nil
}

// GetPortAllocation implements PortsStore interface
func (a *API) GetPortAllocation(controllerID int64) (*PortAllocation, error) {
	allocation, err := a.portRepo.FindByControllerID(context.Background(), controllerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := portFromDomain(allocation)
	return &result, nil
}

// ListPortAllocations implements PortsStore interface
func (a *API) ListPortAllocations() ([]PortAllocation, error) {
	allocations, err := a.portRepo.ListAll(context.Background())
	if err != nil {
		return nil, err
	}
	var result []PortAllocation
	for _, allocation := range allocations {
		result = append(result, portFromDomain(allocation))
	}
	return result, nil
}

// ReleasePort implements PortsStore interface
func (a *API) ReleasePort(controllerID int64) error {
	return a.portRepo.Release(context.Background(), controllerID)
}

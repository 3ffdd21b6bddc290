package api

import (
	"context"
	"fmt"
	"time"

	"github.com/byosamah/volteria-sub006/internal/repository"
)

// ControllerLiveness implements LivenessStore interface. A zero threshold
// falls back to the API's configured default.
func (a *API) ControllerLiveness(controllerID int64, threshold time.Duration) (ControllerLiveness, error) {
	controller, err := a.controllerRepo.FindByID(context.Background(), controllerID)
	if err != nil {
		return ControllerLiveness{}, err
	}

	if threshold <= 0 {
		threshold = a.livenessThreshold
	}
	status, err := a.classifier.Status(context.Background(), controllerID, time.Now().UTC(), threshold)
	if err != nil {
		return ControllerLiveness{}, err
	}

	return ControllerLiveness{
		ControllerID: controller.ID,
		Name:         controller.Name,
		Online:       status.Online,
		LastSeen:     status.LastSeen,
	}, nil
}

// SiteLiveness implements LivenessStore interface. All controllers at the
// site are classified against the same instant.
func (a *API) SiteLiveness(siteID int64, threshold time.Duration) ([]ControllerLiveness, error) {
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

	if threshold <= 0 {
		threshold = a.livenessThreshold
	}
	now := time.Now().UTC()

	verdicts := make([]ControllerLiveness, len(controllers))
	for i, controller := range controllers {
		status, err := a.classifier.Status(context.Background(), controller.ID, now, threshold)
		if err != nil {
			return nil, err
		}
		verdicts[i] = ControllerLiveness{
			ControllerID: controller.ID,
			Name:         controller.Name,
			Online:       status.Online,
			LastSeen:     status.LastSeen,
		}
	}
	return verdicts, nil
}

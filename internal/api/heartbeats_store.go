package api

import (
	"context"
	"errors"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

func heartbeatFromDomain(hb domain.Heartbeat) Heartbeat {
	return Heartbeat{
		ID:              hb.ID,
		ControllerID:    hb.ControllerID,
		Timestamp:       hb.Timestamp,
		CPUUsagePct:     hb.CPUUsagePct,
		MemoryUsagePct:  hb.MemoryUsagePct,
		DiskUsagePct:    hb.DiskUsagePct,
		UptimeSeconds:   hb.UptimeSeconds,
		FirmwareVersion: hb.FirmwareVersion,
		Metadata:        hb.Metadata,
	}
}

// ControllerExists implements HeartbeatsStore interface
func (a *API) ControllerExists(id int64) (bool, error) {
	return a.controllerRepo.ExistsByID(context.Background(), id)
}

// RecordHeartbeat implements HeartbeatsStore interface
func (a *API) RecordHeartbeat(hb Heartbeat) (Heartbeat, error) {
	recorded, err := a.heartbeatRepo.Record(context.Background(), domain.Heartbeat{
		ControllerID:    hb.ControllerID,
		Timestamp:       hb.Timestamp,
		CPUUsagePct:     hb.CPUUsagePct,
		MemoryUsagePct:  hb.MemoryUsagePct,
		DiskUsagePct:    hb.DiskUsagePct,
		UptimeSeconds:   hb.UptimeSeconds,
		FirmwareVersion: hb.FirmwareVersion,
		Metadata:        hb.Metadata,
	})
	if err != nil {
		return Heartbeat{}, err
	}
	return heartbeatFromDomain(recorded), nil
}

// LatestHeartbeat implements HeartbeatsStore interface
func (a *API) LatestHeartbeat(controllerID int64) (*Heartbeat, error) {
	hb, err := a.heartbeatRepo.LatestByController(context.Background(), controllerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := heartbeatFromDomain(hb)
	return &result, nil
}

// ListHeartbeats implements HeartbeatsStore interface
func (a *API) ListHeartbeats(controllerID int64, limit int) ([]Heartbeat, error) {
	heartbeats, err := a.heartbeatRepo.ListByController(context.Background(), controllerID, limit)
	if err != nil {
		return nil, err
	}
	var result []Heartbeat
	for _, hb := range heartbeats {
		result = append(result, heartbeatFromDomain(hb))
	}
	return result, nil
}

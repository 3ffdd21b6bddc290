package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Heartbeat represents one telemetry report from a controller
type Heartbeat struct {
	ID              int64          // Unique identifier
	ControllerID    int64          // Reporting controller
	Timestamp       time.Time      // Controller-reported time
	CPUUsagePct     float64        // CPU usage percentage
	MemoryUsagePct  float64        // Memory usage percentage
	DiskUsagePct    float64        // Disk usage percentage
	UptimeSeconds   int64          // Seconds since controller boot
	FirmwareVersion string         // Firmware running at report time
	Metadata        map[string]any // Free-form extras, stored as-is
}

// HeartbeatsStore defines the datastore interface for heartbeat handlers
type HeartbeatsStore interface {
	ControllerExists(id int64) (bool, error)
	RecordHeartbeat(hb Heartbeat) (Heartbeat, error)
	LatestHeartbeat(controllerID int64) (*Heartbeat, error)
	ListHeartbeats(controllerID int64, limit int) ([]Heartbeat, error)
}

// Heartbeats groups heartbeat handlers for testability
type Heartbeats struct {
	store HeartbeatsStore
}

func NewHeartbeats(store HeartbeatsStore) *Heartbeats {
	return &Heartbeats{store: store}
}

type RecordHeartbeatRequest struct {
	Timestamp       time.Time      `json:"timestamp,omitempty"`
	CPUUsagePct     float64        `json:"cpu_usage_pct,omitempty"`
	MemoryUsagePct  float64        `json:"memory_usage_pct,omitempty"`
	DiskUsagePct    float64        `json:"disk_usage_pct,omitempty"`
	UptimeSeconds   int64          `json:"uptime_seconds,omitempty"`
	FirmwareVersion string         `json:"firmware_version,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type HeartbeatResponse struct {
	ID              int64          `json:"id"`
	ControllerID    int64          `json:"controller_id"`
	Timestamp       time.Time      `json:"timestamp"`
	CPUUsagePct     float64        `json:"cpu_usage_pct"`
	MemoryUsagePct  float64        `json:"memory_usage_pct"`
	DiskUsagePct    float64        `json:"disk_usage_pct"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	FirmwareVersion string         `json:"firmware_version,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func heartbeatResponse(hb Heartbeat) HeartbeatResponse {
	return HeartbeatResponse{
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

// RecordHeartbeatHandler handles POST /api/v0/controllers/{id}/heartbeats.
//
// Ingestion is append-only and accepts whatever the controller reports; the
// only rejections are a malformed body and an unknown controller.
func (h *Heartbeats) RecordHeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	controllerID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid controller ID"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	var req RecordHeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid JSON"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	exists, err := h.store.ControllerExists(controllerID)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to check controller: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}
	if !exists {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	recorded, err := h.store.RecordHeartbeat(Heartbeat{
		ControllerID:    controllerID,
		Timestamp:       req.Timestamp,
		CPUUsagePct:     req.CPUUsagePct,
		MemoryUsagePct:  req.MemoryUsagePct,
		DiskUsagePct:    req.DiskUsagePct,
		UptimeSeconds:   req.UptimeSeconds,
		FirmwareVersion: req.FirmwareVersion,
		Metadata:        req.Metadata,
	})
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to record heartbeat: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(heartbeatResponse(recorded)); err != nil {
		log.Printf("failed to encode heartbeat response: %v", err)
	}
}

// LatestHeartbeatHandler handles GET /api/v0/controllers/{id}/heartbeats/latest
func (h *Heartbeats) LatestHeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	controllerID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid controller ID"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	hb, err := h.store.LatestHeartbeat(controllerID)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to get heartbeat: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if hb == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "No heartbeats recorded"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(heartbeatResponse(*hb)); err != nil {
		log.Printf("failed to encode heartbeat response: %v", err)
	}
}

// ListHeartbeatsHandler handles GET /api/v0/controllers/{id}/heartbeats
func (h *Heartbeats) ListHeartbeatsHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	controllerID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid controller ID"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid limit"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
	}

	heartbeats, err := h.store.ListHeartbeats(controllerID, limit)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to list heartbeats: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := make([]HeartbeatResponse, len(heartbeats))
	for i, hb := range heartbeats {
		response[i] = heartbeatResponse(hb)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode heartbeats response: %v", err)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/byosamah/volteria-sub006/internal/repository"
)

// PortAllocation represents a reverse-tunnel port held by a controller
type PortAllocation struct {
	ID           int64     // Unique identifier
	ControllerID int64     // Holding controller
	Port         int       // Allocated port
	CreatedAt    time.Time // Allocation time
}

// PortsStore defines the datastore interface for port handlers
type PortsStore interface {
	AllocatePort(controllerID int64) (PortAllocation, bool, error)
	GetPortAllocation(controllerID int64) (*PortAllocation, error)
	ListPortAllocations() ([]PortAllocation, error)
	ReleasePort(controllerID int64) error
}

// Ports groups port handlers for testability
type Ports struct {
	store PortsStore
}

func NewPorts(store PortsStore) *Ports {
	return &Ports{store: store}
}

type AllocatePortResponse struct {
	ControllerID      int64 `json:"controller_id"`
	Port              int   `json:"port"`
	AlreadyConfigured bool  `json:"already_configured"`
}

type PortAllocationResponse struct {
	ID           int64     `json:"id"`
	ControllerID int64     `json:"controller_id"`
	Port         int       `json:"port"`
	CreatedAt    time.Time `json:"created_at"`
}

// AllocatePortHandler handles POST /api/v0/controllers/{id}/port.
//
// Allocation is idempotent: a controller that already holds a port gets the
// same port back with already_configured set.
func (p *Ports) AllocatePortHandler(w http.ResponseWriter, r *http.Request) {
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

	allocation, already, err := p.store.AllocatePort(controllerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		if errors.Is(err, repository.ErrPoolExhausted) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "pool_exhausted"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to allocate port: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := AllocatePortResponse{
		ControllerID:      allocation.ControllerID,
		Port:              allocation.Port,
		AlreadyConfigured: already,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode port response: %v", err)
	}
}

// GetPortHandler handles GET /api/v0/controllers/{id}/port
func (p *Ports) GetPortHandler(w http.ResponseWriter, r *http.Request) {
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

	allocation, err := p.store.GetPortAllocation(controllerID)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to get port allocation: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if allocation == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "No port allocated"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := PortAllocationResponse{
		ID:           allocation.ID,
		ControllerID: allocation.ControllerID,
		Port:         allocation.Port,
		CreatedAt:    allocation.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode port response: %v", err)
	}
}

// ListPortsHandler handles GET /api/v0/ports
func (p *Ports) ListPortsHandler(w http.ResponseWriter, r *http.Request) {
	allocations, err := p.store.ListPortAllocations()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list port allocations: %v", err), http.StatusInternalServerError)
		return
	}

	response := make([]PortAllocationResponse, len(allocations))
	for i, allocation := range allocations {
		response[i] = PortAllocationResponse{
			ID:           allocation.ID,
			ControllerID: allocation.ControllerID,
			Port:         allocation.Port,
			CreatedAt:    allocation.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode port allocations response: %v", err)
	}
}

// ReleasePortHandler handles DELETE /api/v0/controllers/{id}/port
func (p *Ports) ReleasePortHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := p.store.ReleasePort(controllerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "No port allocated"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to release port: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

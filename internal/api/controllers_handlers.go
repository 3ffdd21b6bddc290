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

// Controller represents an edge controller installed at a site
type Controller struct {
	ID               int64      // Unique identifier
	SiteID           int64      // Site the controller belongs to
	Name             string     // Controller name
	SerialNumber     string     // Hardware serial number
	FirmwareVersion  string     // Reported firmware version
	LastConfigSyncAt *time.Time // When a config sync last completed
	CreatedAt        time.Time  // Creation time
	UpdatedAt        time.Time  // Last update time
}

// ControllersStore defines the datastore interface for controller handlers
type ControllersStore interface {
	ListControllers() ([]Controller, error)
	ListControllersBySite(siteID int64) ([]Controller, error)
	CreateController(Controller) (Controller, error)
	GetController(id int64) (*Controller, error)
	GetControllerByName(name string) (*Controller, error)
	DeleteController(id int64) error
}

// Controllers groups controller handlers for testability
type Controllers struct {
	store ControllersStore
}

func NewControllers(store ControllersStore) *Controllers {
	return &Controllers{store: store}
}

type CreateControllerRequest struct {
	SiteID          int64  `json:"site_id"`
	Name            string `json:"name"`
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

type ControllerResponse struct {
	ID               int64      `json:"id"`
	SiteID           int64      `json:"site_id"`
	Name             string     `json:"name"`
	SerialNumber     string     `json:"serial_number"`
	FirmwareVersion  string     `json:"firmware_version,omitempty"`
	LastConfigSyncAt *time.Time `json:"last_config_sync_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func controllerResponse(c Controller) ControllerResponse {
	return ControllerResponse{
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

func (c *Controllers) ListControllersHandler(w http.ResponseWriter, r *http.Request) {
	controllers, err := c.store.ListControllers()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list controllers: %v", err), http.StatusInternalServerError)
		return
	}

	response := make([]ControllerResponse, len(controllers))
	for i, controller := range controllers {
		response[i] = controllerResponse(controller)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode controllers response: %v", err)
	}
}

// ListSiteControllersHandler handles GET /api/v0/sites/{id}/controllers
func (c *Controllers) ListSiteControllersHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	siteID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid site ID"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	controllers, err := c.store.ListControllersBySite(siteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Site not found"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to list controllers: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := make([]ControllerResponse, len(controllers))
	for i, controller := range controllers {
		response[i] = controllerResponse(controller)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode controllers response: %v", err)
	}
}

func (c *Controllers) CreateControllerHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateControllerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid JSON"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	// Validate required fields
	if req.Name == "" || req.SerialNumber == "" || req.SiteID == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "SiteID, Name, and SerialNumber are required"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	created, err := c.store.CreateController(Controller{
		SiteID:          req.SiteID,
		Name:            req.Name,
		SerialNumber:    req.SerialNumber,
		FirmwareVersion: req.FirmwareVersion,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Site not found"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		if errors.Is(err, repository.ErrDuplicate) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "A controller with this name or serial number already exists"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to create controller: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(controllerResponse(created)); err != nil {
		log.Printf("failed to encode controller response: %v", err)
	}
}

func (c *Controllers) GetControllerHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid controller ID"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	controller, err := c.store.GetController(id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to get controller: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if controller == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(controllerResponse(*controller)); err != nil {
		log.Printf("failed to encode controller response: %v", err)
	}
}

func (c *Controllers) GetControllerByNameHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	controller, err := c.store.GetControllerByName(name)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to get controller: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if controller == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(controllerResponse(*controller)); err != nil {
		log.Printf("failed to encode controller response: %v", err)
	}
}

func (c *Controllers) DeleteControllerHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid controller ID"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if err := c.store.DeleteController(id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to delete controller: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

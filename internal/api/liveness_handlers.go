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

// ControllerLiveness is one controller's reachability verdict
type ControllerLiveness struct {
	ControllerID int64      // Controller the verdict is about
	Name         string     // Controller name, for display
	Online       bool       // Whether a recent-enough heartbeat exists
	LastSeen     *time.Time // Newest reported heartbeat time, nil when silent
}

// LivenessStore defines the datastore interface for liveness handlers
type LivenessStore interface {
	ControllerLiveness(controllerID int64, threshold time.Duration) (ControllerLiveness, error)
	SiteLiveness(siteID int64, threshold time.Duration) ([]ControllerLiveness, error)
}

// Liveness groups liveness handlers for testability
type Liveness struct {
	store LivenessStore
}

func NewLiveness(store LivenessStore) *Liveness {
	return &Liveness{store: store}
}

type LivenessResponse struct {
	ControllerID int64      `json:"controller_id"`
	IsOnline     bool       `json:"is_online"`
	LastSeen     *time.Time `json:"last_seen"`
}

type SiteLivenessResponse struct {
	SiteID      int64                     `json:"site_id"`
	Controllers []SiteLivenessControllers `json:"controllers"`
}

type SiteLivenessControllers struct {
	ControllerID int64      `json:"controller_id"`
	Name         string     `json:"name"`
	IsOnline     bool       `json:"is_online"`
	LastSeen     *time.Time `json:"last_seen"`
}

// parseThreshold reads the optional threshold_seconds query parameter. Zero
// means the caller wants the product default.
func parseThreshold(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("threshold_seconds")
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid threshold_seconds")
	}
	return time.Duration(seconds) * time.Second, nil
}

// ControllerLivenessHandler handles GET /api/v0/controllers/{id}/liveness
func (l *Liveness) ControllerLivenessHandler(w http.ResponseWriter, r *http.Request) {
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

	threshold, err := parseThreshold(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid threshold_seconds"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	verdict, err := l.store.ControllerLiveness(controllerID, threshold)
	if err != nil {
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
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to classify controller: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := LivenessResponse{
		ControllerID: verdict.ControllerID,
		IsOnline:     verdict.Online,
		LastSeen:     verdict.LastSeen,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode liveness response: %v", err)
	}
}

// SiteLivenessHandler handles GET /api/v0/sites/{id}/liveness.
//
// Returns one verdict per controller at the site so health displays can
// render the whole installation in a single call.
func (l *Liveness) SiteLivenessHandler(w http.ResponseWriter, r *http.Request) {
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

	threshold, err := parseThreshold(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid threshold_seconds"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	verdicts, err := l.store.SiteLiveness(siteID, threshold)
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
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to classify site: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := SiteLivenessResponse{
		SiteID:      siteID,
		Controllers: make([]SiteLivenessControllers, len(verdicts)),
	}
	for i, verdict := range verdicts {
		response.Controllers[i] = SiteLivenessControllers{
			ControllerID: verdict.ControllerID,
			Name:         verdict.Name,
			IsOnline:     verdict.Online,
			LastSeen:     verdict.LastSeen,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode site liveness response: %v", err)
	}
}

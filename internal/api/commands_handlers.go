package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/byosamah/volteria-sub006/internal/dispatch"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

// Command represents a remote command in the dispatch queue
type Command struct {
	ID           string          // UUID assigned at enqueue time
	SiteID       int64           // Site the target controller belongs to
	ControllerID int64           // Target controller
	CommandType  string          // reboot, sync_config, set_power_limit, ...
	Parameters   json.RawMessage // Type-specific payload
	Status       string          // Lifecycle status
	Priority     int             // Larger values dispatch first
	CreatedBy    string          // Requesting principal
	CreatedAt    time.Time       // Enqueue time
	ExecutedAt   *time.Time      // First terminal write time
	Result       json.RawMessage // Controller-produced JSON
	ErrorMessage string          // Controller-reported failure detail
}

// CommandsStore defines the datastore interface for command handlers
type CommandsStore interface {
	SubmitCommand(req SubmitCommandRequest) (Command, error)
	SubmitCommandAndAwait(ctx context.Context, req SubmitCommandRequest) (Command, error)
	GetCommand(id string) (*Command, error)
	PollCommands(controllerID int64, status string, limit int) ([]Command, error)
	AckCommand(id string) (Command, error)
	ReportCommandStatus(id, status string, result json.RawMessage, errorMessage string) (Command, error)
	MarkConfigSynced(controllerID int64, syncedAt time.Time) error
}

// Commands groups command handlers for testability
type Commands struct {
	store CommandsStore
}

func NewCommands(store CommandsStore) *Commands {
	return &Commands{store: store}
}

type SubmitCommandRequest struct {
	ControllerID int64           `json:"controller_id"`
	CommandType  string          `json:"command_type"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
}

type SubmitCommandResponse struct {
	CommandID string `json:"command_id"`
}

// SyncCommandResponse is the envelope for the synchronous submit flow
type SyncCommandResponse struct {
	Success    bool            `json:"success"`
	CommandID  string          `json:"command_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
	Error      string          `json:"error,omitempty"`
	Hint       string          `json:"hint,omitempty"`
}

type BatchCommandRequest struct {
	Commands []SubmitCommandRequest `json:"commands"`
}

// BatchCommandResult carries one item's outcome inside a 207 response
type BatchCommandResult struct {
	Success   bool   `json:"success"`
	CommandID string `json:"command_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ReportStatusRequest struct {
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type CommandResponse struct {
	ID           string          `json:"id"`
	SiteID       int64           `json:"site_id"`
	ControllerID int64           `json:"controller_id"`
	CommandType  string          `json:"command_type"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func commandResponse(c Command) CommandResponse {
	return CommandResponse{
		ID:           c.ID,
		SiteID:       c.SiteID,
		ControllerID: c.ControllerID,
		CommandType:  c.CommandType,
		Parameters:   c.Parameters,
		Status:       c.Status,
		Priority:     c.Priority,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
		ExecutedAt:   c.ExecutedAt,
		Result:       c.Result,
		ErrorMessage: c.ErrorMessage,
	}
}

// validateSubmit rejects requests that cannot possibly enqueue
func validateSubmit(req SubmitCommandRequest) string {
	if req.ControllerID == 0 {
		return "ControllerID is required"
	}
	if req.CommandType == "" {
		return "CommandType is required"
	}
	return ""
}

// SubmitCommandHandler handles POST /api/v0/commands.
//
// Fire-and-forget: the command is enqueued pending and the generated ID
// returned immediately. Delivery happens when the controller next polls.
func (c *Commands) SubmitCommandHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid JSON"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if msg := validateSubmit(req); msg != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	cmd, err := c.store.SubmitCommand(req)
	if err != nil {
		c.writeSubmitError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SubmitCommandResponse{CommandID: cmd.ID}); err != nil {
		log.Printf("failed to encode command response: %v", err)
	}
}

// SubmitSyncCommandHandler handles POST /api/v0/commands/sync.
//
// Blocks until the controller reports a terminal status or the await deadline
// passes. A controller-reported failure is still a 200; only the deadline
// produces a 504, after the command has been force-expired.
func (c *Commands) SubmitSyncCommandHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid JSON"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if msg := validateSubmit(req); msg != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	cmd, err := c.store.SubmitCommandAndAwait(r.Context(), req)
	if err != nil {
		if errors.Is(err, dispatch.ErrAwaitTimeout) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGatewayTimeout)
			response := SyncCommandResponse{
				Success:   false,
				CommandID: cmd.ID,
				Error:     "not responding",
				Hint:      "check whether the controller is online",
			}
			if err := json.NewEncoder(w).Encode(response); err != nil {
				log.Printf("failed to encode sync command response: %v", err)
			}
			return
		}
		if errors.Is(err, context.Canceled) {
			// Client went away; the command keeps progressing on its own
			return
		}
		c.writeSubmitError(w, err)
		return
	}

	response := SyncCommandResponse{CommandID: cmd.ID}
	switch cmd.Status {
	case "completed":
		response.Success = true
		response.Result = cmd.Result
		response.ExecutedAt = cmd.ExecutedAt
		if cmd.CommandType == "sync_config" && cmd.ExecutedAt != nil {
			if err := c.store.MarkConfigSynced(cmd.ControllerID, *cmd.ExecutedAt); err != nil {
				log.Printf("failed to record config sync for controller %d: %v", cmd.ControllerID, err)
			}
		}
	case "timeout":
		// Another waiter expired it first
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		response.Error = "not responding"
		response.Hint = "check whether the controller is online"
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("failed to encode sync command response: %v", err)
		}
		return
	default:
		response.Error = cmd.ErrorMessage
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode sync command response: %v", err)
	}
}

// SubmitBatchHandler handles POST /api/v0/commands/batch.
//
// Each entry is enqueued independently; the response is always 207 with one
// result per entry in request order.
func (c *Commands) SubmitBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req BatchCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid JSON"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if len(req.Commands) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Commands list is empty"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	results := make([]BatchCommandResult, len(req.Commands))
	for i, entry := range req.Commands {
		if msg := validateSubmit(entry); msg != "" {
			results[i] = BatchCommandResult{Error: msg}
			continue
		}
		cmd, err := c.store.SubmitCommand(entry)
		if err != nil {
			results[i] = BatchCommandResult{Error: err.Error()}
			continue
		}
		results[i] = BatchCommandResult{Success: true, CommandID: cmd.ID}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMultiStatus)
	if err := json.NewEncoder(w).Encode(results); err != nil {
		log.Printf("failed to encode batch response: %v", err)
	}
}

func (c *Commands) GetCommandHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cmd, err := c.store.GetCommand(id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to get command: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	if cmd == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Command not found"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(commandResponse(*cmd)); err != nil {
		log.Printf("failed to encode command response: %v", err)
	}
}

// PollCommandsHandler handles GET /api/v0/controllers/{id}/commands.
//
// This is the controller's dispatch read. Polling never changes command
// state; the controller acknowledges explicitly via the ack endpoint.
func (c *Commands) PollCommandsHandler(w http.ResponseWriter, r *http.Request) {
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

	commands, err := c.store.PollCommands(controllerID, r.URL.Query().Get("status"), limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		if errors.Is(err, repository.ErrInvalidEntity) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid status filter"}); err != nil {
				log.Printf("failed to encode error response: %v", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to poll commands: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	response := make([]CommandResponse, len(commands))
	for i, cmd := range commands {
		response[i] = commandResponse(cmd)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode commands response: %v", err)
	}
}

// AckCommandHandler handles POST /api/v0/commands/{id}/ack
func (c *Commands) AckCommandHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cmd, err := c.store.AckCommand(id)
	if err != nil {
		c.writeTransitionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(commandResponse(cmd)); err != nil {
		log.Printf("failed to encode command response: %v", err)
	}
}

// ReportStatusHandler handles POST /api/v0/commands/{id}/status.
//
// Controllers report in_progress, completed, or failed. Anything else,
// including attempts to resurrect a terminal command, is rejected.
func (c *Commands) ReportStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReportStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid JSON"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	switch req.Status {
	case "in_progress", "completed", "failed":
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Status must be in_progress, completed, or failed"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
		return
	}

	cmd, err := c.store.ReportCommandStatus(id, req.Status, req.Result, req.ErrorMessage)
	if err != nil {
		c.writeTransitionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(commandResponse(cmd)); err != nil {
		log.Printf("failed to encode command response: %v", err)
	}
}

// writeSubmitError translates enqueue failures to status codes
func (c *Commands) writeSubmitError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, repository.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Controller not found"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
	case errors.Is(err, repository.ErrInvalidEntity):
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
	default:
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to submit command: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
	}
}

// writeTransitionError translates lifecycle write failures to status codes
func (c *Commands) writeTransitionError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, repository.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Command not found"}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
	case errors.Is(err, repository.ErrInvalidTransition):
		w.WriteHeader(http.StatusConflict)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
	default:
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: fmt.Sprintf("Failed to update command: %v", err)}); err != nil {
			log.Printf("failed to encode error response: %v", err)
		}
	}
}

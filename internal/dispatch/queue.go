package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

// Queue is the message-passing view of the command store. Producers enqueue,
// controllers poll and then report progress; every hop is a durable row
// mutation, so a controller that disconnects mid-command resumes from the
// stored state.
type Queue struct {
	commands    repository.CommandRepository
	controllers repository.ControllerRepository
}

// NewQueue creates a queue over the command and controller stores
func NewQueue(commands repository.CommandRepository, controllers repository.ControllerRepository) *Queue {
	return &Queue{
		commands:    commands,
		controllers: controllers,
	}
}

// EnqueueRequest describes one command to enqueue
type EnqueueRequest struct {
	ControllerID int64
	Type         domain.CommandType
	Parameters   json.RawMessage
	Priority     int
	CreatedBy    string
}

// Enqueue validates the request and writes a pending command row. Identical
// requests are never deduplicated; each call enqueues a new command.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (domain.Command, error) {
	if !domain.ValidCommandType(req.Type) {
		return domain.Command{}, fmt.Errorf("unknown command type %q: %w", req.Type, repository.ErrInvalidEntity)
	}

	params, err := domain.ParseParams(req.Type, req.Parameters)
	if err != nil {
		return domain.Command{}, fmt.Errorf("%v: %w", err, repository.ErrInvalidEntity)
	}
	encoded, err := domain.EncodeParams(params)
	if err != nil {
		return domain.Command{}, fmt.Errorf("%v: %w", err, repository.ErrInvalidEntity)
	}

	controller, err := q.controllers.FindByID(ctx, req.ControllerID)
	if err != nil {
		return domain.Command{}, err
	}

	return q.commands.Create(ctx, domain.Command{
		ID:           uuid.NewString(),
		SiteID:       controller.SiteID,
		ControllerID: controller.ID,
		Type:         req.Type,
		Parameters:   encoded,
		Status:       domain.StatusPending,
		Priority:     req.Priority,
		CreatedBy:    req.CreatedBy,
	})
}

// Poll returns a controller's commands in dispatch order without changing
// them; acknowledgement is a separate, explicit step. An empty status
// returns commands in every status.
func (q *Queue) Poll(ctx context.Context, controllerID int64, status domain.CommandStatus, limit int) ([]domain.Command, error) {
	if _, err := q.controllers.FindByID(ctx, controllerID); err != nil {
		return nil, err
	}

	if status == "" {
		return q.commands.FindByController(ctx, controllerID, limit)
	}
	if !domain.ValidCommandStatus(status) {
		return nil, fmt.Errorf("unknown command status %q: %w", status, repository.ErrInvalidEntity)
	}
	return q.commands.FindByControllerAndStatus(ctx, controllerID, status, limit)
}

// Get returns one command by ID
func (q *Queue) Get(ctx context.Context, id string) (domain.Command, error) {
	return q.commands.FindByID(ctx, id)
}

// Ack marks a command received by its controller
func (q *Queue) Ack(ctx context.Context, id string) (domain.Command, error) {
	return q.commands.Transition(ctx, id, domain.StatusAcknowledged, nil, "")
}

// Start marks a command as executing
func (q *Queue) Start(ctx context.Context, id string) (domain.Command, error) {
	return q.commands.Transition(ctx, id, domain.StatusInProgress, nil, "")
}

// Complete records a successful outcome with the controller's result document
func (q *Queue) Complete(ctx context.Context, id string, result json.RawMessage) (domain.Command, error) {
	return q.commands.Transition(ctx, id, domain.StatusCompleted, result, "")
}

// Fail records a controller-reported failure
func (q *Queue) Fail(ctx context.Context, id string, errorMessage string, result json.RawMessage) (domain.Command, error) {
	return q.commands.Transition(ctx, id, domain.StatusFailed, result, errorMessage)
}

// Expire force-finishes a command that nobody completed in time. The write
// goes through the same transition rules, so a controller result that lands
// first wins and the expiry is rejected.
func (q *Queue) Expire(ctx context.Context, id string, message string) (domain.Command, error) {
	return q.commands.Transition(ctx, id, domain.StatusTimeout, nil, message)
}

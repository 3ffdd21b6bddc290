package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/byosamah/volteria-sub006/internal/dispatch"
	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

func commandFromDomain(c domain.Command) Command {
	return Command{
		ID:           c.ID,
		SiteID:       c.SiteID,
		ControllerID: c.ControllerID,
		CommandType:  string(c.Type),
		Parameters:   c.Parameters,
		Status:       string(c.Status),
		Priority:     c.Priority,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
		ExecutedAt:   c.ExecutedAt,
		Result:       c.Result,
		ErrorMessage: c.ErrorMessage,
	}
}

func enqueueRequest(req SubmitCommandRequest) dispatch.EnqueueRequest {
	return dispatch.EnqueueRequest{
		ControllerID: req.ControllerID,
		Type:         domain.CommandType(req.CommandType),
		Parameters:   req.Parameters,
		Priority:     req.Priority,
		CreatedBy:    req.CreatedBy,
	}
}

// SubmitCommand implements CommandsStore interface
func (a *API) SubmitCommand(req SubmitCommandRequest) (Command, error) {
	cmd, err := a.queue.Enqueue(context.Background(), enqueueRequest(req))
	if err != nil {
		return Command{}, err
	}
	return commandFromDomain(cmd), nil
}

// SubmitCommandAndAwait implements CommandsStore interface. The command it
// returns alongside ErrAwaitTimeout is the expired command, so callers can
// still report its ID.
func (a *API) SubmitCommandAndAwait(ctx context.Context, req SubmitCommandRequest) (Command, error) {
	cmd, err := a.submitter.SubmitAndAwait(ctx, enqueueRequest(req), 0)
	return commandFromDomain(cmd), err
}

// GetCommand implements CommandsStore interface
func (a *API) GetCommand(id string) (*Command, error) {
	cmd, err := a.queue.Get(context.Background(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	result := commandFromDomain(cmd)
	return &result, nil
}

// PollCommands implements CommandsStore interface
func (a *API) PollCommands(controllerID int64, status string, limit int) ([]Command, error) {
	commands, err := a.queue.Poll(context.Background(), controllerID, domain.CommandStatus(status), limit)
	if err != nil {
		return nil, err
	}
	var result []Command
	for _, cmd := range commands {
		result = append(result, commandFromDomain(cmd))
	}
	return result, nil
}

// AckCommand implements CommandsStore interface
func (a *API) AckCommand(id string) (Command, error) {
	cmd, err := a.queue.Ack(context.Background(), id)
	if err != nil {
		return Command{}, err
	}
	return commandFromDomain(cmd), nil
}

// ReportCommandStatus implements CommandsStore interface
func (a *API) ReportCommandStatus(id, status string, result json.RawMessage, errorMessage string) (Command, error) {
	var cmd domain.Command
	var err error

	switch domain.CommandStatus(status) {
	case domain.StatusInProgress:
		cmd, err = a.queue.Start(context.Background(), id)
	case domain.StatusCompleted:
		cmd, err = a.queue.Complete(context.Background(), id, result)
	case domain.StatusFailed:
		cmd, err = a.queue.Fail(context.Background(), id, errorMessage, result)
	default:
		return Command{}, repository.ErrInvalidEntity
	}
	if err != nil {
		return Command{}, err
	}
	return commandFromDomain(cmd), nil
}

// MarkConfigSynced implements CommandsStore interface
func (a *API) MarkConfigSynced(controllerID int64, syncedAt time.Time) error {
	return a.controllerRepo.TouchConfigSynced(context.Background(), controllerID, syncedAt)
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
)

// transitionRetries bounds the compare-and-swap loop in Transition. Ranks
// only move forward through at most three hops, so a handful of retries is
// enough for any interleaving of writers.
const transitionRetries = 4

// CommandRepository defines storage operations for dispatch commands.
// Commands are insert-only; the sole mutation is a forward status transition.
type CommandRepository interface {
	Create(ctx context.Context, cmd domain.Command) (domain.Command, error)
	FindByID(ctx context.Context, id string) (domain.Command, error)
	// FindByControllerAndStatus returns commands for one controller in one
	// status, ordered for dispatch: priority descending, then oldest first.
	// A non-positive limit returns all matches.
	FindByControllerAndStatus(ctx context.Context, controllerID int64, status domain.CommandStatus, limit int) ([]domain.Command, error)
	// FindByController returns a controller's commands in every status,
	// in the same dispatch order
	FindByController(ctx context.Context, controllerID int64, limit int) ([]domain.Command, error)
	FindBySiteID(ctx context.Context, siteID int64, limit int) ([]domain.Command, error)
	// Transition moves a command to a new status. The write is guarded by
	// the status the command was read at, so concurrent writers cannot leap
	// over each other; an illegal move reports ErrInvalidTransition.
	Transition(ctx context.Context, id string, to domain.CommandStatus, result json.RawMessage, errorMessage string) (domain.Command, error)
	CountByStatus(ctx context.Context) (map[domain.CommandStatus]int64, error)
	// Close releases the cached prepared statements
	Close() error
}

// commandRepositoryImpl implements CommandRepository
type commandRepositoryImpl struct {
	db    *sql.DB
	stmts *PreparedStatementCache
}

// NewCommandRepository creates a new command repository
func NewCommandRepository(db *sql.DB) CommandRepository {
	return &commandRepositoryImpl{
		db:    db,
		stmts: NewPreparedStatementCache(db),
	}
}

const commandColumns = `id, site_id, controller_id, command_type, parameters, status, priority, created_by, created_at, executed_at, result, error_message`

// Create inserts a new command row
func (r *commandRepositoryImpl) Create(ctx context.Context, cmd domain.Command) (domain.Command, error) {
	if cmd.ID == "" {
		return domain.Command{}, fmt.Errorf("command ID is required")
	}
	if cmd.SiteID == 0 {
		return domain.Command{}, fmt.Errorf("site ID is required")
	}
	if cmd.ControllerID == 0 {
		return domain.Command{}, fmt.Errorf("controller ID is required")
	}
	if !domain.ValidCommandType(cmd.Type) {
		return domain.Command{}, fmt.Errorf("unknown command type %q: %w", cmd.Type, ErrInvalidEntity)
	}

	if cmd.Status == "" {
		cmd.Status = domain.StatusPending
	}
	if !domain.ValidCommandStatus(cmd.Status) {
		return domain.Command{}, fmt.Errorf("unknown command status %q: %w", cmd.Status, ErrInvalidEntity)
	}
	if len(cmd.Parameters) == 0 {
		cmd.Parameters = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (id, site_id, controller_id, command_type, parameters, status, priority, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.SiteID, cmd.ControllerID, string(cmd.Type), string(cmd.Parameters),
		string(cmd.Status), cmd.Priority, cmd.CreatedBy, formatTime(now))
	if err != nil {
		return domain.Command{}, fmt.Errorf("failed to create command: %w", err)
	}

	cmd.CreatedAt = now
	return cmd, nil
}

// FindByID finds a command by ID
func (r *commandRepositoryImpl) FindByID(ctx context.Context, id string) (domain.Command, error) {
	row, err := r.stmts.QueryRowContext(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE id = ?`, id)
	if err != nil {
		return domain.Command{}, fmt.Errorf("failed to find command: %w", err)
	}

	cmd, err := scanCommand(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Command{}, fmt.Errorf("command with ID %s: %w", id, ErrNotFound)
		}
		return domain.Command{}, fmt.Errorf("failed to find command: %w", err)
	}

	return cmd, nil
}

// FindByControllerAndStatus returns one controller's commands in one status in dispatch order
func (r *commandRepositoryImpl) FindByControllerAndStatus(ctx context.Context, controllerID int64, status domain.CommandStatus, limit int) ([]domain.Command, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.stmts.QueryContext(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE controller_id = ? AND status = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?`, controllerID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// FindByController returns one controller's commands in every status in dispatch order
func (r *commandRepositoryImpl) FindByController(ctx context.Context, controllerID int64, limit int) ([]domain.Command, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.stmts.QueryContext(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE controller_id = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?`, controllerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// FindBySiteID returns a site's commands, most recent first
func (r *commandRepositoryImpl) FindBySiteID(ctx context.Context, siteID int64, limit int) ([]domain.Command, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE site_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find commands for site: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// Transition moves a command to a new status using a compare-and-swap update
func (r *commandRepositoryImpl) Transition(ctx context.Context, id string, to domain.CommandStatus, result json.RawMessage, errorMessage string) (domain.Command, error) {
	if !domain.ValidCommandStatus(to) {
		return domain.Command{}, fmt.Errorf("unknown command status %q: %w", to, ErrInvalidEntity)
	}

	for attempt := 0; attempt < transitionRetries; attempt++ {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return domain.Command{}, err
		}

		if !domain.ValidTransition(current.Status, to) {
			return current, fmt.Errorf("command %s cannot move from %s to %s: %w",
				id, current.Status, to, ErrInvalidTransition)
		}

		var res sql.Result
		if domain.TerminalStatus(to) {
			var resultValue any
			if len(result) > 0 {
				resultValue = string(result)
			}
			res, err = r.stmts.ExecContext(ctx, `
				UPDATE commands
				SET status = ?, executed_at = ?, result = ?, error_message = ?
				WHERE id = ? AND status = ?`,
				string(to), formatTime(time.Now().UTC()), resultValue, errorMessage,
				id, string(current.Status))
		} else {
			res, err = r.stmts.ExecContext(ctx, `
				UPDATE commands
				SET status = ?
				WHERE id = ? AND status = ?`,
				string(to), id, string(current.Status))
		}
		if err != nil {
			return domain.Command{}, fmt.Errorf("failed to transition command: %w", err)
		}

		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return domain.Command{}, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected > 0 {
			return r.FindByID(ctx, id)
		}

		// Another writer advanced the command between our read and write.
		// Re-read and re-check; the rank rules decide who wins.
	}

	return domain.Command{}, fmt.Errorf("command %s transition to %s not applied after %d attempts: %w",
		id, to, transitionRetries, ErrInvalidTransition)
}

// CountByStatus tallies commands per status
func (r *commandRepositoryImpl) CountByStatus(ctx context.Context) (map[domain.CommandStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM commands GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count commands: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.CommandStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan command count: %w", err)
		}
		counts[domain.CommandStatus(status)] = count
	}

	return counts, nil
}

// Close releases the cached prepared statements
func (r *commandRepositoryImpl) Close() error {
	return r.stmts.Close()
}

// scanCommand reads one command row from either a *sql.Row or *sql.Rows
func scanCommand(row interface{ Scan(...any) error }) (domain.Command, error) {
	var (
		cmd        domain.Command
		cmdType    string
		parameters string
		status     string
		createdAt  string
		executedAt sql.NullString
		result     sql.NullString
	)
	if err := row.Scan(&cmd.ID, &cmd.SiteID, &cmd.ControllerID, &cmdType, &parameters,
		&status, &cmd.Priority, &cmd.CreatedBy, &createdAt, &executedAt, &result,
		&cmd.ErrorMessage); err != nil {
		return domain.Command{}, err
	}

	cmd.Type = domain.CommandType(cmdType)
	cmd.Parameters = json.RawMessage(parameters)
	cmd.Status = domain.CommandStatus(status)
	if result.Valid {
		cmd.Result = json.RawMessage(result.String)
	}

	var err error
	if cmd.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Command{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if cmd.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return domain.Command{}, fmt.Errorf("failed to parse executed_at: %w", err)
	}

	return cmd, nil
}

func collectCommands(rows *sql.Rows) ([]domain.Command, error) {
	var commands []domain.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

const (
	// DefaultAwaitTimeout is how long a synchronous submit waits for a
	// terminal status before force-expiring the command
	DefaultAwaitTimeout = 30 * time.Second

	// DefaultPollInterval is how often the await loop re-reads the command
	DefaultPollInterval = time.Second
)

// timeoutMessage is stored on commands the submitter expires
const timeoutMessage = "timeout waiting for command completion"

// ErrAwaitTimeout reports that a synchronous submit gave up waiting and the
// command was marked timed out
var ErrAwaitTimeout = errors.New("command await deadline exceeded")

// Submitter runs the synchronous submit-and-await flow on top of the queue.
// It holds no background goroutines; each call owns its own ticker and
// returns when the command finishes, the deadline passes, or the caller's
// context is cancelled.
type Submitter struct {
	queue *Queue

	// Timeout and PollInterval apply when a call passes zero values
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewSubmitter creates a submitter with the default timing
func NewSubmitter(queue *Queue) *Submitter {
	return &Submitter{
		queue:        queue,
		Timeout:      DefaultAwaitTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// SubmitAndAwait enqueues a command and waits for its outcome. On success it
// returns the terminal command, including controller-reported failures; the
// caller distinguishes completed from failed by status. When the deadline
// passes first the command is expired and ErrAwaitTimeout returned, unless a
// controller result sneaks in ahead of the expiry write, in which case that
// result is returned as a normal outcome.
func (s *Submitter) SubmitAndAwait(ctx context.Context, req EnqueueRequest, timeout time.Duration) (domain.Command, error) {
	cmd, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		return domain.Command{}, err
	}
	return s.Await(ctx, cmd.ID, timeout)
}

// Await polls an already-enqueued command until it reaches a terminal status
// or the deadline passes. Transient read errors are tolerated; the next tick
// retries. Cancelling ctx abandons the wait without touching the command.
func (s *Submitter) Await(ctx context.Context, id string, timeout time.Duration) (domain.Command, error) {
	if timeout <= 0 {
		timeout = s.Timeout
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	// The command may already be terminal (controllers can be fast)
	if cmd, err := s.queue.Get(ctx, id); err == nil && domain.TerminalStatus(cmd.Status) {
		return cmd, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.Command{}, ctx.Err()
		case <-deadline.C:
			return s.expire(ctx, id)
		case <-ticker.C:
			cmd, err := s.queue.Get(ctx, id)
			if err != nil {
				continue
			}
			if domain.TerminalStatus(cmd.Status) {
				return cmd, nil
			}
		}
	}
}

// expire writes the timeout outcome exactly once. Losing the race to a
// concurrent terminal write is not an error: the controller's outcome is
// re-read and reported instead.
func (s *Submitter) expire(ctx context.Context, id string) (domain.Command, error) {
	cmd, err := s.queue.Expire(ctx, id, timeoutMessage)
	if err == nil {
		return cmd, ErrAwaitTimeout
	}

	if errors.Is(err, repository.ErrInvalidTransition) {
		cmd, readErr := s.queue.Get(ctx, id)
		if readErr == nil && domain.TerminalStatus(cmd.Status) {
			return cmd, nil
		}
	}

	return domain.Command{}, err
}

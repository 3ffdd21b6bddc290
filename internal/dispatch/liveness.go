package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/byosamah/volteria-sub006/internal/repository"
)

// DefaultLivenessThreshold is the canonical heartbeat age below which a
// controller counts as online. Controllers heartbeat every 30s, so this
// tolerates two missed beats.
const DefaultLivenessThreshold = 90 * time.Second

// LivenessStatus is a point-in-time verdict about one controller
type LivenessStatus struct {
	Online   bool
	LastSeen *time.Time
}

// Classifier derives liveness from stored heartbeats. The verdict is pure
// read-side: nothing is written, and the same snapshot can flip from online
// to offline just by asking later.
type Classifier struct {
	heartbeats repository.HeartbeatRepository
}

// NewClassifier creates a classifier over the heartbeat store
func NewClassifier(heartbeats repository.HeartbeatRepository) *Classifier {
	return &Classifier{
		heartbeats: heartbeats,
	}
}

// Status reports whether the controller's newest heartbeat is younger than
// the threshold at the given instant. The comparison is strict: a heartbeat
// aged exactly the threshold counts as offline. A controller with no
// heartbeats at all is offline with no last-seen time. A non-positive
// threshold selects the default.
func (c *Classifier) Status(ctx context.Context, controllerID int64, now time.Time, threshold time.Duration) (LivenessStatus, error) {
	if threshold <= 0 {
		threshold = DefaultLivenessThreshold
	}

	hb, err := c.heartbeats.LatestByController(ctx, controllerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LivenessStatus{Online: false}, nil
		}
		return LivenessStatus{}, err
	}

	lastSeen := hb.Timestamp
	return LivenessStatus{
		Online:   now.Sub(lastSeen) < threshold,
		LastSeen: &lastSeen,
	}, nil
}

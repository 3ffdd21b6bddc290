package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CommandType identifies the operation a command asks a controller to perform
type CommandType string

const (
	CommandReboot           CommandType = "reboot"
	CommandSyncConfig       CommandType = "sync_config"
	CommandSetPowerLimit    CommandType = "set_power_limit"
	CommandSetDGReserve     CommandType = "set_dg_reserve"
	CommandEmergencyStop    CommandType = "emergency_stop"
	CommandResumeOperations CommandType = "resume_operations"
)

// CommandStatus is a command's position in its lifecycle
type CommandStatus string

const (
	StatusPending      CommandStatus = "pending"
	StatusAcknowledged CommandStatus = "acknowledged"
	StatusInProgress   CommandStatus = "in_progress"
	StatusCompleted    CommandStatus = "completed"
	StatusFailed       CommandStatus = "failed"
	StatusTimeout      CommandStatus = "timeout"
)

// Command is one dispatch request addressed to a controller. Commands are
// written once and then advance through the status machine; the row itself
// is the only channel between the cloud side and the controller.
type Command struct {
	ID           string          // UUID assigned at enqueue time
	SiteID       int64           // Foreign key to Site
	ControllerID int64           // Foreign key to Controller
	Type         CommandType     // One of the Command* constants
	Parameters   json.RawMessage // Type-specific payload
	Status       CommandStatus   // Current lifecycle position
	Priority     int             // Larger values dispatch first; ordering only
	CreatedBy    string          // Requesting principal, free-form
	CreatedAt    time.Time       // When the command was enqueued
	ExecutedAt   *time.Time      // Set when the command first reaches a terminal status
	Result       json.RawMessage // Controller-produced JSON, stored verbatim
	ErrorMessage string          // Controller-reported failure detail
}

// statusRank orders the lifecycle. A transition is legal only when the rank
// strictly increases, so statuses never move backward and the three terminal
// statuses absorb every later write.
var statusRank = map[CommandStatus]int{
	StatusPending:      0,
	StatusAcknowledged: 1,
	StatusInProgress:   2,
	StatusCompleted:    3,
	StatusFailed:       3,
	StatusTimeout:      3,
}

// ValidCommandType reports whether t is a known command type
func ValidCommandType(t CommandType) bool {
	switch t {
	case CommandReboot, CommandSyncConfig, CommandSetPowerLimit,
		CommandSetDGReserve, CommandEmergencyStop, CommandResumeOperations:
		return true
	}
	return false
}

// ValidCommandStatus reports whether s is a known lifecycle status
func ValidCommandStatus(s CommandStatus) bool {
	_, ok := statusRank[s]
	return ok
}

// TerminalStatus reports whether s ends the lifecycle
func TerminalStatus(s CommandStatus) bool {
	return statusRank[s] == 3 && ValidCommandStatus(s)
}

// ValidTransition reports whether a command may move from one status to
// another. Forward jumps are allowed (a controller may report completed
// without ever acknowledging); revisits and backward moves are not.
func ValidTransition(from, to CommandStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Params is the decoded, validated payload of a command. Exactly one
// concrete type exists per command type.
type Params interface {
	// CommandType returns the command type this payload belongs to
	CommandType() CommandType
	// Validate checks the payload's field constraints
	Validate() error
}

// RebootParams asks the controller to restart itself
type RebootParams struct {
	Graceful bool `json:"graceful"` // Shut services down cleanly before restarting
}

func (RebootParams) CommandType() CommandType { return CommandReboot }

func (RebootParams) Validate() error { return nil }

// SyncConfigParams carries no payload; the controller pulls its own config
type SyncConfigParams struct{}

func (SyncConfigParams) CommandType() CommandType { return CommandSyncConfig }

func (SyncConfigParams) Validate() error { return nil }

// SetPowerLimitParams caps solar output as a percentage of rated capacity
type SetPowerLimitParams struct {
	PowerLimitPct float64 `json:"power_limit_pct"`
}

func (SetPowerLimitParams) CommandType() CommandType { return CommandSetPowerLimit }

func (p SetPowerLimitParams) Validate() error {
	if p.PowerLimitPct < 0 || p.PowerLimitPct > 100 {
		return fmt.Errorf("power_limit_pct must be between 0 and 100")
	}
	return nil
}

// SetDGReserveParams sets the diesel-generator reserve the controller must hold
type SetDGReserveParams struct {
	DGReserveKW float64 `json:"dg_reserve_kw"`
}

func (SetDGReserveParams) CommandType() CommandType { return CommandSetDGReserve }

func (p SetDGReserveParams) Validate() error {
	if p.DGReserveKW < 0 {
		return fmt.Errorf("dg_reserve_kw must not be negative")
	}
	return nil
}

// EmergencyStopParams carries no payload
type EmergencyStopParams struct{}

func (EmergencyStopParams) CommandType() CommandType { return CommandEmergencyStop }

func (EmergencyStopParams) Validate() error { return nil }

// ResumeOperationsParams carries no payload
type ResumeOperationsParams struct{}

func (ResumeOperationsParams) CommandType() CommandType { return CommandResumeOperations }

func (ResumeOperationsParams) Validate() error { return nil }

// emptyParams reports whether raw carries no payload (absent, null, or {})
func emptyParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

// ParseParams decodes and validates a raw payload against the schema for the
// given command type. Commands that take no parameters accept an absent,
// null, or empty object payload and nothing else.
func ParseParams(t CommandType, raw json.RawMessage) (Params, error) {
	switch t {
	case CommandReboot:
		var p RebootParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return p, p.Validate()
	case CommandSyncConfig:
		if !emptyParams(raw) {
			return nil, fmt.Errorf("%s takes no parameters", t)
		}
		return SyncConfigParams{}, nil
	case CommandSetPowerLimit:
		var probe struct {
			PowerLimitPct *float64 `json:"power_limit_pct"`
		}
		if err := decodeParams(raw, &probe); err != nil {
			return nil, err
		}
		if probe.PowerLimitPct == nil {
			return nil, fmt.Errorf("power_limit_pct is required")
		}
		p := SetPowerLimitParams{PowerLimitPct: *probe.PowerLimitPct}
		return p, p.Validate()
	case CommandSetDGReserve:
		var probe struct {
			DGReserveKW *float64 `json:"dg_reserve_kw"`
		}
		if err := decodeParams(raw, &probe); err != nil {
			return nil, err
		}
		if probe.DGReserveKW == nil {
			return nil, fmt.Errorf("dg_reserve_kw is required")
		}
		p := SetDGReserveParams{DGReserveKW: *probe.DGReserveKW}
		return p, p.Validate()
	case CommandEmergencyStop:
		if !emptyParams(raw) {
			return nil, fmt.Errorf("%s takes no parameters", t)
		}
		return EmergencyStopParams{}, nil
	case CommandResumeOperations:
		if !emptyParams(raw) {
			return nil, fmt.Errorf("%s takes no parameters", t)
		}
		return ResumeOperationsParams{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", t)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if emptyParams(raw) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// EncodeParams serializes a validated payload for storage
func EncodeParams(p Params) (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	return raw, nil
}

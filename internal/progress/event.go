package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunHB       Stage = "RUN_HEARTBEAT"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
)

// Outcome is the coarse result of one source call.
type Outcome string

// Supported source outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Event captures a single milestone in a discovery run.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or source milestone occurred.
	Stage Stage
	// SourceID scopes source events to one data source.
	SourceID string
	// Outcome groups source completions for counters.
	Outcome Outcome
	// Candidates counts raw results the source produced.
	Candidates int64
	// Merged counts the run's merged records at emit time.
	Merged int64
	// Dur captures latency for source calls and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunHB, StageRunDone, StageRunError:
	case StageSourceStart:
		if e.SourceID == "" {
			return errors.New("source start requires source id")
		}
	case StageSourceDone:
		if e.SourceID == "" {
			return errors.New("source done requires source id")
		}
		if e.Outcome == "" {
			return errors.New("source done requires an outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// RunIDFromString parses a run ID string, returning the zero value when the
// ID is not a UUID.
func RunIDFromString(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return UUIDToBytes(parsed)
}

package domain

import (
	"errors"
	"strings"
	"time"
)

// Outcome is the classification of one tick.
type Outcome int

const (
	// Invalid means the fetch failed; value and history are untouched.
	Invalid Outcome = iota
	// Unchanged means the fetched value equals the current one.
	Unchanged
	// Changed means the value differs from the current one, or is the first ever.
	Changed
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return "invalid"
	}
}

// MarshalText renders the outcome as its lowercase name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Decision is the result of Detect: the next state plus what to append.
type Decision struct {
	Outcome Outcome
	Next    CurrentState

	// Entry is non-nil when the history must grow.
	Entry *HistoryEntry

	// OldValue is the value before a Changed outcome (empty on the first sample).
	OldValue string
}

var errEmptyValue = errors.New("empty value")

// Detect decides, from the current state and one fetch result, what the new state
// and optional history append should be. It has no side effects.
func Detect(state CurrentState, res FetchResult, mode HistoryMode) Decision {
	next := state

	if res.Err == nil && strings.TrimSpace(res.Sample.Value) == "" {
		res.Err = NewFetchError(ErrKindMalformed, errEmptyValue)
	}

	if res.Err != nil {
		next.LastError = res.Err.Kind
		next.LastErrorMessage = res.Err.Error()
		next.LastErrorAt = res.Sample.ObservedAt
		next.ConsecutiveFailures++
		return Decision{Outcome: Invalid, Next: next}
	}

	value := strings.TrimSpace(res.Sample.Value)
	at := res.Sample.ObservedAt
	// lastUpdated must never move backwards, even if the wall clock does
	if at.Before(state.LastUpdated) {
		at = state.LastUpdated
	}

	next.LastUpdated = at
	next.LastError = ""
	next.LastErrorMessage = ""
	next.LastErrorAt = time.Time{}
	next.ConsecutiveFailures = 0

	entry := &HistoryEntry{Value: value, ObservedAt: at}

	if state.Value != "" && value == state.Value {
		d := Decision{Outcome: Unchanged, Next: next}
		if mode == HistorySamples {
			d.Entry = entry
		}
		return d
	}

	next.Value = value
	next.LastChanged = at
	if state.Value != "" {
		next.PreviousValue = state.Value
	}

	return Decision{
		Outcome:  Changed,
		Next:     next,
		Entry:    entry,
		OldValue: state.Value,
	}
}
